package domain

import (
	"strconv"
	"strings"
	"time"

	"example.com/parkactivity/internal/store"
)

// serverOwned lists attributes a caller may not set through a submission.
// Lock state in particular only changes through the lock/unlock path.
var serverOwned = []string{
	AttrIsLocked,
	AttrLastUpdated,
	AttrConfig,
	AttrParkName,
	AttrSubAreaName,
	store.AttrPK,
	store.AttrSK,
}

// ValidateSubmission checks required attributes and the date format, and returns
// a copy of the submission with server-owned fields removed. The date is checked
// as sent; surrounding whitespace makes it malformed.
func ValidateSubmission(sub Submission) (Submission, error) {
	sub.SubAreaID = strings.TrimSpace(sub.SubAreaID)
	sub.Activity = strings.TrimSpace(sub.Activity)
	sub.Orcs = strings.TrimSpace(sub.Orcs)

	if err := validateKey(sub.Key()); err != nil {
		return Submission{}, err
	}

	fields := make(map[string]any, len(sub.Fields))
	for k, v := range sub.Fields {
		fields[k] = v
	}
	for _, k := range serverOwned {
		delete(fields, k)
	}
	sub.Fields = fields
	return sub, nil
}

func validateKey(key RecordKey) error {
	var missing []string
	if key.SubAreaID == "" {
		missing = append(missing, AttrSubAreaID)
	}
	if key.Activity == "" {
		missing = append(missing, AttrActivity)
	}
	if key.Date == "" {
		missing = append(missing, AttrDate)
	}
	if len(missing) > 0 {
		return newError(KindValidation, "missing required fields: "+strings.Join(missing, ", "))
	}
	if _, _, err := ParseDate(key.Date); err != nil {
		return err
	}
	return nil
}

// ParseDate parses a YYYYMM date token.
func ParseDate(date string) (int, time.Month, error) {
	if len(date) != 6 {
		return 0, 0, newError(KindFormat, "date must be formatted YYYYMM")
	}
	for _, r := range date {
		if r < '0' || r > '9' {
			return 0, 0, newError(KindFormat, "date must be formatted YYYYMM")
		}
	}
	year, _ := strconv.Atoi(date[:4])
	month, _ := strconv.Atoi(date[4:])
	if month < 1 || month > 12 {
		return 0, 0, newError(KindFormat, "date month must be between 01 and 12")
	}
	return year, time.Month(month), nil
}
