package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"example.com/parkactivity/internal/store"
)

// Attribute names of a persisted activity record.
const (
	AttrSubAreaID   = "subAreaId"
	AttrActivity    = "activity"
	AttrDate        = "date"
	AttrOrcs        = "orcs"
	AttrParkName    = "parkName"
	AttrSubAreaName = "subAreaName"
	AttrConfig      = "config"
	AttrIsLocked    = "isLocked"
	AttrLastUpdated = "lastUpdated"
)

// RecordKey identifies one activity record.
type RecordKey struct {
	SubAreaID string
	Activity  string
	Date      string
}

// StoreKey returns the composite store key: pk "<subAreaId>::<activity>", sk "<YYYYMM>".
func (k RecordKey) StoreKey() store.Key {
	return store.Key{PK: partitionKey(k.SubAreaID, k.Activity), SK: k.Date}
}

func partitionKey(subAreaID, activity string) string {
	return subAreaID + "::" + activity
}

// ActivityRecord is a month of activity observations for a sub-area.
type ActivityRecord struct {
	SubAreaID   string
	Activity    string
	Date        string
	Orcs        string
	ParkName    string
	SubAreaName string
	Config      map[string]any
	IsLocked    bool
	LastUpdated time.Time
	// Fields holds the caller-supplied observation values.
	Fields map[string]any
}

// Key returns the record's identity.
func (r ActivityRecord) Key() RecordKey {
	return RecordKey{SubAreaID: r.SubAreaID, Activity: r.Activity, Date: r.Date}
}

// Flatten renders the record as a single attribute map, observation fields first
// so the server-owned attributes always win.
func (r ActivityRecord) Flatten() map[string]any {
	out := make(map[string]any, len(r.Fields)+9)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[AttrSubAreaID] = r.SubAreaID
	out[AttrActivity] = r.Activity
	out[AttrDate] = r.Date
	out[AttrOrcs] = r.Orcs
	out[AttrParkName] = r.ParkName
	out[AttrSubAreaName] = r.SubAreaName
	out[AttrIsLocked] = r.IsLocked
	if r.Config != nil {
		out[AttrConfig] = r.Config
	}
	if !r.LastUpdated.IsZero() {
		out[AttrLastUpdated] = r.LastUpdated.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// MarshalJSON renders the flattened record.
func (r ActivityRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Flatten())
}

// Item converts the record into a store item.
func (r ActivityRecord) Item() store.Item {
	item := store.Item(r.Flatten())
	key := r.Key().StoreKey()
	item[store.AttrPK] = key.PK
	item[store.AttrSK] = key.SK
	return item
}

var recordAttrs = map[string]struct{}{
	store.AttrPK: {}, store.AttrSK: {},
	AttrSubAreaID: {}, AttrActivity: {}, AttrDate: {}, AttrOrcs: {},
	AttrParkName: {}, AttrSubAreaName: {}, AttrConfig: {}, AttrIsLocked: {}, AttrLastUpdated: {},
}

// RecordFromItem converts a store item back into a record.
func RecordFromItem(item store.Item) ActivityRecord {
	rec := ActivityRecord{
		SubAreaID:   stringAttr(item[AttrSubAreaID]),
		Activity:    stringAttr(item[AttrActivity]),
		Date:        stringAttr(item[AttrDate]),
		Orcs:        stringAttr(item[AttrOrcs]),
		ParkName:    stringAttr(item[AttrParkName]),
		SubAreaName: stringAttr(item[AttrSubAreaName]),
		IsLocked:    boolAttr(item[AttrIsLocked]),
		Fields:      make(map[string]any),
	}
	if cfg, ok := item[AttrConfig].(map[string]any); ok {
		rec.Config = cfg
	}
	if ts, err := time.Parse(time.RFC3339Nano, stringAttr(item[AttrLastUpdated])); err == nil {
		rec.LastUpdated = ts
	}
	for k, v := range item {
		if _, reserved := recordAttrs[k]; reserved {
			continue
		}
		rec.Fields[k] = v
	}
	return rec
}

// Submission is an inbound activity submission. SubAreaID, Activity and Date are
// required; Orcs scopes the caller's authorization; everything else is an
// observation field.
type Submission struct {
	SubAreaID string
	Activity  string
	Date      string
	Orcs      string
	Fields    map[string]any
}

// Key returns the identity the submission targets.
func (s Submission) Key() RecordKey {
	return RecordKey{SubAreaID: s.SubAreaID, Activity: s.Activity, Date: s.Date}
}

// UnmarshalJSON splits a flat JSON object into key attributes and observation fields.
func (s *Submission) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("submission must be a JSON object")
	}
	s.SubAreaID = stringAttr(raw[AttrSubAreaID])
	s.Activity = stringAttr(raw[AttrActivity])
	s.Date = stringAttr(raw[AttrDate])
	s.Orcs = stringAttr(raw[AttrOrcs])
	for _, k := range []string{AttrSubAreaID, AttrActivity, AttrDate, AttrOrcs} {
		delete(raw, k)
	}
	s.Fields = raw
	return nil
}

func stringAttr(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func boolAttr(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(val)
		return b
	default:
		return false
	}
}
