package domain

import (
	"context"
	"strings"

	"example.com/parkactivity/internal/store"
)

const configPKPrefix = "config::"

// ConfigSnapshot is the reference configuration of one sub-area activity.
type ConfigSnapshot struct {
	Orcs        string
	ParkName    string
	SubAreaName string
	// Attributes is the whole configuration item minus its key, copied into
	// each record written.
	Attributes map[string]any
}

// ConfigKey addresses the configuration item of a sub-area activity.
func ConfigKey(subAreaID, activity string) store.Key {
	return store.Key{PK: configPKPrefix + subAreaID, SK: activity}
}

// ConfigLookup reads configuration snapshots. It never writes.
type ConfigLookup struct {
	store store.Store
}

// NewConfigLookup constructs a ConfigLookup.
func NewConfigLookup(s store.Store) ConfigLookup {
	return ConfigLookup{store: s}
}

// Lookup returns the snapshot for a sub-area activity. A missing item or a
// missing orcs, parkName or subAreaName is KindConfigMissing.
func (l ConfigLookup) Lookup(ctx context.Context, subAreaID, activity string) (ConfigSnapshot, error) {
	item, err := l.store.GetOne(ctx, ConfigKey(subAreaID, activity))
	if err != nil {
		return ConfigSnapshot{}, wrapError(KindStore, "config lookup failed", err)
	}
	if item == nil {
		return ConfigSnapshot{}, newError(KindConfigMissing, "no configuration for "+subAreaID+" "+activity)
	}

	snap := ConfigSnapshot{
		Orcs:        stringAttr(item[AttrOrcs]),
		ParkName:    stringAttr(item[AttrParkName]),
		SubAreaName: stringAttr(item[AttrSubAreaName]),
		Attributes:  make(map[string]any, len(item)),
	}
	var missing []string
	if snap.Orcs == "" {
		missing = append(missing, AttrOrcs)
	}
	if snap.ParkName == "" {
		missing = append(missing, AttrParkName)
	}
	if snap.SubAreaName == "" {
		missing = append(missing, AttrSubAreaName)
	}
	if len(missing) > 0 {
		return ConfigSnapshot{}, newError(KindConfigMissing, "configuration is missing "+strings.Join(missing, ", "))
	}

	for k, v := range item {
		if k == store.AttrPK || k == store.AttrSK {
			continue
		}
		snap.Attributes[k] = v
	}
	return snap, nil
}
