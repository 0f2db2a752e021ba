package enrich

import (
	"strings"
	"time"

	"github.com/spacesedan/stackenrich/internal/models"
)

const (
	naiveLayout = "2006-01-02T15:04:05"
	zoneLayout  = "-07:00"
)

var (
	awareLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05Z07:00"}
	naiveLayouts = []string{naiveLayout, "2006-01-02 15:04:05", "2006-01-02"}
)

// setGrimoireFields attaches the normalized creation date and the kind flag
// (is_stackexchange_question / is_stackexchange_answer). An unparseable
// date leaves grimoire_creation_date null.
func (e *Enricher) setGrimoireFields(rec *models.EnrichedRecord, date string, kind string) {
	if t, aware, ok := parseISODate(date); ok {
		formatted := isoformat(t, aware)
		rec.GrimoireCreationDate = &formatted
	}

	if rec.Extra == nil {
		rec.Extra = make(map[string]any)
	}
	rec.Extra["is_"+ConnectorName+"_"+kind] = 1
}

// fromTimestamp converts epoch seconds to a calendar time in the enricher zone.
func (e *Enricher) fromTimestamp(epoch int64) time.Time {
	return time.Unix(epoch, 0).In(e.location)
}

func parseISODate(s string) (time.Time, bool, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}
	for _, layout := range awareLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, false, true
		}
	}
	return time.Time{}, false, false
}

// isoformat renders t as YYYY-MM-DDTHH:MM:SS[.ffffff][+HH:MM]; microseconds
// only when non-zero and the offset only for zone-aware values.
func isoformat(t time.Time, aware bool) string {
	layout := naiveLayout
	if t.Nanosecond()/int(time.Microsecond) != 0 {
		layout += ".000000"
	}
	if aware {
		layout += zoneLayout
	}
	return t.Format(layout)
}
