package track

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Default field names used by the importers.
const (
	DefaultTimestampField = "timestamp"
	DefaultGroupField     = "id"
)

var (
	// ErrMissingField is returned when a point lacks the configured attribute.
	ErrMissingField = errors.New("missing field")

	// ErrBadTimestamp is returned when a timestamp attribute cannot be resolved.
	ErrBadTimestamp = errors.New("bad timestamp")
)

// naiveLayouts are tried, in order, for timestamps without a zone offset.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Schema declares which attributes carry the timestamp and the grouping
// value. It is fixed at configuration time; the engine never looks fields
// up by ad-hoc names.
type Schema struct {
	Timestamp TimeField
	Group     NumberField
}

// NewSchema returns a schema reading timestamps from timestampField and
// grouping values from groupField. Naive timestamps are read as UTC unless
// zone is non-nil.
func NewSchema(timestampField, groupField string, zone ZoneResolver) Schema {
	if zone == nil {
		zone = FixedZone(time.UTC)
	}
	return Schema{
		Timestamp: TimeField{Name: timestampField, Zone: zone},
		Group:     NumberField{Name: groupField},
	}
}

// TimeField is a typed accessor for a timestamp attribute.
type TimeField struct {
	Name string

	// Zone resolves the location of timestamps that carry no offset.
	// Nil means UTC.
	Zone ZoneResolver
}

// Value resolves the timestamp of p. Accepted attribute values are
// time.Time, RFC 3339 strings, naive date-time strings and numbers of
// seconds since the Unix epoch.
func (f TimeField) Value(p Point) (time.Time, error) {
	raw, ok := p.Attrs[f.Name]
	if !ok || raw == nil {
		return time.Time{}, fmt.Errorf("point %d: %w: %s", p.ID, ErrMissingField, f.Name)
	}

	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("point %d: %w: %s", p.ID, ErrMissingField, f.Name)
		}
		return *v, nil
	case string:
		return f.parse(p, v)
	default:
		secs, err := toFloat(raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("point %d: %w: %v", p.ID, ErrBadTimestamp, raw)
		}
		whole := int64(secs)
		frac := secs - float64(whole)
		return time.Unix(whole, int64(frac*1e9)).UTC(), nil
	}
}

func (f TimeField) parse(p Point, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}

	loc := time.UTC
	if f.Zone != nil {
		loc = f.Zone.Location(p)
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(int64(secs), 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("point %d: %w: %q", p.ID, ErrBadTimestamp, s)
}

// NumberField is a typed accessor for a numeric attribute.
type NumberField struct {
	Name string
}

// Value returns the numeric value of the attribute on p.
func (f NumberField) Value(p Point) (float64, error) {
	raw, ok := p.Attrs[f.Name]
	if !ok || raw == nil {
		return 0, fmt.Errorf("point %d: %w: %s", p.ID, ErrMissingField, f.Name)
	}
	v, err := toFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("point %d: field %s: %w", p.ID, f.Name, err)
	}
	return v, nil
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("not a number: %T", raw)
	}
}
