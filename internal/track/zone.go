package track

import (
	"fmt"
	"sync"
	"time"

	"github.com/ringsaturn/tzf"
)

// ZoneResolver picks the location used to read a naive timestamp of p.
type ZoneResolver interface {
	Location(p Point) *time.Location
}

// FixedZone reads every naive timestamp in loc.
func FixedZone(loc *time.Location) ZoneResolver {
	return fixedZone{loc}
}

type fixedZone struct{ loc *time.Location }

func (z fixedZone) Location(Point) *time.Location { return z.loc }

// NewFixedZone returns a resolver for the named IANA zone.
func NewFixedZone(name string) (ZoneResolver, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading zone %q: %w", name, err)
	}
	return fixedZone{loc}, nil
}

// PointZone looks up the time zone at the point's position. Points must be
// in geographic coordinates (x = longitude, y = latitude).
type PointZone struct {
	finder tzf.F

	mu    sync.Mutex
	cache map[string]*time.Location
}

// NewPointZone loads the embedded time zone boundaries.
func NewPointZone() (*PointZone, error) {
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, fmt.Errorf("loading time zone finder: %w", err)
	}
	return &PointZone{finder: finder, cache: make(map[string]*time.Location)}, nil
}

// Location returns the zone at p, or UTC when it is unknown.
func (z *PointZone) Location(p Point) *time.Location {
	name := z.finder.GetTimezoneName(p.X, p.Y)
	if name == "" {
		return time.UTC
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if loc, ok := z.cache[name]; ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	z.cache[name] = loc
	return loc
}
