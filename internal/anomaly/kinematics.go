package anomaly

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/planbiir/trackalign/internal/crs"
	"github.com/planbiir/trackalign/internal/track"
)

// Attribute names written by DeriveKinematics.
const (
	SpeedField     = "speed"
	DistanceField  = "distance"
	TurnAngleField = "turn_angle"
)

// DeriveKinematics returns a copy of the time-sorted trajectory t with speed
// (m/s from the previous point), distance (m from the previous point) and
// turn_angle (degrees at the point) attributes. Positions in code are
// reprojected to WGS84 before measuring, so distances are ground meters in
// every supported system. The first point gets zero speed and distance;
// endpoints get a zero turn angle. Steps without positive elapsed time get
// zero speed.
func DeriveKinematics(t track.Trajectory, code crs.Code, timestamp track.TimeField) (track.Trajectory, error) {
	positions, err := lonLat(t, code)
	if err != nil {
		return nil, err
	}

	out := t.Clone()
	for i := range out {
		if out[i].Attrs == nil {
			out[i].Attrs = track.Attributes{}
		}
		out[i].Attrs[SpeedField] = 0.0
		out[i].Attrs[DistanceField] = 0.0
		out[i].Attrs[TurnAngleField] = 0.0
	}

	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		dist := geo.DistanceHaversine(positions[i-1], positions[i])
		cur.Attrs[DistanceField] = dist

		t0, err := timestamp.Value(prev)
		if err != nil {
			return nil, err
		}
		t1, err := timestamp.Value(cur)
		if err != nil {
			return nil, err
		}
		if dt := t1.Sub(t0).Seconds(); dt > 0 {
			cur.Attrs[SpeedField] = dist / dt
		}

		if i < len(out)-1 {
			cur.Attrs[TurnAngleField] = turnAngle(positions[i-1], positions[i], positions[i+1])
		}
	}
	return out, nil
}

// lonLat returns the WGS84 positions of t.
func lonLat(t track.Trajectory, code crs.Code) ([]orb.Point, error) {
	mp := make(orb.MultiPoint, len(t))
	for i, p := range t {
		mp[i] = p.Position()
	}
	g, err := crs.Projector{}.Transform(mp, code, crs.WGS84)
	if err != nil {
		return nil, err
	}
	return g.(orb.MultiPoint), nil
}

// turnAngle is the change of heading at p2, in [0, 180].
func turnAngle(p1, p2, p3 orb.Point) float64 {
	angle := math.Abs(geo.Bearing(p2, p3) - geo.Bearing(p1, p2))
	angle = math.Mod(angle, 360)
	if angle > 180.0 {
		angle = 360.0 - angle
	}
	return angle
}
