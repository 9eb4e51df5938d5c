// Package nmea reads position fixes from NMEA 0183 logs. RMC sentences
// provide date, position, speed and course; GGA sentences provide altitude
// and satellite data for the fix with the same time.
package nmea

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"go.uber.org/zap"

	"github.com/planbiir/trackalign/internal/track"
)

// Attribute keys set on decoded points besides the timestamp.
const (
	AttrSpeed      = "speed"
	AttrCourse     = "course"
	AttrSatellites = "satellites"
	AttrFixQuality = "fix_quality"
)

// 1 knot is this many m/s
const metersPerSecondPerKnot = 0.514444

// Options configures a Decoder.
type Options struct {
	// TimestampField is the attribute the fix time is stored under.
	TimestampField string
	// ReferenceYear supplies the century for two-digit NMEA years.
	// Zero means the current year.
	ReferenceYear int
	Logger        *zap.Logger
}

// Decoder turns NMEA sentences into track points. Fixes are numbered from 1
// in file order.
type Decoder struct {
	scanner  *bufio.Scanner
	opts     Options
	log      *zap.Logger
	line     int
	lastDate nmea.Date
	pending  *track.Point
	nextID   track.ID
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader, opts Options) *Decoder {
	if opts.ReferenceYear <= 0 {
		opts.ReferenceYear = time.Now().UTC().Year()
	}
	if opts.TimestampField == "" {
		opts.TimestampField = track.DefaultTimestampField
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	scanner := bufio.NewScanner(r)
	// some receivers terminate lines with a carriage return only
	scanner.Split(scanLines)

	return &Decoder{scanner: scanner, opts: opts, log: log.Named("nmea"), nextID: 1}
}

// Next returns the next fix, or nil at the end of input.
func (d *Decoder) Next(ctx context.Context) (*track.Point, error) {
	for d.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d.line++

		text := strings.TrimSpace(d.scanner.Text())
		if text == "" {
			continue
		}
		sentence, err := nmea.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", d.line, err)
		}

		switch s := sentence.(type) {
		case nmea.RMC:
			d.lastDate = s.Date
			if s.Validity != nmea.ValidRMC {
				d.log.Debug("skipping invalid RMC fix", zap.Int("line", d.line))
				continue
			}
			p := d.point(s.Longitude, s.Latitude, nmea.DateTime(d.opts.ReferenceYear, s.Date, s.Time))
			p.Attrs[AttrSpeed] = s.Speed * metersPerSecondPerKnot
			p.Attrs[AttrCourse] = s.Course
			if out := d.push(&p); out != nil {
				return out, nil
			}

		case nmea.GGA:
			if s.FixQuality == nmea.Invalid {
				continue
			}
			if !d.lastDate.Valid {
				d.log.Warn("GGA sentence before any date, dropping fix", zap.String("raw", s.Raw))
				continue
			}
			ts := nmea.DateTime(d.opts.ReferenceYear, d.lastDate, s.Time)
			if d.pending != nil && d.sameFix(*d.pending, ts) {
				d.pending.Z, d.pending.HasZ = s.Altitude, true
				d.pending.Attrs[AttrSatellites] = s.NumSatellites
				d.pending.Attrs[AttrFixQuality] = s.FixQuality
				continue
			}
			p := d.point(s.Longitude, s.Latitude, ts)
			p.Z, p.HasZ = s.Altitude, true
			p.Attrs[AttrSatellites] = s.NumSatellites
			p.Attrs[AttrFixQuality] = s.FixQuality
			if out := d.push(&p); out != nil {
				return out, nil
			}

		default:
			d.log.Debug("ignoring sentence", zap.String("type", sentence.DataType()), zap.Int("line", d.line))
		}
	}
	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}

	out := d.pending
	d.pending = nil
	return d.number(out), nil
}

func (d *Decoder) point(lon, lat float64, ts time.Time) track.Point {
	return track.Point{
		X:     lon,
		Y:     lat,
		Attrs: track.Attributes{d.opts.TimestampField: ts},
	}
}

func (d *Decoder) sameFix(p track.Point, ts time.Time) bool {
	prev, ok := p.Attrs[d.opts.TimestampField].(time.Time)
	return ok && prev.Equal(ts)
}

// push holds p until the next fix arrives and returns the previously held
// fix, numbered.
func (d *Decoder) push(p *track.Point) *track.Point {
	out := d.pending
	d.pending = p
	return d.number(out)
}

func (d *Decoder) number(p *track.Point) *track.Point {
	if p != nil {
		p.ID = d.nextID
		d.nextID++
	}
	return p
}

// ReadAll decodes every fix from r.
func ReadAll(ctx context.Context, r io.Reader, opts Options) ([]track.Point, error) {
	dec := NewDecoder(r, opts)
	var points []track.Point
	for {
		p, err := dec.Next(ctx)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return points, nil
		}
		points = append(points, *p)
	}
}

// ReadFile decodes every fix from the log at path.
func ReadFile(ctx context.Context, path string, opts Options) ([]track.Point, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return ReadAll(ctx, file, opts)
}

// scanLines is a bufio.SplitFunc that accepts \n, \r\n and bare \r line
// endings.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[0:i], nil
		}
		if !atEOF && len(data) == i+1 {
			return 0, nil, nil
		}
		advance = i + 1
		if len(data) > i+1 && data[i+1] == '\n' {
			advance++
		}
		return advance, data[0:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
