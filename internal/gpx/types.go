package gpx

import (
	"encoding/xml"
	"time"
)

// RawXML keeps an extensions block as its inner XML so that data written
// by other tools (Garmin, Strava, etc.) survives a correction pass.
type RawXML []byte

func (r RawXML) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if len(r) == 0 {
		return nil
	}

	type inner struct {
		Content string `xml:",innerxml"`
	}

	return e.EncodeElement(inner{Content: string(r)}, start)
}

func (r *RawXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	type inner struct {
		Content string `xml:",innerxml"`
	}

	var data inner
	if err := d.DecodeElement(&data, &start); err != nil {
		return err
	}

	if len(data.Content) == 0 {
		*r = nil
		return nil
	}

	*r = append((*r)[:0], data.Content...)
	return nil
}

// Point is a trkpt or rtept. Elevation and Time are pointers so that
// missing elements stay missing when written back.
type Point struct {
	Lat       float64    `xml:"lat,attr"`
	Lon       float64    `xml:"lon,attr"`
	Elevation *float64   `xml:"ele,omitempty"`
	Time      *time.Time `xml:"time,omitempty"`
	Name      string     `xml:"name,omitempty"`

	Extensions RawXML `xml:"extensions,omitempty"`

	// Position in the file, used to write edits back in place
	TrackIdx, SegIdx, PtIdx int `xml:"-"`
}

// Track is a trk element.
type Track struct {
	Name        string         `xml:"name,omitempty"`
	Description string         `xml:"desc,omitempty"`
	Segments    []TrackSegment `xml:"trkseg"`
	Extensions  RawXML         `xml:"extensions,omitempty"`
}

// TrackSegment is a trkseg element.
type TrackSegment struct {
	Points     []Point `xml:"trkpt"`
	Extensions RawXML  `xml:"extensions,omitempty"`
}

// Route is a rte element. Routes carry reference lines and simplified
// tracks.
type Route struct {
	Name        string  `xml:"name,omitempty"`
	Description string  `xml:"desc,omitempty"`
	Points      []Point `xml:"rtept"`
	Extensions  RawXML  `xml:"extensions,omitempty"`
}

// GPX is the document root.
type GPX struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`

	XMLNS    string `xml:"xmlns,attr,omitempty"`
	XMLNSXSI string `xml:"xmlns:xsi,attr,omitempty"`
	XSI      string `xml:"xsi:schemaLocation,attr,omitempty"`

	XMLNSGPXTPX string `xml:"xmlns:gpxtpx,attr,omitempty"`
	XMLNSGPXX   string `xml:"xmlns:gpxx,attr,omitempty"`

	Metadata   *Metadata `xml:"metadata,omitempty"`
	Routes     []Route   `xml:"rte"`
	Tracks     []Track   `xml:"trk"`
	Extensions RawXML    `xml:"extensions,omitempty"`
}

// Metadata is the metadata element.
type Metadata struct {
	Name        string     `xml:"name,omitempty"`
	Description string     `xml:"desc,omitempty"`
	Author      string     `xml:"author,omitempty"`
	Time        *time.Time `xml:"time,omitempty"`
	Extensions  RawXML     `xml:"extensions,omitempty"`
}
