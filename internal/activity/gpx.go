package activity

import (
	"encoding/xml"
	"fmt"
	"time"
)

type gpxDoc struct {
	XMLName  xml.Name    `xml:"gpx"`
	Version  string      `xml:"version,attr"`
	Creator  string      `xml:"creator,attr"`
	Xmlns    string      `xml:"xmlns,attr"`
	Metadata gpxMetadata `xml:"metadata"`
	Track    gpxTrack    `xml:"trk"`
}

type gpxMetadata struct {
	Time string `xml:"time"`
}

type gpxTrack struct {
	Name     string       `xml:"name"`
	Type     string       `xml:"type"`
	Desc     string       `xml:"desc,omitempty"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat float64 `xml:"lat,attr"`
	Lon float64 `xml:"lon,attr"`
}

// ToGPX renders the activity as a GPX 1.1 track, one trkseg per segment.
func ToGPX(a Activity) ([]byte, error) {
	doc := gpxDoc{
		Version:  "1.1",
		Creator:  "EscapeFromVim",
		Xmlns:    "http://www.topografix.com/GPX/1/1",
		Metadata: gpxMetadata{Time: a.Date.UTC().Format(time.RFC3339)},
		Track: gpxTrack{
			Name: fmt.Sprintf("%s %s", a.Type, a.Date.UTC().Format(time.DateOnly)),
			Type: a.Type,
			Desc: a.Comment,
		},
	}
	for _, seg := range a.Segments {
		s := gpxSegment{Points: make([]gpxPoint, 0, len(seg))}
		for _, p := range seg {
			s.Points = append(s.Points, gpxPoint{Lat: p.Lat, Lon: p.Lng})
		}
		doc.Track.Segments = append(doc.Track.Segments, s)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
