package trace

import (
	"fmt"
	"time"

	"backend-livetrack/internal/shared/geo"

	"github.com/tkrajina/gpxgo/gpx"
)

const gpxCreator = "livetrack"

// ExportGPX renders a trace as a GPX 1.1 document. Finished traces are read
// from the encoded polyline (which carries no timestamps); traces still
// recording are read from the raw buffer.
func ExportGPX(t Trace) ([]byte, error) {
	var points []gpx.GPXPoint

	switch {
	case t.EncodedPolyline != nil && *t.EncodedPolyline != "":
		path, err := geo.DecodePath(*t.EncodedPolyline)
		if err != nil {
			return nil, err
		}
		for _, p := range path {
			points = append(points, gpx.GPXPoint{Point: gpx.Point{Latitude: p.Lat(), Longitude: p.Lon()}})
		}
	default:
		for _, p := range t.Buffer {
			c := p.Coordinates()
			gp := gpx.GPXPoint{
				Point:     gpx.Point{Latitude: c.Lat(), Longitude: c.Lon()},
				Timestamp: time.UnixMilli(p.Timestamp).UTC(),
			}
			if p.Altitude != nil {
				gp.Elevation = *gpx.NewNullableFloat64(*p.Altitude)
			}
			points = append(points, gp)
		}
	}

	doc := &gpx.GPX{
		Version: "1.1",
		Creator: gpxCreator,
		Tracks: []gpx.GPXTrack{{
			Name:     fmt.Sprintf("activity %s", t.ActivityID),
			Segments: []gpx.GPXTrackSegment{{Points: points}},
		}},
	}
	return doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
}
