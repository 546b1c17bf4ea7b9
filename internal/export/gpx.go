package export

import (
	"encoding/xml"
	"io"

	"github.com/banshee-data/sensorsync/internal/resample"
)

type gpxDoc struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	Xmlns   string   `xml:"xmlns,attr"`
	Track   gpxTrack `xml:"trk"`
}

type gpxTrack struct {
	Name    string     `xml:"name,omitempty"`
	Segment gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Ele  float64 `xml:"ele"`
	Time string  `xml:"time"`
}

// WriteGPX renders records as a single GPX 1.1 track segment.
func WriteGPX(w io.Writer, name string, records []resample.InterpolatedGnssRecord) error {
	doc := gpxDoc{
		Version: "1.1",
		Creator: "sensorsync",
		Xmlns:   "http://www.topografix.com/GPX/1/1",
		Track:   gpxTrack{Name: name},
	}
	doc.Track.Segment.Points = make([]gpxPoint, len(records))
	for i, r := range records {
		doc.Track.Segment.Points[i] = gpxPoint{
			Lat:  r.Latitude,
			Lon:  r.Longitude,
			Ele:  r.Altitude,
			Time: UTC(r.Timestamp),
		}
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", " ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// GPX writes TrajectoryFile and returns its path.
func (w *Writer) GPX(name string, records []resample.InterpolatedGnssRecord) (string, error) {
	return w.write(TrajectoryFile, func(out io.Writer) error {
		return WriteGPX(out, name, records)
	})
}
