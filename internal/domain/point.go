package domain

import "github.com/paulmach/orb"

// Label is the class id produced by thresholding a model score.
type Label int

const (
	LabelNoFlood Label = 0
	LabelFlood   Label = 1
)

// Coordinate is a WGS-84 latitude/longitude pair taken from a dataset row.
type Coordinate struct {
	Lat float64 `json:"lat" csv:"lat"`
	Lon float64 `json:"lon" csv:"lon"`
}

// Point converts the coordinate to an orb point, which is ordered lon, lat.
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// ClassifiedPoint joins a coordinate with the label predicted for its row.
type ClassifiedPoint struct {
	Lat   float64 `json:"lat" csv:"lat"`
	Lon   float64 `json:"lon" csv:"lon"`
	Label Label   `json:"label" csv:"label"`
}

// Coordinate drops the label.
func (p ClassifiedPoint) Coordinate() Coordinate {
	return Coordinate{Lat: p.Lat, Lon: p.Lon}
}

// Flooded reports whether the point is flood-positive.
func (p ClassifiedPoint) Flooded() bool {
	return p.Label != LabelNoFlood
}

// Classify pairs coordinates and labels by index. The slices must have equal
// length; anything else is ErrShapeMismatch.
func Classify(coords []Coordinate, labels []Label) ([]ClassifiedPoint, error) {
	if len(coords) != len(labels) {
		return nil, shapeMismatch("coordinates", len(coords), "labels", len(labels))
	}
	points := make([]ClassifiedPoint, len(coords))
	for i, c := range coords {
		points[i] = ClassifiedPoint{Lat: c.Lat, Lon: c.Lon, Label: labels[i]}
	}
	return points, nil
}

// Positives keeps the flood-positive points in their original order.
func Positives(points []ClassifiedPoint) []ClassifiedPoint {
	out := make([]ClassifiedPoint, 0, len(points))
	for _, p := range points {
		if p.Flooded() {
			out = append(out, p)
		}
	}
	return out
}

// Coordinates strips labels from points.
func Coordinates(points []ClassifiedPoint) []Coordinate {
	out := make([]Coordinate, len(points))
	for i, p := range points {
		out[i] = p.Coordinate()
	}
	return out
}
