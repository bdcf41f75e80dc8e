// Package export encodes flood points for download.
package export

import (
	"fmt"
	"io"

	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/gocarina/gocsv"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection builds one Point feature per coordinate, labelled as a
// flood point.
func FeatureCollection(points []domain.Coordinate) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range points {
		f := geojson.NewFeature(p.Point())
		f.Properties["label"] = int(domain.LabelFlood)
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON writes points as a GeoJSON FeatureCollection.
func WriteGeoJSON(w io.Writer, points []domain.Coordinate) error {
	data, err := FeatureCollection(points).MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	return nil
}

// WriteCSV writes points as lat,lon rows. The header is written even when
// there are no points.
func WriteCSV(w io.Writer, points []domain.Coordinate) error {
	if points == nil {
		points = []domain.Coordinate{}
	}
	if err := gocsv.Marshal(&points, w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
