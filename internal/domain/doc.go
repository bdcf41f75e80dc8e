// Package domain models flood-risk inference data for the regencies of
// South Sulawesi.
//
// # Inference Dataset
//
// The inference dataset is a CSV file with one row per sampled grid location.
// Three columns are required:
//
//	lat, lon  WGS-84 coordinates of the sample
//	target    observed flood occurrence (1 flooded, 0 not flooded)
//
// Every other column is a numeric environmental feature, e.g. precip_1d,
// precip_3d, NDVI, NDWI, elevation, slope, aspect, upstream_area, TWI and
// landcover. The feature set is fixed per dataset and determined from the
// header at load time:
//
//	scaled features  all columns except target (lat and lon are model inputs)
//	raw features     all columns except lat, lon and target
//
// # Row Order
//
// Predictions are joined back to coordinates by row index. Nothing between
// dataset loading and the join may reorder, drop or pad rows; a length
// mismatch is reported as [ErrShapeMismatch] and treated as a defect.
//
// # Artifacts
//
// Classifiers and scalers are pre-trained outside this service and shipped as
// JSON documents. A classifier produces one score in [0, 1] per feature row;
// a score at or above the decision threshold is a flood (label 1). A scaler
// applies a fitted per-column transform (x - center) / scale. A classifier
// failure is fatal to prediction; a scaler failure only degrades prediction
// quality and the unscaled features are used instead.
//
// # Weather
//
// Weather data comes from the OpenWeatherMap 2.5 API in metric units.
// Forecast slots are three hours wide and are aggregated per local day in
// WITA (UTC+8), the time zone of South Sulawesi.
package domain
