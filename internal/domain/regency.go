package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Regency is a city (kota) or regency (kabupaten) of South Sulawesi with the
// coordinate used for weather lookups.
type Regency struct {
	Name string  `json:"name"`
	Kind string  `json:"kind"` // "city" or "regency"
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// DefaultRegency is selected when the caller does not name one.
const DefaultRegency = "Makassar"

var regencies = []Regency{
	{Name: "Makassar", Kind: "city", Lat: -5.1500, Lon: 119.4500},
	{Name: "Parepare", Kind: "city", Lat: -4.0333, Lon: 119.6500},
	{Name: "Palopo", Kind: "city", Lat: -2.9925, Lon: 120.1969},

	{Name: "Bantaeng", Kind: "regency", Lat: -5.4833, Lon: 119.9833},
	{Name: "Barru", Kind: "regency", Lat: -4.4333, Lon: 119.6833},
	{Name: "Bone", Kind: "regency", Lat: -4.7000, Lon: 120.1333},
	{Name: "Bulukumba", Kind: "regency", Lat: -5.4167, Lon: 120.2333},
	{Name: "Enrekang", Kind: "regency", Lat: -3.5000, Lon: 119.8667},
	{Name: "Gowa", Kind: "regency", Lat: -5.3167, Lon: 119.7500},
	{Name: "Jeneponto", Kind: "regency", Lat: -5.6333, Lon: 119.7333},
	{Name: "Luwu", Kind: "regency", Lat: -2.5577, Lon: 121.3242},
	{Name: "Luwu Timur", Kind: "regency", Lat: -2.5096, Lon: 120.3978},
	{Name: "Luwu Utara", Kind: "regency", Lat: -2.6000, Lon: 120.2500},
	{Name: "Maros", Kind: "regency", Lat: -5.0500, Lon: 119.7167},
	{Name: "Pangkajene dan Kepulauan", Kind: "regency", Lat: -4.7827, Lon: 119.5506},
	{Name: "Pinrang", Kind: "regency", Lat: -3.6167, Lon: 119.6000},
	{Name: "Sidenreng Rappang", Kind: "regency", Lat: -3.8500, Lon: 119.9667},
	{Name: "Sinjai", Kind: "regency", Lat: -5.2167, Lon: 120.1500},
	{Name: "Soppeng", Kind: "regency", Lat: -4.3842, Lon: 119.8900},
	{Name: "Takalar", Kind: "regency", Lat: -5.4167, Lon: 119.5167},
	{Name: "Tana Toraja", Kind: "regency", Lat: -3.0024, Lon: 119.7966},
	{Name: "Toraja Utara", Kind: "regency", Lat: -2.9274, Lon: 119.7922},
	{Name: "Wajo", Kind: "regency", Lat: -4.0000, Lon: 120.1667},
	{Name: "Selayar Islands", Kind: "regency", Lat: -6.8167, Lon: 120.8000},
}

// aliases maps alternative spellings seen in the UI onto table names.
var aliases = map[string]string{
	"kepulauan selayar": "Selayar Islands",
	"sidrap":            "Sidenreng Rappang",
	"pangkep":           "Pangkajene dan Kepulauan",
}

// Regencies returns the regency table sorted by name.
func Regencies() []Regency {
	out := make([]Regency, len(regencies))
	copy(out, regencies)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupRegency finds a regency by case-insensitive name or alias.
func LookupRegency(name string) (Regency, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = strings.ToLower(canonical)
	}
	for _, r := range regencies {
		if strings.ToLower(r.Name) == key {
			return r, nil
		}
	}
	return Regency{}, fmt.Errorf("%w: %q", ErrUnknownRegency, name)
}
