package domain

import "time"

// ProjectionParams are the Lambert Conformal Conic parameters shared by the
// grid and the region boundary. Angles are degrees, radii meters.
type ProjectionParams struct {
	Lat1 float64 `json:"lat_1"`
	Lat2 float64 `json:"lat_2"`
	Lat0 float64 `json:"lat_0"`
	Lon0 float64 `json:"lon_0"`
	A    float64 `json:"a"`
	B    float64 `json:"b"`
}

// RAPParams is the RAP (awip32) grid projection on the spherical earth used
// by NCEP GRIB2 output.
var RAPParams = ProjectionParams{
	Lat1: 25,
	Lat2: 25,
	Lat0: 25,
	Lon0: 265,
	A:    6371229,
	B:    6371229,
}

// Cell is one emitted grid cell in projected meters.
type Cell struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	DX   float64 `json:"dx"`
	DY   float64 `json:"dy"`
	Prob float64 `json:"prob"`
}

// Forecast is the output document consumed by the map front end. Field names
// and formats are a stable contract.
type Forecast struct {
	RunDate    string           `json:"run_date"`
	RunHour    string           `json:"run_hour"`
	Forecast   string           `json:"forecast"`
	Valid      string           `json:"valid"`
	Generated  string           `json:"generated"`
	Projection ProjectionParams `json:"projection"`
	Features   []Cell           `json:"features"`
}

// NewForecast stamps a document for cycle c with the current clock time.
func NewForecast(c Cycle, params ProjectionParams, cells []Cell) Forecast {
	if cells == nil {
		cells = []Cell{}
	}
	return Forecast{
		RunDate:    c.RunDate(),
		RunHour:    c.RunHour(),
		Forecast:   c.Forecast(),
		Valid:      c.Valid(),
		Generated:  clock.Now().UTC().Format(time.RFC3339),
		Projection: params,
		Features:   cells,
	}
}

// Borders is the projected boundary document: every ring (exteriors and holes
// alike) as a list of [x, y] pairs.
type Borders struct {
	Projection ProjectionParams `json:"projection"`
	Features   [][][2]float64   `json:"features"`
}
