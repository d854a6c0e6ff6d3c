package domain

import "math"

// Fields holds the model fields sampled at one grid point.
type Fields struct {
	CAPE     float64 // surface-based CAPE, J/kg
	CIN      float64 // surface-based CIN, J/kg (zero or negative)
	Helicity float64 // 0-3 km storm-relative helicity, m2/s2
}

// Grid is a 2-D weather model grid in row-major order. All arrays share the
// shape of Lat.
type Grid struct {
	Lat      [][]float64
	Lon      [][]float64
	CAPE     [][]float64
	CIN      [][]float64
	Helicity [][]float64
}

// GridPoint is one grid sample after projection.
type GridPoint struct {
	Row int
	Col int
	Lat float64
	Lon float64
	X   float64
	Y   float64
}

// Rows returns the number of grid rows.
func (g *Grid) Rows() int { return len(g.Lat) }

// Cols returns the number of grid columns.
func (g *Grid) Cols() int {
	if len(g.Lat) == 0 {
		return 0
	}
	return len(g.Lat[0])
}

// FieldsAt returns the field samples at (i, j).
func (g *Grid) FieldsAt(i, j int) Fields {
	return Fields{
		CAPE:     g.CAPE[i][j],
		CIN:      g.CIN[i][j],
		Helicity: g.Helicity[i][j],
	}
}

// Validate checks that every array is rectangular with the shape of Lat and
// that coordinates are finite. Field values may be NaN (missing data).
func (g *Grid) Validate() error {
	rows, cols := g.Rows(), g.Cols()
	if rows == 0 || cols == 0 {
		return computationf("grid is empty")
	}

	arrays := []struct {
		name string
		data [][]float64
	}{
		{"lat", g.Lat},
		{"lon", g.Lon},
		{"cape", g.CAPE},
		{"cin", g.CIN},
		{"helicity", g.Helicity},
	}
	for _, a := range arrays {
		if len(a.data) != rows {
			return computationf("%s has %d rows, lat has %d", a.name, len(a.data), rows)
		}
		for i, row := range a.data {
			if len(row) != cols {
				return computationf("%s row %d has %d columns, expected %d", a.name, i, len(row), cols)
			}
		}
	}

	for i := range rows {
		for j := range cols {
			lat, lon := g.Lat[i][j], g.Lon[i][j]
			if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
				return computationf("non-finite coordinate at (%d, %d)", i, j)
			}
			if lat < -90 || lat > 90 {
				return computationf("latitude %g out of range at (%d, %d)", lat, i, j)
			}
		}
	}
	return nil
}

// NewGrid allocates a zeroed grid of the given shape.
func NewGrid(rows, cols int) *Grid {
	alloc := func() [][]float64 {
		out := make([][]float64, rows)
		for i := range out {
			out[i] = make([]float64, cols)
		}
		return out
	}
	return &Grid{Lat: alloc(), Lon: alloc(), CAPE: alloc(), CIN: alloc(), Helicity: alloc()}
}
