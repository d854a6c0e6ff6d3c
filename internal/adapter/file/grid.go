// Package file reads grid and boundary inputs from disk and writes output
// documents atomically.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/couchcryptid/storm-prob-grid/internal/projection"
	"github.com/klauspost/compress/gzip"
)

// GridReader loads the model grid from a JSON document, optionally gzipped.
// It implements pipeline.GridSource.
type GridReader struct {
	path string
}

// NewGridReader creates a reader for the grid document at path.
func NewGridReader(path string) *GridReader {
	return &GridReader{path: path}
}

// gridDocument carries either parallel 2-D arrays or a sparse features list.
type gridDocument struct {
	Projection *projection.Spec `json:"projection"`

	Lat      [][]value `json:"lat"`
	Lon      [][]value `json:"lon"`
	CAPE     [][]value `json:"cape"`
	CIN      [][]value `json:"cin"`
	Helicity [][]value `json:"helicity"`

	Features []gridFeature `json:"features"`
}

type gridFeature struct {
	I        *int   `json:"i"`
	J        *int   `json:"j"`
	Lat      *value `json:"lat"`
	Lon      *value `json:"lon"`
	CAPE     *value `json:"cape"`
	CIN      *value `json:"cin"`
	Helicity *value `json:"helicity"`
}

// value decodes JSON null as NaN, the missing-data marker for fields.
type value float64

func (v *value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = value(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = value(f)
	return nil
}

// LoadGrid reads and decodes the grid document.
func (r *GridReader) LoadGrid(_ context.Context) (*domain.Grid, domain.ProjectionParams, error) {
	data, err := readMaybeGzip(r.path)
	if err != nil {
		return nil, domain.ProjectionParams{}, err
	}
	return DecodeGrid(data)
}

// DecodeGrid parses a grid document. The projection object is required and
// every missing key is reported.
func DecodeGrid(data []byte) (*domain.Grid, domain.ProjectionParams, error) {
	var doc gridDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, domain.ProjectionParams{}, fmt.Errorf("decode grid: %w", err)
	}
	if doc.Projection == nil {
		return nil, domain.ProjectionParams{}, &domain.ConfigurationError{Key: "projection", Reason: "grid document has no projection object"}
	}
	params, err := doc.Projection.Params()
	if err != nil {
		return nil, domain.ProjectionParams{}, err
	}

	var g *domain.Grid
	switch {
	case len(doc.Features) > 0 && len(doc.Lat) > 0:
		return nil, domain.ProjectionParams{}, &domain.ComputationError{Reason: "grid document has both arrays and features"}
	case len(doc.Features) > 0:
		g, err = fromFeatures(doc.Features)
	default:
		g = &domain.Grid{
			Lat:      floats(doc.Lat),
			Lon:      floats(doc.Lon),
			CAPE:     floats(doc.CAPE),
			CIN:      floats(doc.CIN),
			Helicity: floats(doc.Helicity),
		}
	}
	if err != nil {
		return nil, domain.ProjectionParams{}, err
	}
	if err := g.Validate(); err != nil {
		return nil, domain.ProjectionParams{}, err
	}
	return g, params, nil
}

// ReadProjection returns the projection of a grid, forecast or borders
// document at path, optionally gzipped. Only the projection object is decoded.
func ReadProjection(path string) (domain.ProjectionParams, error) {
	data, err := readMaybeGzip(path)
	if err != nil {
		return domain.ProjectionParams{}, err
	}
	var doc struct {
		Projection *projection.Spec `json:"projection"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.ProjectionParams{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if doc.Projection == nil {
		return domain.ProjectionParams{}, &domain.ConfigurationError{Key: "projection", Reason: path + " has no projection object"}
	}
	return doc.Projection.Params()
}

func fromFeatures(features []gridFeature) (*domain.Grid, error) {
	rows, cols := 0, 0
	for n, f := range features {
		if f.I == nil || f.J == nil || f.Lat == nil || f.Lon == nil {
			return nil, &domain.ComputationError{Reason: fmt.Sprintf("feature %d needs i, j, lat and lon", n)}
		}
		if *f.I < 0 || *f.J < 0 {
			return nil, &domain.ComputationError{Reason: fmt.Sprintf("feature %d has a negative index", n)}
		}
		// A dense grid never has an axis longer than its point count.
		if *f.I >= len(features) || *f.J >= len(features) {
			return nil, &domain.ComputationError{Reason: fmt.Sprintf("feature %d index (%d, %d) out of range for %d points", n, *f.I, *f.J, len(features))}
		}
		rows = max(rows, *f.I+1)
		cols = max(cols, *f.J+1)
	}
	if rows*cols != len(features) {
		return nil, &domain.ComputationError{Reason: fmt.Sprintf("%d points do not fill a %dx%d grid", len(features), rows, cols)}
	}

	g := domain.NewGrid(rows, cols)
	seen := make([]bool, rows*cols)
	for _, f := range features {
		i, j := *f.I, *f.J
		if seen[i*cols+j] {
			return nil, &domain.ComputationError{Reason: fmt.Sprintf("duplicate grid point (%d, %d)", i, j)}
		}
		seen[i*cols+j] = true
		g.Lat[i][j] = float64(*f.Lat)
		g.Lon[i][j] = float64(*f.Lon)
		g.CAPE[i][j] = orNaN(f.CAPE)
		g.CIN[i][j] = orNaN(f.CIN)
		g.Helicity[i][j] = orNaN(f.Helicity)
	}
	return g, nil
}

func floats(in [][]value) [][]float64 {
	out := make([][]float64, len(in))
	for i, row := range in {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = float64(v)
		}
	}
	return out
}

func orNaN(v *value) float64 {
	if v == nil {
		return math.NaN()
	}
	return float64(*v)
}

func readMaybeGzip(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".gz") {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return data, nil
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gunzip %s: %w", path, err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gunzip %s: %w", path, err)
	}
	return data, nil
}
