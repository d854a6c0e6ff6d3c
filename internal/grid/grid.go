// Package grid projects model grids and estimates per-cell extents.
package grid

import (
	"fmt"
	"math"

	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/couchcryptid/storm-prob-grid/internal/projection"
)

// Projected is a grid in planar coordinates. DX and DY approximate the cell
// footprint from neighbor spacing; they are not exact cell bounds.
type Projected struct {
	Source *domain.Grid
	X      [][]float64
	Y      [][]float64
	DX     [][]float64
	DY     [][]float64
}

// Project validates g, projects every point with p, and estimates extents.
func Project(g *domain.Grid, p *projection.Projector) (*Projected, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	rows, cols := g.Rows(), g.Cols()
	x, y := alloc(rows, cols), alloc(rows, cols)
	for i := range rows {
		for j := range cols {
			px, py, err := p.Forward(g.Lat[i][j], g.Lon[i][j])
			if err != nil {
				return nil, &domain.ComputationError{Reason: fmt.Sprintf("grid point (%d, %d): %v", i, j, err)}
			}
			x[i][j], y[i][j] = px, py
		}
	}

	dx, dy, err := Extents(x, y)
	if err != nil {
		return nil, err
	}
	return &Projected{Source: g, X: x, Y: y, DX: dx, DY: dy}, nil
}

// Point returns the projected grid point at (i, j).
func (p *Projected) Point(i, j int) domain.GridPoint {
	return domain.GridPoint{
		Row: i,
		Col: j,
		Lat: p.Source.Lat[i][j],
		Lon: p.Source.Lon[i][j],
		X:   p.X[i][j],
		Y:   p.Y[i][j],
	}
}

// Rows returns the number of rows.
func (p *Projected) Rows() int { return len(p.X) }

// Cols returns the number of columns.
func (p *Projected) Cols() int {
	if len(p.X) == 0 {
		return 0
	}
	return len(p.X[0])
}

// Extents estimates cell width and height with forward differences:
//
//	dx[i][j] = |x[i][j+1] - x[i][j]|   (last column: |x[i][j] - x[i][j-1]|)
//	dy[i][j] = |y[i+1][j] - y[i][j]|   (last row:    |y[i][j] - y[i-1][j]|)
//
// The grid must be at least 2x2 and no extent may be zero.
func Extents(x, y [][]float64) (dx, dy [][]float64, err error) {
	rows := len(x)
	if rows < 2 || len(y) != rows {
		return nil, nil, &domain.ComputationError{Reason: fmt.Sprintf("extents need at least 2 rows in matching arrays, got %d and %d", rows, len(y))}
	}
	cols := len(x[0])
	if cols < 2 {
		return nil, nil, &domain.ComputationError{Reason: fmt.Sprintf("extents need at least 2 columns, got %d", cols)}
	}
	for i := range rows {
		if len(x[i]) != cols || len(y[i]) != cols {
			return nil, nil, &domain.ComputationError{Reason: fmt.Sprintf("row %d is not %d columns wide", i, cols)}
		}
	}

	dx, dy = alloc(rows, cols), alloc(rows, cols)
	for i := range rows {
		for j := range cols {
			if j < cols-1 {
				dx[i][j] = math.Abs(x[i][j+1] - x[i][j])
			} else {
				dx[i][j] = math.Abs(x[i][j] - x[i][j-1])
			}
			if i < rows-1 {
				dy[i][j] = math.Abs(y[i+1][j] - y[i][j])
			} else {
				dy[i][j] = math.Abs(y[i][j] - y[i-1][j])
			}

			if !(dx[i][j] > 0) || !(dy[i][j] > 0) {
				return nil, nil, &domain.ComputationError{Reason: fmt.Sprintf("degenerate grid: zero extent at (%d, %d)", i, j)}
			}
		}
	}
	return dx, dy, nil
}

func alloc(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}
