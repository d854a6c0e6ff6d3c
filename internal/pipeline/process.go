package pipeline

import (
	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/couchcryptid/storm-prob-grid/internal/grid"
	"github.com/couchcryptid/storm-prob-grid/internal/logistic"
	"github.com/couchcryptid/storm-prob-grid/internal/projection"
	"github.com/couchcryptid/storm-prob-grid/internal/region"
)

// Options control cell selection and scoring.
type Options struct {
	Policy region.Policy
	Model  logistic.Model
}

// DefaultOptions keep cells whose center is inside the region and score
// them with the operational model.
var DefaultOptions = Options{Policy: region.PolicyStrict, Model: logistic.DefaultModel}

// Stats summarizes one Process call.
type Stats struct {
	Points  int
	Emitted int
	Dropped int
}

// Result is the filtered, scored cell list in row-major input order.
type Result struct {
	Cells []domain.Cell
	Stats Stats
}

// Process projects g with p, keeps the cells r accepts under opts.Policy and
// scores each kept cell. r must have been prepared with the same projection
// parameters as p.
func Process(g *domain.Grid, p *projection.Projector, r *region.Region, opts Options) (*Result, error) {
	if r.Params() != p.Params() {
		return nil, &domain.ConfigurationError{Key: "projection", Reason: "region and grid use different projection parameters"}
	}

	pg, err := grid.Project(g, p)
	if err != nil {
		return nil, err
	}

	res := &Result{Cells: []domain.Cell{}}
	for i := range pg.Rows() {
		for j := range pg.Cols() {
			res.Stats.Points++
			x, y, dx, dy := pg.X[i][j], pg.Y[i][j], pg.DX[i][j], pg.DY[i][j]
			if !r.Keep(opts.Policy, x, y, dx, dy) {
				res.Stats.Dropped++
				continue
			}
			res.Cells = append(res.Cells, domain.Cell{
				X:    x,
				Y:    y,
				DX:   dx,
				DY:   dy,
				Prob: opts.Model.Probability(g.FieldsAt(i, j)),
			})
		}
	}
	res.Stats.Emitted = len(res.Cells)
	return res, nil
}
