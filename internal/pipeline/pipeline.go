package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/couchcryptid/storm-prob-grid/internal/observability"
	"github.com/couchcryptid/storm-prob-grid/internal/projection"
	"github.com/couchcryptid/storm-prob-grid/internal/region"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// GridSource loads the model grid and the projection it is defined on.
type GridSource interface {
	LoadGrid(ctx context.Context) (*domain.Grid, domain.ProjectionParams, error)
}

// BoundarySource loads the region boundary as lon/lat polygons.
type BoundarySource interface {
	LoadBoundary(ctx context.Context) (orb.MultiPolygon, error)
}

// AvailabilityChecker reports whether upstream data for a cycle has been
// published. It returns a *domain.DataUnavailableError when it has not.
type AvailabilityChecker interface {
	CheckAvailable(ctx context.Context, c domain.Cycle) error
}

// Sink persists the forecast document.
type Sink interface {
	WriteForecast(ctx context.Context, f *domain.Forecast) error
}

// BordersSink persists the projected boundary rings.
type BordersSink interface {
	WriteBorders(ctx context.Context, b *domain.Borders) error
}

// Stages are the pluggable ends of a run. Availability and Borders are optional.
type Stages struct {
	Grid         GridSource
	Boundary     BoundarySource
	Availability AvailabilityChecker
	Sinks        []Sink
	Borders      BordersSink
}

// Settings combine cell selection with boundary preparation.
type Settings struct {
	Options
	Region region.Options
}

// Pipeline runs one cycle from inputs to sinks.
type Pipeline struct {
	stages   Stages
	settings Settings
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Pipeline with the given stages and observability.
func New(s Stages, settings Settings, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		stages:   s,
		settings: settings,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run processes cycle c. Output is built in memory and handed to the sinks
// only after every cell has been computed. When upstream data is not yet
// published the returned error satisfies domain.IsDataUnavailable and nothing
// is written.
func (p *Pipeline) Run(ctx context.Context, c domain.Cycle) (*Result, error) {
	start := time.Now()
	logger := p.logger.With("cycle", c.Key())

	res, err := p.run(ctx, c, logger)
	switch {
	case err == nil:
		p.metrics.Runs.WithLabelValues("success").Inc()
		p.metrics.LastSuccess.SetToCurrentTime()
		p.metrics.RunDuration.Observe(time.Since(start).Seconds())
		logger.Info("grid run complete",
			"points", res.Stats.Points,
			"emitted", res.Stats.Emitted,
			"dropped", res.Stats.Dropped,
			"duration", time.Since(start),
		)
	case domain.IsDataUnavailable(err):
		p.metrics.Runs.WithLabelValues("unavailable").Inc()
		logger.Info("upstream data not published, skipping run", "error", err)
	default:
		p.metrics.Runs.WithLabelValues("error").Inc()
		logger.Error("grid run failed", "error", err)
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, c domain.Cycle, logger *slog.Logger) (*Result, error) {
	if p.stages.Availability != nil {
		if err := p.checkAvailable(ctx, c); err != nil {
			return nil, err
		}
	}

	var (
		g        *domain.Grid
		params   domain.ProjectionParams
		boundary orb.MultiPolygon
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return p.stage("load_grid", func() (err error) {
			if g, params, err = p.stages.Grid.LoadGrid(egCtx); err != nil {
				return fmt.Errorf("load grid: %w", err)
			}
			return nil
		})
	})
	eg.Go(func() error {
		return p.stage("load_boundary", func() (err error) {
			if boundary, err = p.stages.Boundary.LoadBoundary(egCtx); err != nil {
				return fmt.Errorf("load boundary: %w", err)
			}
			return nil
		})
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	logger.Debug("inputs loaded", "rows", g.Rows(), "cols", g.Cols(), "polygons", len(boundary))

	projector, err := projection.New(params)
	if err != nil {
		return nil, fmt.Errorf("build projector: %w", err)
	}

	var reg *region.Region
	err = p.stage("prepare_region", func() (err error) {
		reg, err = region.New(boundary, projector, p.settings.Region)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("prepare region: %w", err)
	}
	logger.Debug("region prepared", "polygons", len(boundary), "area_km2", reg.Area()/1e6)

	var res *Result
	err = p.stage("process", func() (err error) {
		res, err = Process(g, projector, reg, p.settings.Options)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("process grid: %w", err)
	}
	p.metrics.GridPoints.Add(float64(res.Stats.Points))
	p.metrics.CellsEmitted.Add(float64(res.Stats.Emitted))
	p.metrics.CellsDropped.Add(float64(res.Stats.Dropped))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	forecast := domain.NewForecast(c, params, res.Cells)
	// Borders are written before any forecast sink.
	err = p.stage("write", func() error {
		if p.stages.Borders != nil {
			if err := p.stages.Borders.WriteBorders(ctx, BordersOf(reg)); err != nil {
				return err
			}
		}
		for _, s := range p.stages.Sinks {
			if err := s.WriteForecast(ctx, &forecast); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}
	return res, nil
}

func (p *Pipeline) checkAvailable(ctx context.Context, c domain.Cycle) error {
	err := p.stages.Availability.CheckAvailable(ctx, c)
	var unavailable *domain.DataUnavailableError
	switch {
	case err == nil:
		p.metrics.UpstreamChecks.WithLabelValues("available").Inc()
		return nil
	case errors.As(err, &unavailable):
		p.metrics.UpstreamChecks.WithLabelValues("unavailable").Inc()
		return err
	default:
		p.metrics.UpstreamChecks.WithLabelValues("error").Inc()
		return fmt.Errorf("check upstream: %w", err)
	}
}

func (p *Pipeline) stage(name string, f func() error) error {
	start := time.Now()
	err := f()
	p.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

// BordersOf flattens the region's planar polygons into the borders document.
// Exterior rings and holes are listed alike, in input order.
func BordersOf(r *region.Region) *domain.Borders {
	b := &domain.Borders{Projection: r.Params(), Features: [][][2]float64{}}
	for _, poly := range r.Planar() {
		for _, ring := range poly {
			pts := make([][2]float64, len(ring))
			for i, pt := range ring {
				pts[i] = [2]float64{pt[0], pt[1]}
			}
			b.Features = append(b.Features, pts)
		}
	}
	return b
}
