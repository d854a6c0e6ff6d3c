// Command borders projects a region boundary into the grid's LCC plane and
// writes the borders document the map front end draws state lines from.
//
// Usage:
//
//	go run ./cmd/borders \
//	  -boundary data/cb_2023_us_state_20m.shp \
//	  -projection data/rap_grid.json \
//	  -out map/data/conus_borders_lcc.json
//
// Without -projection the RAP grid's projection is used.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/storm-prob-grid/internal/adapter/file"
	"github.com/couchcryptid/storm-prob-grid/internal/config"
	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/couchcryptid/storm-prob-grid/internal/pipeline"
	"github.com/couchcryptid/storm-prob-grid/internal/projection"
	"github.com/couchcryptid/storm-prob-grid/internal/region"
)

func main() {
	if err := run(); err != nil {
		slog.Error("borders failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	boundary := flag.String("boundary", "", "boundary file (.json, .geojson or .shp)")
	projectionFrom := flag.String("projection", "", "grid, forecast or borders document whose projection to use (default RAP)")
	out := flag.String("out", "map/data/conus_borders_lcc.json", "output path (.gz gzips)")
	field := flag.String("field", "STUSPS", "attribute used for filtering")
	exclude := flag.String("exclude", "AK,HI,PR,VI,GU,MP,AS", "comma-separated attribute values to drop")
	include := flag.String("include", "", "comma-separated attribute values to keep; overrides -exclude")
	densify := flag.Float64("densify", region.DefaultOptions.DensifyDegrees, "max boundary segment in degrees before projecting")
	repair := flag.Bool("repair", false, "zero-buffer repair of invalid polygons")
	flag.Parse()

	if *boundary == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -boundary")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	filter := file.Filter{Field: *field, Exclude: config.ParseList(*exclude), Include: config.ParseList(*include)}
	mp, err := file.NewBoundaryReader(*boundary, filter, logger).LoadBoundary(ctx)
	if err != nil {
		return err
	}

	params := domain.RAPParams
	if *projectionFrom != "" {
		if params, err = file.ReadProjection(*projectionFrom); err != nil {
			return err
		}
	}
	p, err := projection.New(params)
	if err != nil {
		return err
	}
	opts := region.DefaultOptions
	opts.DensifyDegrees = *densify
	opts.Repair = *repair
	r, err := region.New(mp, p, opts)
	if err != nil {
		return err
	}

	return file.NewWriter(*out, logger).WriteBorders(ctx, pipeline.BordersOf(r))
}
