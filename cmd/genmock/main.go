// Command genmock writes a synthetic RAP-like grid document for local runs
// and tests. Grid points are a regular LCC lattice inverse-projected to
// lat/lon, so the document round-trips through the real projector. Fields are
// smooth blobs of CAPE and helicity over the southern Plains with optional
// noise and missing values.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/rap_f01.json.gz
//	go run ./cmd/genmock -rows 40 -cols 50 -dx 40000 -out testdata/small.json
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/couchcryptid/storm-prob-grid/internal/adapter/file"
	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/couchcryptid/storm-prob-grid/internal/projection"
	"github.com/klauspost/compress/gzip"
)

// NCEP grid 130 (RAP 13 km) first point and spacing.
const (
	grid130Lat0 = 16.281
	grid130Lon0 = -126.138
	grid130Rows = 337
	grid130Cols = 451
	grid130DX   = 13545.087
)

type options struct {
	rows, cols   int
	dx           float64
	lat0, lon0   float64
	seed         uint64
	noise        float64
	missingShare float64
}

// blob is a Gaussian bump in projected space.
type blob struct {
	lat, lon float64
	sigma    float64 // meters
	peak     float64
}

var (
	capeBlob     = blob{lat: 35.5, lon: -97.5, sigma: 450e3, peak: 3500}
	helicityBlob = blob{lat: 37.0, lon: -95.5, sigma: 350e3, peak: 400}
	cinBlob      = blob{lat: 33.0, lon: -101.0, sigma: 300e3, peak: -250}
)

type gridDoc struct {
	Projection projection.Spec `json:"projection"`
	Lat        [][]float64     `json:"lat"`
	Lon        [][]float64     `json:"lon"`
	CAPE       [][]*float64    `json:"cape"`
	CIN        [][]*float64    `json:"cin"`
	Helicity   [][]*float64    `json:"helicity"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the grid document (.gz gzips)")
	var opts options
	flag.IntVar(&opts.rows, "rows", grid130Rows, "grid rows")
	flag.IntVar(&opts.cols, "cols", grid130Cols, "grid columns")
	flag.Float64Var(&opts.dx, "dx", grid130DX, "grid spacing in meters")
	flag.Float64Var(&opts.lat0, "lat0", grid130Lat0, "latitude of the first grid point")
	flag.Float64Var(&opts.lon0, "lon0", grid130Lon0, "longitude of the first grid point")
	flag.Uint64Var(&opts.seed, "seed", 1, "random seed")
	flag.Float64Var(&opts.noise, "noise", 0.05, "relative field noise")
	flag.Float64Var(&opts.missingShare, "missing", 0, "share of field values written as null")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	p, err := projection.New(domain.RAPParams)
	if err != nil {
		return err
	}
	doc, err := generate(p, opts)
	if err != nil {
		return err
	}

	data, err := encode(doc, strings.HasSuffix(*out, ".gz"))
	if err != nil {
		return err
	}
	if err := file.WriteAtomic(*out, data); err != nil {
		return fmt.Errorf("writing grid: %w", err)
	}
	log.Printf("wrote %dx%d grid to %s (%d bytes)", opts.rows, opts.cols, *out, len(data))
	return nil
}

func generate(p *projection.Projector, opts options) (*gridDoc, error) {
	if opts.rows <= 0 || opts.cols <= 0 || opts.dx <= 0 {
		return nil, fmt.Errorf("rows, cols and dx must be positive")
	}
	x0, y0, err := p.Forward(opts.lat0, opts.lon0)
	if err != nil {
		return nil, err
	}

	blobs := make(map[string]projectedBlob, 3)
	for name, b := range map[string]blob{"cape": capeBlob, "helicity": helicityBlob, "cin": cinBlob} {
		bx, by, err := p.Forward(b.lat, b.lon)
		if err != nil {
			return nil, err
		}
		blobs[name] = projectedBlob{blob: b, x: bx, y: by}
	}

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	field := func(name string, x, y float64) *float64 {
		if opts.missingShare > 0 && rng.Float64() < opts.missingShare {
			return nil
		}
		v := blobs[name].at(x, y) * (1 + opts.noise*rng.NormFloat64())
		if name == "cin" {
			v = math.Min(v, 0)
		} else {
			v = math.Max(v, 0)
		}
		v = math.Round(v*10) / 10
		return &v
	}

	doc := &gridDoc{
		Projection: projection.SpecOf(p.Params()),
		Lat:        make([][]float64, opts.rows),
		Lon:        make([][]float64, opts.rows),
		CAPE:       make([][]*float64, opts.rows),
		CIN:        make([][]*float64, opts.rows),
		Helicity:   make([][]*float64, opts.rows),
	}
	for i := range opts.rows {
		doc.Lat[i] = make([]float64, opts.cols)
		doc.Lon[i] = make([]float64, opts.cols)
		doc.CAPE[i] = make([]*float64, opts.cols)
		doc.CIN[i] = make([]*float64, opts.cols)
		doc.Helicity[i] = make([]*float64, opts.cols)
		for j := range opts.cols {
			x := x0 + float64(j)*opts.dx
			y := y0 + float64(i)*opts.dx
			lat, lon, err := p.Inverse(x, y)
			if err != nil {
				return nil, fmt.Errorf("grid point (%d, %d): %w", i, j, err)
			}
			doc.Lat[i][j] = lat
			doc.Lon[i][j] = lon
			doc.CAPE[i][j] = field("cape", x, y)
			doc.CIN[i][j] = field("cin", x, y)
			doc.Helicity[i][j] = field("helicity", x, y)
		}
	}
	return doc, nil
}

type projectedBlob struct {
	blob
	x, y float64
}

func (b projectedBlob) at(x, y float64) float64 {
	d2 := (x-b.x)*(x-b.x) + (y-b.y)*(y-b.y)
	return b.peak * math.Exp(-d2/(2*b.sigma*b.sigma))
}

func encode(doc *gridDoc, gz bool) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode grid: %w", err)
	}
	if !gz {
		return append(data, '\n'), nil
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
