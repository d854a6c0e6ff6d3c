// Command validate checks a forecast document, and optionally a borders
// document, against the contract the map front end relies on: header formats,
// a usable projection, and well-formed cells and rings.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -forecast map/data/tornado_prob_lcc.json \
//	  -borders map/data/conus_borders_lcc.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/couchcryptid/storm-prob-grid/internal/projection"
	"github.com/klauspost/compress/gzip"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// forecastDoc mirrors domain.Forecast with pointers so absent keys are caught.
type forecastDoc struct {
	RunDate    *string          `json:"run_date"`
	RunHour    *string          `json:"run_hour"`
	Forecast   *string          `json:"forecast"`
	Valid      *string          `json:"valid"`
	Generated  *string          `json:"generated"`
	Projection *projection.Spec `json:"projection"`
	Features   *[]cellDoc       `json:"features"`
}

type cellDoc struct {
	X    *float64 `json:"x"`
	Y    *float64 `json:"y"`
	DX   *float64 `json:"dx"`
	DY   *float64 `json:"dy"`
	Prob *float64 `json:"prob"`
}

type bordersDoc struct {
	Projection *projection.Spec `json:"projection"`
	Features   *[][][]float64   `json:"features"`
}

var (
	forecastPattern = regexp.MustCompile(`^F\d{2}$`)
	validPattern    = regexp.MustCompile(`^([01]\d|2[0-3]):00-([01]\d|2[0-3]):00 UTC$`)
)

func main() {
	forecastPath := flag.String("forecast", "", "path to the forecast document (.json or .json.gz)")
	bordersPath := flag.String("borders", "", "optional path to the borders document")
	flag.Parse()

	if *forecastPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*forecastPath, *bordersPath))
}

func run(forecastPath, bordersPath string) int {
	fmt.Println("=== Forecast Output Validation ===")
	fmt.Println()

	var f forecastDoc
	if err := loadJSON(forecastPath, &f); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load forecast: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateHeader(&f),
		validateProjection("forecast projection", f.Projection),
		validateCells(&f),
	}

	if bordersPath != "" {
		var b bordersDoc
		if err := loadJSON(bordersPath, &b); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load borders: %v\n", err)
			return 1
		}
		phases = append(phases,
			validateProjection("borders projection", b.Projection),
			validateRings(&b),
			validateSameProjection(f.Projection, b.Projection),
		)
	}

	return report(phases, &f)
}

func report(phases []*phase, f *forecastDoc) int {
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	if f.Features != nil {
		fmt.Printf("\nCells: %d\n", len(*f.Features))
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadJSON(path string, v any) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	var r io.Reader = fh
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(fh)
		if err != nil {
			return fmt.Errorf("gunzip: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	return json.NewDecoder(r).Decode(v)
}

// ── Phases ──

func validateHeader(f *forecastDoc) *phase {
	p := &phase{name: "Header fields"}

	check := func(key string, v *string, ok func(string) bool) {
		switch {
		case v == nil:
			p.errorf("%s: missing", key)
		case !ok(*v):
			p.errorf("%s: malformed value %q", key, *v)
		}
	}
	layout := func(l string) func(string) bool {
		return func(s string) bool {
			_, err := time.Parse(l, s)
			return err == nil
		}
	}

	check("run_date", f.RunDate, layout("20060102"))
	check("run_hour", f.RunHour, func(s string) bool { return len(s) == 2 && layout("15")(s) })
	check("forecast", f.Forecast, forecastPattern.MatchString)
	check("valid", f.Valid, validPattern.MatchString)
	check("generated", f.Generated, layout(time.RFC3339))

	if f.Valid != nil && validPattern.MatchString(*f.Valid) {
		start, _ := time.Parse("15:04", (*f.Valid)[:5])
		end, _ := time.Parse("15:04", (*f.Valid)[6:11])
		if end.Sub(start) != time.Hour && start.Sub(end) != 23*time.Hour {
			p.errorf("valid: %q is not a one-hour window", *f.Valid)
		}
	}
	return p
}

func validateProjection(name string, s *projection.Spec) *phase {
	p := &phase{name: name}
	if s == nil {
		p.errorf("projection: missing")
		return p
	}
	params, err := s.Params()
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if _, err := projection.New(params); err != nil {
		p.errorf("%v", err)
	}
	return p
}

func validateCells(f *forecastDoc) *phase {
	p := &phase{name: "Cells"}
	if f.Features == nil {
		p.errorf("features: missing (an empty result is [])")
		return p
	}
	for i, c := range *f.Features {
		checkCell(p, i, c)
	}
	return p
}

func checkCell(p *phase, i int, c cellDoc) {
	fields := []struct {
		key string
		v   *float64
	}{
		{"x", c.X}, {"y", c.Y}, {"dx", c.DX}, {"dy", c.DY}, {"prob", c.Prob},
	}
	for _, fld := range fields {
		switch {
		case fld.v == nil:
			p.errorf("features[%d].%s: missing", i, fld.key)
			return
		case !finite(*fld.v):
			p.errorf("features[%d].%s: not finite", i, fld.key)
			return
		}
	}
	if *c.DX <= 0 || *c.DY <= 0 {
		p.errorf("features[%d]: dx=%g dy=%g must be positive", i, *c.DX, *c.DY)
	}
	if *c.Prob <= 0 || *c.Prob >= 1 {
		p.errorf("features[%d].prob: %g outside (0, 1)", i, *c.Prob)
	}
}

func validateRings(b *bordersDoc) *phase {
	p := &phase{name: "Border rings"}
	if b.Features == nil {
		p.errorf("features: missing")
		return p
	}
	for i, ring := range *b.Features {
		if len(ring) < 4 {
			p.errorf("features[%d]: %d points, need at least 4", i, len(ring))
			continue
		}
		for j, pt := range ring {
			if len(pt) != 2 || !finite(pt[0]) || !finite(pt[1]) {
				p.errorf("features[%d][%d]: want two finite coordinates", i, j)
			}
		}
		first, last := ring[0], ring[len(ring)-1]
		if len(first) == 2 && len(last) == 2 && (first[0] != last[0] || first[1] != last[1]) {
			p.errorf("features[%d]: ring is not closed", i)
		}
	}
	return p
}

func validateSameProjection(a, b *projection.Spec) *phase {
	p := &phase{name: "Forecast and borders share a projection"}
	if a == nil || b == nil {
		p.errorf("projection missing from one document")
		return p
	}
	pa, errA := a.Params()
	pb, errB := b.Params()
	if errA != nil || errB != nil {
		p.errorf("projection unreadable")
		return p
	}
	if pa != pb {
		p.errorf("forecast %+v, borders %+v", pa, pb)
	}
	return p
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
