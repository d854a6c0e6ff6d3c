// Package region decides whether projected grid cells fall inside a boundary
// such as the contiguous United States.
//
// The boundary arrives as lon/lat polygons. It is densified, projected with the
// same Projector as the grid, dissolved into a single mask and prepared once.
// Each classification is then a prepared-geometry predicate in planar meters.
package region

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/couchcryptid/storm-prob-grid/internal/projection"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/twpayne/go-geos"
)

// Policy selects how a cell is tested against the region.
type Policy string

const (
	// PolicyStrict keeps a cell when its center lies strictly inside.
	PolicyStrict Policy = "strict"
	// PolicyIntersection keeps a cell when its extent box touches the region
	// at all.
	PolicyIntersection Policy = "intersection"
)

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyStrict, PolicyIntersection:
		return p, nil
	default:
		return "", &domain.ConfigurationError{Key: "MEMBERSHIP_POLICY", Reason: fmt.Sprintf("unknown policy %q (want strict or intersection)", s)}
	}
}

// Membership is the position of a shape relative to the region.
type Membership int

const (
	Outside Membership = iota
	Touching
	Inside
)

func (m Membership) String() string {
	switch m {
	case Outside:
		return "outside"
	case Touching:
		return "touching"
	case Inside:
		return "inside"
	default:
		return fmt.Sprintf("Membership(%d)", int(m))
	}
}

// Options tune how the boundary is prepared.
type Options struct {
	// DensifyDegrees is the longest lon/lat edge kept before projection.
	// Straight geographic edges curve under LCC, so long edges are split.
	// Zero disables densification.
	DensifyDegrees float64
	// Tolerance is the half-width, in meters, of the band around the boundary
	// that counts as touching. Zero uses the exact boundary.
	Tolerance float64
	// Repair fixes invalid polygons with a zero-width buffer instead of
	// rejecting them.
	Repair bool
}

// DefaultOptions match the operational configuration.
var DefaultOptions = Options{DensifyDegrees: 0.25, Tolerance: 1}

// Region is a prepared planar boundary. It is read-only after New and safe
// for concurrent Classify calls.
type Region struct {
	planar   orb.MultiPolygon
	mask     *geos.Geom
	interior *geos.PrepGeom
	edge     *geos.PrepGeom
	params   domain.ProjectionParams
}

// New densifies and projects boundary with p, validates every polygon and
// dissolves them into one mask. Shared edges between neighbouring polygons
// disappear in the mask, so a cell on a state line is not on the boundary.
func New(boundary orb.MultiPolygon, p *projection.Projector, opts Options) (*Region, error) {
	if len(boundary) == 0 {
		return nil, &domain.GeometryError{Reason: "empty boundary"}
	}
	closed, err := closeRings(boundary)
	if err != nil {
		return nil, err
	}

	planar, err := p.ProjectMultiPolygon(Densify(closed, opts.DensifyDegrees))
	if err != nil {
		return nil, &domain.GeometryError{Reason: "project boundary", Err: err}
	}

	parts := make([]string, 0, len(planar))
	for i, poly := range planar {
		g, err := geos.NewGeomFromWKT(wkt.MarshalString(poly))
		if err != nil {
			return nil, &domain.GeometryError{Reason: fmt.Sprintf("polygon %d", i), Err: err}
		}
		if !g.IsValid() {
			if !opts.Repair {
				return nil, &domain.GeometryError{Reason: fmt.Sprintf("polygon %d is invalid: %s", i, g.IsValidReason())}
			}
			if g, err = repair(g); err != nil {
				return nil, &domain.GeometryError{Reason: fmt.Sprintf("repair polygon %d", i), Err: err}
			}
		}
		parts = append(parts, g.ToWKT())
	}

	collection, err := geos.NewGeomFromWKT("GEOMETRYCOLLECTION(" + strings.Join(parts, ",") + ")")
	if err != nil {
		return nil, &domain.GeometryError{Reason: "assemble boundary", Err: err}
	}
	mask, err := guard(collection.UnaryUnion)
	if err != nil {
		return nil, &domain.GeometryError{Reason: "dissolve boundary", Err: err}
	}
	if mask.IsEmpty() {
		return nil, &domain.GeometryError{Reason: "boundary has no area"}
	}

	edge, err := guard(mask.Boundary)
	if err != nil {
		return nil, &domain.GeometryError{Reason: "boundary line", Err: err}
	}
	if opts.Tolerance > 0 {
		line := edge
		if edge, err = guard(func() *geos.Geom { return line.Buffer(opts.Tolerance, 8) }); err != nil {
			return nil, &domain.GeometryError{Reason: "boundary band", Err: err}
		}
	}

	return &Region{
		planar:   planar,
		mask:     mask,
		interior: mask.Prepare(),
		edge:     edge.Prepare(),
		params:   p.Params(),
	}, nil
}

// Classify places shape relative to the region. shape is a cell center
// (orb.Point), a cell box (orb.Bound) or a polygon in projected meters.
// Anything meeting the boundary band is Touching, even if it also covers
// interior area.
func (r *Region) Classify(shape orb.Geometry) Membership {
	g := toGEOS(shape)
	defer g.Destroy()

	if r.edge.Intersects(g) {
		return Touching
	}
	if r.interior.Intersects(g) {
		return Inside
	}
	return Outside
}

// Keep applies policy to the cell centered at (x, y) with extent dx by dy.
func (r *Region) Keep(policy Policy, x, y, dx, dy float64) bool {
	if policy == PolicyIntersection {
		return r.Classify(CellBox(x, y, dx, dy)) != Outside
	}
	return r.Classify(orb.Point{x, y}) == Inside
}

// Planar returns the projected input polygons before dissolving. These keep
// internal lines such as state borders and feed the borders output.
func (r *Region) Planar() orb.MultiPolygon { return r.planar }

// Mask returns the dissolved region as planar polygons.
func (r *Region) Mask() (orb.MultiPolygon, error) {
	g, err := wkt.Unmarshal(r.mask.ToWKT())
	if err != nil {
		return nil, fmt.Errorf("decode mask: %w", err)
	}
	return asMultiPolygon(g), nil
}

// Params returns the projection the region was prepared with.
func (r *Region) Params() domain.ProjectionParams { return r.params }

// Area returns the planar area of the dissolved mask in square meters.
func (r *Region) Area() float64 { return r.mask.Area() }

// CellBox is the axis-aligned box of a cell centered at (x, y).
func CellBox(x, y, dx, dy float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{x - dx/2, y - dy/2},
		Max: orb.Point{x + dx/2, y + dy/2},
	}
}

// Densify splits every edge longer than step degrees into equal parts. New
// vertices are interpolated from the lexicographically smaller end point, so
// an edge shared by two polygons gets bit-identical vertices whichever way
// each polygon walks it.
func Densify(mp orb.MultiPolygon, step float64) orb.MultiPolygon {
	if !(step > 0) {
		return mp
	}
	out := make(orb.MultiPolygon, len(mp))
	for i, poly := range mp {
		out[i] = make(orb.Polygon, len(poly))
		for k, ring := range poly {
			out[i][k] = densifyRing(ring, step)
		}
	}
	return out
}

func densifyRing(r orb.Ring, step float64) orb.Ring {
	if len(r) < 2 {
		return r
	}
	out := make(orb.Ring, 0, len(r))
	for k := 0; k < len(r)-1; k++ {
		a, b := r[k], r[k+1]
		n := int(math.Ceil(math.Max(math.Abs(b[0]-a[0]), math.Abs(b[1]-a[1])) / step))
		if n == 0 {
			continue
		}
		lo, hi, reversed := a, b, false
		if less(b, a) {
			lo, hi, reversed = b, a, true
		}
		out = append(out, a)
		for s := 1; s < n; s++ {
			m := s
			if reversed {
				m = n - s
			}
			f := float64(m) / float64(n)
			out = append(out, orb.Point{lo[0] + (hi[0]-lo[0])*f, lo[1] + (hi[1]-lo[1])*f})
		}
	}
	return append(out, r[len(r)-1])
}

func less(a, b orb.Point) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

// closeRings checks coordinates and closes open rings. A ring needs at least
// three distinct corners.
func closeRings(mp orb.MultiPolygon) (orb.MultiPolygon, error) {
	out := make(orb.MultiPolygon, 0, len(mp))
	for i, poly := range mp {
		if len(poly) == 0 {
			return nil, &domain.GeometryError{Reason: fmt.Sprintf("polygon %d has no rings", i)}
		}
		closed := make(orb.Polygon, len(poly))
		for k, ring := range poly {
			for _, pt := range ring {
				if math.IsNaN(pt[0]) || math.IsNaN(pt[1]) || math.IsInf(pt[0], 0) || math.IsInf(pt[1], 0) {
					return nil, &domain.GeometryError{Reason: fmt.Sprintf("polygon %d ring %d has a non-finite coordinate", i, k)}
				}
			}
			r := append(orb.Ring(nil), ring...)
			if len(r) > 0 && r[0] != r[len(r)-1] {
				r = append(r, r[0])
			}
			if len(r) < 4 {
				return nil, &domain.GeometryError{Reason: fmt.Sprintf("polygon %d ring %d has %d points, need at least 4", i, k, len(r))}
			}
			closed[k] = r
		}
		out = append(out, closed)
	}
	return out, nil
}

func repair(g *geos.Geom) (*geos.Geom, error) {
	fixed, err := guard(func() *geos.Geom { return g.Buffer(0, 32) })
	if err != nil {
		return nil, err
	}
	if fixed.IsEmpty() {
		return nil, errors.New("zero-width buffer removed all area")
	}
	if !fixed.IsValid() {
		return nil, errors.New(fixed.IsValidReason())
	}
	return fixed, nil
}

// guard turns a GEOS panic into an error.
func guard(f func() *geos.Geom) (g *geos.Geom, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("geos: %v", r)
		}
	}()
	return f(), nil
}

func toGEOS(shape orb.Geometry) *geos.Geom {
	switch s := shape.(type) {
	case orb.Point:
		return geos.NewPoint([]float64{s[0], s[1]})
	case orb.Bound:
		return geos.NewPolygon([][][]float64{{
			{s.Min[0], s.Min[1]},
			{s.Max[0], s.Min[1]},
			{s.Max[0], s.Max[1]},
			{s.Min[0], s.Max[1]},
			{s.Min[0], s.Min[1]},
		}})
	default:
		g, err := geos.NewGeomFromWKT(wkt.MarshalString(shape))
		if err != nil {
			panic(fmt.Sprintf("region: unsupported shape %T: %v", shape, err))
		}
		return g
	}
}

func asMultiPolygon(g orb.Geometry) orb.MultiPolygon {
	switch v := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{v}
	case orb.MultiPolygon:
		return v
	case orb.Collection:
		var out orb.MultiPolygon
		for _, c := range v {
			out = append(out, asMultiPolygon(c)...)
		}
		return out
	default:
		return nil
	}
}
