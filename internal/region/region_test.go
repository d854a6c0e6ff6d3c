package region

import (
	"testing"

	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/couchcryptid/storm-prob-grid/internal/grid"
	"github.com/couchcryptid/storm-prob-grid/internal/projection"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square covers 38-40N, 97-95W.
var square = orb.MultiPolygon{{
	{{-97, 38}, {-95, 38}, {-95, 40}, {-97, 40}, {-97, 38}},
}}

// diamond has corners 0.8 degrees from (39N, 96W).
var diamond = orb.MultiPolygon{{
	{{-96, 38.2}, {-95.2, 39}, {-96, 39.8}, {-96.8, 39}, {-96, 38.2}},
}}

func newProjector(t *testing.T) *projection.Projector {
	t.Helper()
	p, err := projection.New(domain.RAPParams)
	require.NoError(t, err)
	return p
}

func newRegion(t *testing.T, mp orb.MultiPolygon, opts Options) (*Region, *projection.Projector) {
	t.Helper()
	p := newProjector(t)
	r, err := New(mp, p, opts)
	require.NoError(t, err)
	return r, p
}

// project3x3 projects the 3x3 one-degree grid centered on (39N, 96W).
func project3x3(t *testing.T, p *projection.Projector) *grid.Projected {
	t.Helper()
	g := domain.NewGrid(3, 3)
	for i := range 3 {
		for j := range 3 {
			g.Lat[i][j] = 38 + float64(i)
			g.Lon[i][j] = -97 + float64(j)
		}
	}
	pg, err := grid.Project(g, p)
	require.NoError(t, err)
	return pg
}

func kept(r *Region, pg *grid.Projected, policy Policy) [][2]int {
	var out [][2]int
	for i := range pg.Rows() {
		for j := range pg.Cols() {
			if r.Keep(policy, pg.X[i][j], pg.Y[i][j], pg.DX[i][j], pg.DY[i][j]) {
				out = append(out, [2]int{i, j})
			}
		}
	}
	return out
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"strict", PolicyStrict, false},
		{"Intersection", PolicyIntersection, false},
		{" strict ", PolicyStrict, false},
		{"touching", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				var cfgErr *domain.ConfigurationError
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, "MEMBERSHIP_POLICY", cfgErr.Key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMembership_String(t *testing.T) {
	assert.Equal(t, "outside", Outside.String())
	assert.Equal(t, "touching", Touching.String())
	assert.Equal(t, "inside", Inside.String())
	assert.Equal(t, "Membership(7)", Membership(7).String())
}

func TestClassify_Points(t *testing.T) {
	r, p := newRegion(t, square, DefaultOptions)

	tests := []struct {
		name     string
		lat, lon float64
		want     Membership
	}{
		{"center", 39, -96, Inside},
		{"far outside", 45, -110, Outside},
		{"just outside", 39, -94.9, Outside},
		{"corner vertex", 38, -97, Touching},
		{"edge midpoint", 40, -96, Touching},
		{"densified edge point", 39, -95, Touching},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, err := p.Forward(tt.lat, tt.lon)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Classify(orb.Point{x, y}))
		})
	}
}

func TestClassify_Boxes(t *testing.T) {
	r, p := newRegion(t, square, DefaultOptions)
	cx, cy, err := p.Forward(39, -96)
	require.NoError(t, err)

	assert.Equal(t, Inside, r.Classify(CellBox(cx, cy, 1000, 1000)))
	assert.Equal(t, Touching, r.Classify(CellBox(cx, cy, 1e6, 1e6)), "box containing the whole region meets its boundary")

	fx, fy, err := p.Forward(45, -110)
	require.NoError(t, err)
	assert.Equal(t, Outside, r.Classify(CellBox(fx, fy, 1000, 1000)))
}

// The square's corners sit exactly on the outer grid points, so every outer
// point is on the boundary and every outer cell box overlaps it by a quarter
// cell or more.
func TestKeep_SquareRegion(t *testing.T) {
	r, p := newRegion(t, square, DefaultOptions)
	pg := project3x3(t, p)

	assert.Equal(t, [][2]int{{1, 1}}, kept(r, pg, PolicyStrict))
	assert.Len(t, kept(r, pg, PolicyIntersection), 9)
}

// The diamond clears the four edge-neighbor points but reaches into their
// boxes, and stays clear of the corner boxes.
func TestKeep_DiamondRegion(t *testing.T) {
	r, p := newRegion(t, diamond, DefaultOptions)
	pg := project3x3(t, p)

	assert.Equal(t, [][2]int{{1, 1}}, kept(r, pg, PolicyStrict))
	assert.Equal(t, [][2]int{{0, 1}, {1, 0}, {1, 1}, {1, 2}, {2, 1}}, kept(r, pg, PolicyIntersection))
}

func TestKeep_StrictIsSubsetOfIntersection(t *testing.T) {
	r, p := newRegion(t, diamond, DefaultOptions)

	g := domain.NewGrid(20, 20)
	for i := range 20 {
		for j := range 20 {
			g.Lat[i][j] = 37 + 0.2*float64(i)
			g.Lon[i][j] = -98 + 0.2*float64(j)
		}
	}
	pg, err := grid.Project(g, p)
	require.NoError(t, err)

	strict, inter := 0, 0
	for i := range pg.Rows() {
		for j := range pg.Cols() {
			s := r.Keep(PolicyStrict, pg.X[i][j], pg.Y[i][j], pg.DX[i][j], pg.DY[i][j])
			n := r.Keep(PolicyIntersection, pg.X[i][j], pg.Y[i][j], pg.DX[i][j], pg.DY[i][j])
			if s {
				strict++
				assert.True(t, n, "strict cell (%d, %d) missing from intersection", i, j)
			}
			if n {
				inter++
			}
		}
	}
	assert.Positive(t, strict)
	assert.Greater(t, inter, strict)
}

func TestNew_DissolvesSharedEdges(t *testing.T) {
	halves := orb.MultiPolygon{
		{{{-97, 38}, {-96, 38}, {-96, 40}, {-97, 40}, {-97, 38}}},
		{{{-96, 38}, {-95, 38}, {-95, 40}, {-96, 40}, {-96, 38}}},
	}
	r, p := newRegion(t, halves, DefaultOptions)

	x, y, err := p.Forward(39, -96)
	require.NoError(t, err)
	assert.Equal(t, Inside, r.Classify(orb.Point{x, y}), "point on the shared edge is interior to the union")
	assert.Len(t, r.Planar(), 2, "planar polygons keep the internal line")

	mask, err := r.Mask()
	require.NoError(t, err)
	assert.Len(t, mask, 1)
}

func TestNew_DissolvesReversedDiagonalEdge(t *testing.T) {
	// Both triangles share the diagonal but walk it in opposite directions.
	triangles := orb.MultiPolygon{
		{{{-98, 37.1}, {-95.3, 37.1}, {-95.3, 39.7}, {-98, 37.1}}},
		{{{-98, 37.1}, {-95.3, 39.7}, {-98, 39.7}, {-98, 37.1}}},
	}
	r, p := newRegion(t, triangles, DefaultOptions)

	mask, err := r.Mask()
	require.NoError(t, err)
	require.Len(t, mask, 1)
	assert.Len(t, mask[0], 1, "no sliver rings left along the shared edge")

	for _, f := range []float64{0.13, 0.5, 0.77} {
		lon := -98 + 2.7*f
		lat := 37.1 + 2.6*f
		x, y, err := p.Forward(lat, lon)
		require.NoError(t, err)
		assert.Equal(t, Inside, r.Classify(orb.Point{x, y}), "point at %.2f along the shared edge", f)
	}
}

func TestNew_Hole(t *testing.T) {
	withHole := orb.MultiPolygon{{
		{{-97, 38}, {-95, 38}, {-95, 40}, {-97, 40}, {-97, 38}},
		{{-96.5, 38.5}, {-96.5, 39.5}, {-95.5, 39.5}, {-95.5, 38.5}, {-96.5, 38.5}},
	}}
	r, p := newRegion(t, withHole, DefaultOptions)

	x, y, err := p.Forward(39, -96)
	require.NoError(t, err)
	assert.Equal(t, Outside, r.Classify(orb.Point{x, y}))

	x, y, err = p.Forward(38.25, -96)
	require.NoError(t, err)
	assert.Equal(t, Inside, r.Classify(orb.Point{x, y}))
}

func TestNew_ClosesOpenRing(t *testing.T) {
	open := orb.MultiPolygon{{{{-97, 38}, {-95, 38}, {-95, 40}, {-97, 40}}}}
	r, p := newRegion(t, open, DefaultOptions)

	x, y, err := p.Forward(39, -96)
	require.NoError(t, err)
	assert.Equal(t, Inside, r.Classify(orb.Point{x, y}))
}

func TestNew_GeometryErrors(t *testing.T) {
	bowtie := orb.MultiPolygon{{{{-97, 38}, {-95, 40}, {-95, 38}, {-97, 40}, {-97, 38}}}}

	tests := []struct {
		name string
		mp   orb.MultiPolygon
	}{
		{"empty", orb.MultiPolygon{}},
		{"no rings", orb.MultiPolygon{{}}},
		{"too few points", orb.MultiPolygon{{{{-97, 38}, {-95, 38}, {-97, 38}}}}},
		{"self intersecting", bowtie},
	}

	p := newProjector(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.mp, p, DefaultOptions)
			var geomErr *domain.GeometryError
			require.ErrorAs(t, err, &geomErr)
		})
	}
}

func TestNew_SelfIntersectionReason(t *testing.T) {
	bowtie := orb.MultiPolygon{{{{-97, 38}, {-95, 40}, {-95, 38}, {-97, 40}, {-97, 38}}}}
	_, err := New(bowtie, newProjector(t), DefaultOptions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Self-intersection")
}

func TestNew_RepairBowtie(t *testing.T) {
	// A zero-width buffer keeps one lobe of the bowtie.
	bowtie := orb.MultiPolygon{{{{-97, 38}, {-95, 40}, {-95, 38}, {-97, 40}, {-97, 38}}}}
	opts := DefaultOptions
	opts.Repair = true

	r, _ := newRegion(t, bowtie, opts)
	assert.Positive(t, r.Area())
}

func TestNew_ZeroToleranceUsesExactBoundary(t *testing.T) {
	opts := DefaultOptions
	opts.Tolerance = 0
	r, p := newRegion(t, square, opts)

	x, y, err := p.Forward(40, -96)
	require.NoError(t, err)
	assert.Equal(t, Touching, r.Classify(orb.Point{x, y}))
}

func TestDensify(t *testing.T) {
	ring := orb.Ring{{-97, 38}, {-95, 38}, {-95, 40}, {-97, 38}}
	out := Densify(orb.MultiPolygon{{ring}}, 0.25)[0][0]

	assert.Equal(t, orb.Point{-97, 38}, out[0])
	assert.Equal(t, orb.Point{-97, 38}, out[len(out)-1])
	assert.Contains(t, out, orb.Point{-96, 38})
	assert.Contains(t, out, orb.Point{-95, 39})
	// 8 + 8 + 8 interior steps plus the closing point.
	assert.Len(t, out, 25)

	assert.Equal(t, ring, Densify(orb.MultiPolygon{{ring}}, 0)[0][0])
}

func TestDensify_SharedEdgeIsDirectionIndependent(t *testing.T) {
	edges := [][2]orb.Point{
		{{-98, 37.1}, {-95.3, 39.7}},
		{{-124.213, 41.998}, {-111.046, 36.999}},
		{{-94.617, 36.499}, {-100.0003, 34.56}},
		{{-80.5, 25.1}, {-80.5, 31.07}},
	}
	for _, e := range edges {
		forward := densifyRing(orb.Ring{e[0], e[1]}, 0.25)
		backward := densifyRing(orb.Ring{e[1], e[0]}, 0.25)
		require.Len(t, backward, len(forward))
		for i := range forward {
			assert.Equal(t, forward[i], backward[len(backward)-1-i], "edge %v vertex %d", e, i)
		}
	}
}

func TestCellBox(t *testing.T) {
	b := CellBox(10, 20, 4, 6)
	assert.Equal(t, orb.Point{8, 17}, b.Min)
	assert.Equal(t, orb.Point{12, 23}, b.Max)
}
