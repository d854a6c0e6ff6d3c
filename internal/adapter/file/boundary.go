package file

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Filter selects boundary features by one attribute. With Include set only
// the listed values are kept; otherwise Exclude values are dropped. Values
// compare case-insensitively. An empty Field keeps everything.
type Filter struct {
	Field   string
	Include []string
	Exclude []string
}

// Keep reports whether a feature whose Field attribute is v passes.
func (f Filter) Keep(v string) bool {
	if f.Field == "" {
		return true
	}
	match := func(list []string) bool {
		return slices.ContainsFunc(list, func(s string) bool { return strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(v)) })
	}
	if len(f.Include) > 0 {
		return match(f.Include)
	}
	return !match(f.Exclude)
}

// BoundaryReader loads region polygons in lon/lat degrees. The format follows
// the file extension: .json (polygons document), .geojson or .shp.
// It implements pipeline.BoundarySource.
type BoundaryReader struct {
	path   string
	filter Filter
	logger *slog.Logger
}

// NewBoundaryReader creates a reader for the boundary file at path.
func NewBoundaryReader(path string, filter Filter, logger *slog.Logger) *BoundaryReader {
	return &BoundaryReader{path: path, filter: filter, logger: logger}
}

// LoadBoundary reads, filters and returns the boundary polygons.
func (r *BoundaryReader) LoadBoundary(_ context.Context) (orb.MultiPolygon, error) {
	var (
		mp      orb.MultiPolygon
		dropped int
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(r.path, ".gz"))); ext {
	case ".json":
		mp, err = r.readPolygons()
	case ".geojson":
		mp, dropped, err = r.readGeoJSON()
	case ".shp":
		mp, dropped, err = r.readShapefile()
	default:
		return nil, &domain.ConfigurationError{Key: "BOUNDARY_INPUT", Reason: fmt.Sprintf("unsupported boundary format %q", ext)}
	}
	if err != nil {
		return nil, err
	}
	if len(mp) == 0 {
		return nil, &domain.GeometryError{Reason: fmt.Sprintf("no boundary polygons in %s after filtering", r.path)}
	}

	r.logger.Info("boundary loaded", "path", r.path, "polygons", len(mp), "dropped_features", dropped)
	return mp, nil
}

type polygonsDocument struct {
	Polygons orb.MultiPolygon `json:"polygons"`
}

func (r *BoundaryReader) readPolygons() (orb.MultiPolygon, error) {
	data, err := readMaybeGzip(r.path)
	if err != nil {
		return nil, err
	}
	var doc polygonsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &domain.GeometryError{Reason: "decode polygons document", Err: err}
	}
	return doc.Polygons, nil
}

func (r *BoundaryReader) readGeoJSON() (orb.MultiPolygon, int, error) {
	data, err := readMaybeGzip(r.path)
	if err != nil {
		return nil, 0, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, &domain.GeometryError{Reason: "decode geojson", Err: err}
	}

	var (
		out     orb.MultiPolygon
		dropped int
	)
	for i, f := range fc.Features {
		if r.filter.Field != "" {
			v, ok := f.Properties[r.filter.Field]
			if !ok {
				return nil, 0, &domain.ConfigurationError{Key: "BOUNDARY_FIELD", Reason: fmt.Sprintf("feature %d has no %q property", i, r.filter.Field)}
			}
			if !r.filter.Keep(fmt.Sprint(v)) {
				dropped++
				continue
			}
		}
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			out = append(out, g)
		case orb.MultiPolygon:
			out = append(out, g...)
		default:
			return nil, 0, &domain.GeometryError{Reason: fmt.Sprintf("feature %d is a %s, want Polygon or MultiPolygon", i, f.Geometry.GeoJSONType())}
		}
	}
	return out, dropped, nil
}

func (r *BoundaryReader) readShapefile() (orb.MultiPolygon, int, error) {
	dec, err := shp.NewDecoder(r.path)
	if err != nil {
		return nil, 0, fmt.Errorf("open shapefile %s: %w", r.path, err)
	}
	defer dec.Close()

	toLonLat, err := r.shapefileTransform(dec)
	if err != nil {
		return nil, 0, err
	}

	var fields []string
	if r.filter.Field != "" {
		fields = []string{r.filter.Field}
	}

	var (
		out     orb.MultiPolygon
		dropped int
	)
	for row := 0; ; row++ {
		g, attrs, more := dec.DecodeRowFields(fields...)
		if !more {
			break
		}
		if r.filter.Field != "" {
			v, ok := attrs[r.filter.Field]
			if !ok {
				return nil, 0, &domain.ConfigurationError{Key: "BOUNDARY_FIELD", Reason: fmt.Sprintf("shapefile has no %q attribute", r.filter.Field)}
			}
			if !r.filter.Keep(v) {
				dropped++
				continue
			}
		}
		if toLonLat != nil {
			if g, err = g.Transform(toLonLat); err != nil {
				return nil, 0, &domain.GeometryError{Reason: fmt.Sprintf("reproject shapefile row %d", row), Err: err}
			}
		}
		polys, err := polygonsOf(g)
		if err != nil {
			return nil, 0, &domain.GeometryError{Reason: fmt.Sprintf("shapefile row %d", row), Err: err}
		}
		out = append(out, polys...)
	}
	if err := dec.Error(); err != nil {
		return nil, 0, fmt.Errorf("read shapefile %s: %w", r.path, err)
	}
	return out, dropped, nil
}

// shapefileTransform returns the transform from the shapefile's .prj to
// lon/lat degrees, or nil when the file is already geographic or has no .prj.
func (r *BoundaryReader) shapefileTransform(dec *shp.Decoder) (proj.Transformer, error) {
	src, err := dec.SR()
	if err != nil {
		r.logger.Debug("shapefile has no usable projection, assuming lon/lat", "path", r.path, "error", err)
		return nil, nil
	}
	if src.Name == "longlat" {
		return nil, nil
	}
	dst, err := proj.Parse("+proj=longlat +datum=WGS84 +no_defs")
	if err != nil {
		return nil, fmt.Errorf("parse lon/lat reference: %w", err)
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, &domain.GeometryError{Reason: "shapefile projection", Err: err}
	}
	return t, nil
}

// polygonsOf converts a decoded shape to orb polygons. Shapefile polygons are
// a flat list of rings, so exteriors and holes are told apart by nesting.
func polygonsOf(g geom.Geom) (orb.MultiPolygon, error) {
	switch s := g.(type) {
	case geom.Polygon:
		return splitRings(paths(s)), nil
	case geom.MultiPolygon:
		var rings []orb.Ring
		for _, p := range s {
			rings = append(rings, paths(p)...)
		}
		return splitRings(rings), nil
	default:
		return nil, fmt.Errorf("unsupported shape %T, want polygon", g)
	}
}

func paths(p geom.Polygon) []orb.Ring {
	out := make([]orb.Ring, 0, len(p))
	for _, path := range p {
		if len(path) == 0 {
			continue
		}
		ring := make(orb.Ring, len(path))
		for i, pt := range path {
			ring[i] = orb.Point{pt.X, pt.Y}
		}
		out = append(out, ring)
	}
	return out
}

// splitRings assigns rings largest first: a ring inside an exterior, and not
// inside one of its holes, is a hole of that exterior. Anything else starts a
// new polygon, which also covers islands inside lakes. Winding order is
// ignored.
func splitRings(rings []orb.Ring) orb.MultiPolygon {
	sorted := slices.Clone(rings)
	slices.SortStableFunc(sorted, func(a, b orb.Ring) int {
		return cmp.Compare(math.Abs(planar.Area(b)), math.Abs(planar.Area(a)))
	})

	var out orb.MultiPolygon
	for _, ring := range sorted {
		owner := -1
		for i, poly := range out {
			if planar.RingContains(poly[0], ring[0]) && !inHole(poly, ring[0]) {
				owner = i
				break
			}
		}
		if owner < 0 {
			out = append(out, orb.Polygon{ring})
			continue
		}
		out[owner] = append(out[owner], ring)
	}
	return out
}

func inHole(p orb.Polygon, pt orb.Point) bool {
	for _, hole := range p[1:] {
		if planar.RingContains(hole, pt) {
			return true
		}
	}
	return false
}
