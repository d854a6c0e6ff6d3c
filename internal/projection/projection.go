// Package projection maps geographic coordinates into the Lambert Conformal
// Conic plane of the model grid.
//
// A single Projector must serve both the grid and the region boundary. Two
// projectors built from slightly different parameters produce a silent spatial
// offset, so callers build one and pass it along.
package projection

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/ctessum/geom/proj"
	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb"
)

// Spec is the wire form of the projection object. Pointers tell a missing key
// apart from a zero value (lat_0 = 0 is legal).
type Spec struct {
	Lat1 *float64 `json:"lat_1" validate:"required"`
	Lat2 *float64 `json:"lat_2" validate:"required"`
	Lat0 *float64 `json:"lat_0" validate:"required"`
	Lon0 *float64 `json:"lon_0" validate:"required"`
	A    *float64 `json:"a" validate:"required"`
	B    *float64 `json:"b" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// SpecOf returns the wire form of p.
func SpecOf(p domain.ProjectionParams) Spec {
	return Spec{Lat1: &p.Lat1, Lat2: &p.Lat2, Lat0: &p.Lat0, Lon0: &p.Lon0, A: &p.A, B: &p.B}
}

// Params resolves s, reporting every missing key as a
// ConfigurationError.
func (s Spec) Params() (domain.ProjectionParams, error) {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return domain.ProjectionParams{}, fmt.Errorf("validate projection: %w", err)
		}
		errs := make([]error, 0, len(verrs))
		for _, fe := range verrs {
			errs = append(errs, &domain.ConfigurationError{Key: fe.Field(), Reason: "missing projection parameter"})
		}
		return domain.ProjectionParams{}, errors.Join(errs...)
	}
	return domain.ProjectionParams{Lat1: *s.Lat1, Lat2: *s.Lat2, Lat0: *s.Lat0, Lon0: *s.Lon0, A: *s.A, B: *s.B}, nil
}

// Projector converts between lat/lon degrees and LCC meters. It is immutable
// and safe to share.
type Projector struct {
	params  domain.ProjectionParams
	forward proj.Transformer
	inverse proj.Transformer
}

// New validates p and builds the forward and inverse transforms. All
// parameter problems surface here as ConfigurationError.
func New(p domain.ProjectionParams) (*Projector, error) {
	if err := checkParams(p); err != nil {
		return nil, err
	}

	lcc, err := proj.Parse(Proj4(p))
	if err != nil {
		return nil, &domain.ConfigurationError{Key: "projection", Reason: err.Error()}
	}
	geographic, err := proj.Parse(longlat(p))
	if err != nil {
		return nil, &domain.ConfigurationError{Key: "projection", Reason: err.Error()}
	}

	forward, err := geographic.NewTransform(lcc)
	if err != nil {
		return nil, &domain.ConfigurationError{Key: "projection", Reason: fmt.Sprintf("forward transform: %v", err)}
	}
	inverse, err := lcc.NewTransform(geographic)
	if err != nil {
		return nil, &domain.ConfigurationError{Key: "projection", Reason: fmt.Sprintf("inverse transform: %v", err)}
	}

	return &Projector{params: p, forward: forward, inverse: inverse}, nil
}

// Params returns the parameters the projector was built from.
func (p *Projector) Params() domain.ProjectionParams { return p.params }

// Forward projects (lat, lon) degrees to (x, y) meters.
func (p *Projector) Forward(lat, lon float64) (x, y float64, err error) {
	x, y, err = p.forward(lon, lat)
	if err != nil {
		return 0, 0, fmt.Errorf("project (%g, %g): %w", lat, lon, err)
	}
	if !finite(x) || !finite(y) {
		return 0, 0, fmt.Errorf("project (%g, %g): non-finite result", lat, lon)
	}
	return x, y, nil
}

// Inverse maps (x, y) meters back to (lat, lon) degrees, with longitude in
// [-180, 180].
func (p *Projector) Inverse(x, y float64) (lat, lon float64, err error) {
	lon, lat, err = p.inverse(x, y)
	if err != nil {
		return 0, 0, fmt.Errorf("unproject (%g, %g): %w", x, y, err)
	}
	if !finite(lat) || !finite(lon) {
		return 0, 0, fmt.Errorf("unproject (%g, %g): non-finite result", x, y)
	}
	return lat, lon, nil
}

// ProjectRing projects a ring of [lon, lat] points.
func (p *Projector) ProjectRing(r orb.Ring) (orb.Ring, error) {
	out := make(orb.Ring, len(r))
	for i, pt := range r {
		x, y, err := p.Forward(pt.Lat(), pt.Lon())
		if err != nil {
			return nil, err
		}
		out[i] = orb.Point{x, y}
	}
	return out, nil
}

// ProjectMultiPolygon projects every ring of mp.
func (p *Projector) ProjectMultiPolygon(mp orb.MultiPolygon) (orb.MultiPolygon, error) {
	out := make(orb.MultiPolygon, len(mp))
	for i, poly := range mp {
		out[i] = make(orb.Polygon, len(poly))
		for k, ring := range poly {
			projected, err := p.ProjectRing(ring)
			if err != nil {
				return nil, fmt.Errorf("polygon %d ring %d: %w", i, k, err)
			}
			out[i][k] = projected
		}
	}
	return out, nil
}

// Proj4 renders p as a PROJ.4 definition string.
func Proj4(p domain.ProjectionParams) string {
	return fmt.Sprintf("+proj=lcc +lat_1=%s +lat_2=%s +lat_0=%s +lon_0=%s +x_0=0 +y_0=0 +a=%s +b=%s +units=m +no_defs",
		ftoa(p.Lat1), ftoa(p.Lat2), ftoa(p.Lat0), ftoa(p.Lon0), ftoa(p.A), ftoa(p.B))
}

// longlat is the geographic CRS on the same spheroid, so no datum shift is
// applied between the two.
func longlat(p domain.ProjectionParams) string {
	return fmt.Sprintf("+proj=longlat +a=%s +b=%s +no_defs", ftoa(p.A), ftoa(p.B))
}

func checkParams(p domain.ProjectionParams) error {
	named := []struct {
		key string
		v   float64
	}{
		{"lat_1", p.Lat1}, {"lat_2", p.Lat2}, {"lat_0", p.Lat0},
		{"lon_0", p.Lon0}, {"a", p.A}, {"b", p.B},
	}
	for _, n := range named {
		if !finite(n.v) {
			return &domain.ConfigurationError{Key: n.key, Reason: "must be finite"}
		}
	}

	switch {
	case p.A <= 0:
		return &domain.ConfigurationError{Key: "a", Reason: "semi-major axis must be positive"}
	case p.B <= 0 || p.B > p.A:
		return &domain.ConfigurationError{Key: "b", Reason: "semi-minor axis must be positive and no larger than a"}
	case math.Abs(p.Lat1) >= 90:
		return &domain.ConfigurationError{Key: "lat_1", Reason: "standard parallel must be inside (-90, 90)"}
	case math.Abs(p.Lat2) >= 90:
		return &domain.ConfigurationError{Key: "lat_2", Reason: "standard parallel must be inside (-90, 90)"}
	case math.Abs(p.Lat0) > 90:
		return &domain.ConfigurationError{Key: "lat_0", Reason: "origin latitude must be inside [-90, 90]"}
	case math.Abs(p.Lat1+p.Lat2) < 1e-10:
		return &domain.ConfigurationError{Key: "lat_2", Reason: "standard parallels symmetric about the equator do not define a cone"}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
