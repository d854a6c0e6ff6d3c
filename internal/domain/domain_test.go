package domain

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycle_Fields(t *testing.T) {
	tests := []struct {
		name     string
		run      time.Time
		fh       int
		date     string
		hour     string
		forecast string
		valid    string
		key      string
	}{
		{
			name: "12z F01", run: time.Date(2024, time.April, 26, 12, 0, 0, 0, time.UTC), fh: 1,
			date: "20240426", hour: "12", forecast: "F01", valid: "13:00-14:00 UTC", key: "2024042612-F01",
		},
		{
			name: "window wraps midnight", run: time.Date(2024, time.April, 26, 22, 0, 0, 0, time.UTC), fh: 1,
			date: "20240426", hour: "22", forecast: "F01", valid: "23:00-00:00 UTC", key: "2024042622-F01",
		},
		{
			name: "minutes truncated", run: time.Date(2024, time.April, 26, 5, 47, 12, 0, time.UTC), fh: 0,
			date: "20240426", hour: "05", forecast: "F00", valid: "05:00-06:00 UTC", key: "2024042605-F00",
		},
		{
			name: "long lead", run: time.Date(2024, time.April, 26, 3, 0, 0, 0, time.UTC), fh: 21,
			date: "20240426", hour: "03", forecast: "F21", valid: "00:00-01:00 UTC", key: "2024042603-F21",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCycle(tt.run, tt.fh)
			assert.Equal(t, tt.date, c.RunDate())
			assert.Equal(t, tt.hour, c.RunHour())
			assert.Equal(t, tt.forecast, c.Forecast())
			assert.Equal(t, tt.valid, c.Valid())
			assert.Equal(t, tt.key, c.Key())
		})
	}
}

func TestNewCycle_ConvertsToUTC(t *testing.T) {
	central := time.FixedZone("CDT", -5*60*60)
	c := NewCycle(time.Date(2024, time.April, 26, 7, 30, 0, 0, central), 1)
	assert.Equal(t, "12", c.RunHour())
	assert.Equal(t, "20240426 12z F01", c.String())
}

func TestTargetCycle_UsesClock(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2026, time.May, 4, 18, 42, 0, 0, time.UTC)))
	t.Cleanup(func() { SetClock(nil) })

	c := TargetCycle(1)
	assert.Equal(t, time.Date(2026, time.May, 4, 18, 0, 0, 0, time.UTC), c.Run)
	assert.Equal(t, "19:00-20:00 UTC", c.Valid())
}

func TestParseRunTime(t *testing.T) {
	run, err := ParseRunTime("2026030906")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 9, 6, 0, 0, 0, time.UTC), run)

	for _, bad := range []string{"", "20260309", "2026-03-09T06", "2026030925"} {
		_, err := ParseRunTime(bad)
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr, bad)
		assert.Equal(t, "RUN_TIME", cfgErr.Key)
	}
}

func TestNewForecast(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2026, time.May, 4, 12, 5, 30, 0, time.UTC)))
	t.Cleanup(func() { SetClock(nil) })

	c := NewCycle(time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC), 1)
	f := NewForecast(c, RAPParams, nil)

	assert.Equal(t, "20260504", f.RunDate)
	assert.Equal(t, "12", f.RunHour)
	assert.Equal(t, "F01", f.Forecast)
	assert.Equal(t, "13:00-14:00 UTC", f.Valid)
	assert.Equal(t, "2026-05-04T12:05:30Z", f.Generated)
	assert.Equal(t, RAPParams, f.Projection)
	assert.NotNil(t, f.Features)
	assert.Empty(t, f.Features)
}

func TestGrid_Validate(t *testing.T) {
	valid := func() *Grid {
		g := NewGrid(2, 3)
		for i := range 2 {
			for j := range 3 {
				g.Lat[i][j] = 35 + float64(i)
				g.Lon[i][j] = -97 + float64(j)
			}
		}
		return g
	}

	require.NoError(t, valid().Validate())

	withNaNField := valid()
	withNaNField.CAPE[1][2] = math.NaN()
	require.NoError(t, withNaNField.Validate(), "missing field values are allowed")

	tests := []struct {
		name   string
		mutate func(g *Grid)
		want   string
	}{
		{"empty", func(g *Grid) { *g = Grid{} }, "grid is empty"},
		{"short rows", func(g *Grid) { g.CIN = g.CIN[:1] }, "cin has 1 rows"},
		{"ragged", func(g *Grid) { g.Helicity[1] = g.Helicity[1][:2] }, "helicity row 1 has 2 columns"},
		{"nan lat", func(g *Grid) { g.Lat[0][1] = math.NaN() }, "non-finite coordinate at (0, 1)"},
		{"inf lon", func(g *Grid) { g.Lon[1][0] = math.Inf(-1) }, "non-finite coordinate at (1, 0)"},
		{"lat range", func(g *Grid) { g.Lat[1][1] = 91 }, "latitude 91 out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := valid()
			tt.mutate(g)
			err := g.Validate()
			var compErr *ComputationError
			require.ErrorAs(t, err, &compErr)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGrid_FieldsAt(t *testing.T) {
	g := NewGrid(1, 1)
	g.CAPE[0][0], g.CIN[0][0], g.Helicity[0][0] = 1500, -25, 180
	assert.Equal(t, Fields{CAPE: 1500, CIN: -25, Helicity: 180}, g.FieldsAt(0, 0))
}

func TestIsDataUnavailable(t *testing.T) {
	c := NewCycle(time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC), 1)
	err := &DataUnavailableError{Source: "s3://noaa-rap-pds/rap.20260504/rap.t12z.awip32f01.grib2", Cycle: c}

	assert.True(t, IsDataUnavailable(err))
	assert.True(t, IsDataUnavailable(fmt.Errorf("check upstream: %w", err)))
	assert.False(t, IsDataUnavailable(&ComputationError{Reason: "x"}))
	assert.Contains(t, err.Error(), "for 20260504 12z F01")
}

func TestGeometryError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("self-intersection")
	err := &GeometryError{Reason: "polygon 3", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "geometry: polygon 3: self-intersection", err.Error())
}
