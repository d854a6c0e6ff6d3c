package domain

import (
	"fmt"
	"time"
)

// Cycle identifies one model run and forecast hour, e.g. the 12z run's F01.
type Cycle struct {
	Run          time.Time
	ForecastHour int
}

// TargetCycle returns the cycle for the current UTC hour, matching how the
// hourly job picks "the latest run" without probing upstream.
func TargetCycle(forecastHour int) Cycle {
	return NewCycle(clock.Now(), forecastHour)
}

// NewCycle truncates run to the hour in UTC.
func NewCycle(run time.Time, forecastHour int) Cycle {
	return Cycle{Run: run.UTC().Truncate(time.Hour), ForecastHour: forecastHour}
}

// ParseRunTime parses a YYYYMMDDHH run identifier.
func ParseRunTime(s string) (time.Time, error) {
	t, err := time.Parse("2006010215", s)
	if err != nil {
		return time.Time{}, &ConfigurationError{Key: "RUN_TIME", Reason: fmt.Sprintf("expected YYYYMMDDHH, got %q", s)}
	}
	return t.UTC(), nil
}

// RunDate is the run day as YYYYMMDD.
func (c Cycle) RunDate() string { return c.Run.Format("20060102") }

// RunHour is the run hour as HH.
func (c Cycle) RunHour() string { return c.Run.Format("15") }

// Forecast is the forecast hour label, e.g. "F01".
func (c Cycle) Forecast() string { return fmt.Sprintf("F%02d", c.ForecastHour) }

// ValidTime is the instant the forecast hour refers to.
func (c Cycle) ValidTime() time.Time {
	return c.Run.Add(time.Duration(c.ForecastHour) * time.Hour)
}

// Valid renders the one-hour window starting at the valid time,
// e.g. "13:00-14:00 UTC" for the 12z F01.
func (c Cycle) Valid() string {
	start := c.ValidTime()
	end := start.Add(time.Hour)
	return fmt.Sprintf("%s-%s UTC", start.Format("15:04"), end.Format("15:04"))
}

// Key is a stable identifier for the cycle, used as a message key.
func (c Cycle) Key() string {
	return fmt.Sprintf("%s%s-%s", c.RunDate(), c.RunHour(), c.Forecast())
}

func (c Cycle) String() string {
	return fmt.Sprintf("%s %sz %s", c.RunDate(), c.RunHour(), c.Forecast())
}
