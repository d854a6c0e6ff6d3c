package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/couchcryptid/storm-prob-grid/internal/logistic"
	"github.com/couchcryptid/storm-prob-grid/internal/region"
	"github.com/go-playground/validator/v10"
)

// Config holds all job settings, populated from environment variables.
type Config struct {
	GridInput         string `validate:"required"`
	BoundaryInput     string `validate:"required"`
	OutputPath        string `validate:"required"`
	BordersOutputPath string

	// Boundary attribute filter. Include, when set, wins over Exclude.
	BoundaryField   string
	BoundaryExclude []string
	BoundaryInclude []string

	Policy region.Policy
	Region region.Options
	Model  logistic.Model

	ForecastHour int `validate:"gte=0,lte=51"`
	RunTime      time.Time

	// NOAA S3 availability check.
	UpstreamCheck   bool
	UpstreamBucket  string
	AWSRegion       string
	UpstreamTimeout time.Duration `validate:"gt=0"`

	// Kafka sink is enabled when brokers are set.
	KafkaBrokers   []string
	KafkaSinkTopic string

	PushgatewayURL  string `validate:"omitempty,url"`
	LogLevel        string `validate:"oneof=debug info warn error"`
	LogFormat       string `validate:"oneof=json text"`
	ShutdownTimeout time.Duration
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	policy, err := region.ParsePolicy(sharedcfg.EnvOrDefault("MEMBERSHIP_POLICY", string(region.PolicyStrict)))
	if err != nil {
		return nil, err
	}

	var errs []error
	num := func(key string, def float64) float64 {
		v, err := parseFloat(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	flag := func(key string) bool {
		v, err := parseBool(key)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		GridInput:         os.Getenv("GRID_INPUT"),
		BoundaryInput:     os.Getenv("BOUNDARY_INPUT"),
		OutputPath:        sharedcfg.EnvOrDefault("OUTPUT_PATH", "map/data/tornado_prob_lcc.json"),
		BordersOutputPath: os.Getenv("BORDERS_OUTPUT_PATH"),
		BoundaryField:     sharedcfg.EnvOrDefault("BOUNDARY_FIELD", "STUSPS"),
		BoundaryExclude:   ParseList(sharedcfg.EnvOrDefault("BOUNDARY_EXCLUDE", "AK,HI,PR,VI,GU,MP,AS")),
		BoundaryInclude:   ParseList(os.Getenv("BOUNDARY_INCLUDE")),
		Policy:            policy,
		Region: region.Options{
			DensifyDegrees: num("DENSIFY_DEGREES", region.DefaultOptions.DensifyDegrees),
			Tolerance:      num("BOUNDARY_TOLERANCE_M", region.DefaultOptions.Tolerance),
			Repair:         flag("REPAIR_GEOMETRY"),
		},
		Model: logistic.Model{
			Intercept: num("PROB_INTERCEPT", logistic.DefaultModel.Intercept),
			CAPE:      num("PROB_COEF_CAPE", logistic.DefaultModel.CAPE),
			CIN:       num("PROB_COEF_CIN", logistic.DefaultModel.CIN),
			Helicity:  num("PROB_COEF_HELICITY", logistic.DefaultModel.Helicity),
		},
		UpstreamCheck:   flag("UPSTREAM_CHECK"),
		UpstreamBucket:  sharedcfg.EnvOrDefault("UPSTREAM_BUCKET", "noaa-rap-pds"),
		AWSRegion:       sharedcfg.EnvOrDefault("AWS_REGION", "us-east-1"),
		KafkaSinkTopic:  sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "severe-probability-grid"),
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"),
		LogLevel:        strings.ToLower(sharedcfg.EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "json")),
		ShutdownTimeout: shutdownTimeout,
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	fh, err := strconv.Atoi(sharedcfg.EnvOrDefault("FORECAST_HOUR", "1"))
	if err != nil {
		errs = append(errs, &domain.ConfigurationError{Key: "FORECAST_HOUR", Reason: "must be an integer"})
	}
	cfg.ForecastHour = fh

	if s := os.Getenv("RUN_TIME"); s != "" {
		run, err := domain.ParseRunTime(s)
		if err != nil {
			errs = append(errs, err)
		}
		cfg.RunTime = run
	}

	timeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("UPSTREAM_TIMEOUT", "10s"))
	if err != nil {
		errs = append(errs, &domain.ConfigurationError{Key: "UPSTREAM_TIMEOUT", Reason: "must be a duration"})
	}
	cfg.UpstreamTimeout = timeout

	if cfg.Region.DensifyDegrees < 0 {
		errs = append(errs, &domain.ConfigurationError{Key: "DENSIFY_DEGREES", Reason: "must not be negative"})
	}
	if cfg.Region.Tolerance < 0 {
		errs = append(errs, &domain.ConfigurationError{Key: "BOUNDARY_TOLERANCE_M", Reason: "must not be negative"})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fieldErrors(err)
	}
	return cfg, nil
}

// Cycle returns the cycle to process: RUN_TIME when set, otherwise the
// current UTC hour.
func (c *Config) Cycle() domain.Cycle {
	if c.RunTime.IsZero() {
		return domain.TargetCycle(c.ForecastHour)
	}
	return domain.NewCycle(c.RunTime, c.ForecastHour)
}

// KafkaEnabled reports whether the Kafka sink should be wired.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

var envKeys = map[string]string{
	"GridInput":       "GRID_INPUT",
	"BoundaryInput":   "BOUNDARY_INPUT",
	"OutputPath":      "OUTPUT_PATH",
	"ForecastHour":    "FORECAST_HOUR",
	"UpstreamTimeout": "UPSTREAM_TIMEOUT",
	"PushgatewayURL":  "PUSHGATEWAY_URL",
	"LogLevel":        "LOG_LEVEL",
	"LogFormat":       "LOG_FORMAT",
}

func fieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		key, ok := envKeys[fe.Field()]
		if !ok {
			key = fe.Field()
		}
		reason := fmt.Sprintf("failed %q check", fe.Tag())
		if fe.Tag() == "required" {
			reason = "is required"
		}
		errs = append(errs, &domain.ConfigurationError{Key: key, Reason: reason})
	}
	return errors.Join(errs...)
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return def, &domain.ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid number %q", s)}
	}
	return v, nil
}

func parseBool(key string) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, &domain.ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid boolean %q", s)}
	}
	return v, nil
}

// ParseList splits a comma-separated list, dropping blanks.
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
