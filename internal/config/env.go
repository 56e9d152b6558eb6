// Package config reads process-level settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DefaultBaseURL is the social network front end used when BASE_URL is unset.
const DefaultBaseURL = "http://localhost:8080"

// Env is the configuration taken from environment variables. CLI flags
// override any of these.
type Env struct {
	// BaseURL is the nginx front end of the social network under test
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080"`
	// LogLevel is one of debug, info, warn, error
	LogLevel string `envconfig:"SOCIALLOAD_LOG_LEVEL" default:"info"`
	// LogFormat is console or json
	LogFormat string `envconfig:"SOCIALLOAD_LOG_FORMAT" default:"console"`
	// MetricsAddr serves Prometheus metrics during a run when set, e.g. ":9090"
	MetricsAddr string `envconfig:"SOCIALLOAD_METRICS_ADDR" default:""`
	// RequestTimeout overrides the profile's per-request timeout when > 0
	RequestTimeout time.Duration `envconfig:"SOCIALLOAD_REQUEST_TIMEOUT" default:"0s"`
	// ResultsDir is where JSON artifacts are written
	ResultsDir string `envconfig:"SOCIALLOAD_RESULTS_DIR" default:"."`
}

// Validate checks the values envconfig cannot.
func (e *Env) Validate() error {
	if strings.TrimSpace(e.BaseURL) == "" {
		return fmt.Errorf("BASE_URL must not be empty")
	}
	if !strings.HasPrefix(e.BaseURL, "http://") && !strings.HasPrefix(e.BaseURL, "https://") {
		return fmt.Errorf("BASE_URL must start with http:// or https://, got %q", e.BaseURL)
	}
	switch e.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("SOCIALLOAD_LOG_FORMAT must be console or json, got %q", e.LogFormat)
	}
	if e.RequestTimeout < 0 {
		return fmt.Errorf("SOCIALLOAD_REQUEST_TIMEOUT must be >= 0")
	}
	return nil
}

// Parse parses the environment using envconfig and returns a pointer to the
// newly created config. Returns nil and a non-nil error if parsing or
// validation failed
func Parse() (*Env, error) {
	ret := new(Env)
	if err := envconfig.Process("", ret); err != nil {
		return nil, err
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// MustParse is Parse that panics on error.
func MustParse() *Env {
	ret, err := Parse()
	if err != nil {
		panic(err)
	}
	return ret
}
