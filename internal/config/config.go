// Package config collects the process-environment loading convention used
// throughout the repository: one env-tagged struct per component, loaded
// with github.com/caarlos0/env/v10.
package config

import "github.com/caarlos0/env/v10"

// Load parses environment variables into a new T according to its `env`
// struct tags, matching the call-site pattern every cmd/ entrypoint uses
// (env.Parse(&cfg)) but generalized so library code constructing its own
// Config doesn't need to repeat the zero-value-then-parse boilerplate.
func Load[T any]() (T, error) {
	var cfg T
	if err := env.Parse(&cfg); err != nil {
		var zero T
		return zero, err
	}
	return cfg, nil
}
