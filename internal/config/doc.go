// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Optional subsystems (agmarknet, database, news, cache, relay) are off unless
// their section sets enabled: true, and their required fields are only
// validated when enabled.
package config
