// Package config loads orchestrator configuration from a YAML file layered
// over built-in defaults. Flag overrides are applied by the CLI after Load.
package config
