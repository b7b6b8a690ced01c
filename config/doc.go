// Package config loads the agentpipe configuration.
//
// Precedence: defaults, then the YAML file, then AGENTPIPE_* environment
// variables. Validation runs last and reports every problem at once.
package config
