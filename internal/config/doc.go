// Package config loads and watches the gateway's YAML configuration.
//
// Configuration files support ${VAR} and ${VAR:-default} environment
// variable substitution; $$ escapes a literal dollar sign. The watcher
// reloads the file on change, validates it, and hands the new
// configuration to a callback. Invalid reloads keep the last good
// configuration.
package config
