// Package config loads and validates the pi-monitor YAML configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// PI_MONITOR_* environment variables. Secrets are never stored in the file;
// fields ending in _env name the environment variable to read instead.
//
// Watch reloads the file on change and hands the new Config to a callback.
package config
