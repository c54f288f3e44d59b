// Package config loads the file and environment configuration for the
// stratomesh runtime: engine limits, per-step timeout, audit and artifact
// storage drivers and logging options. Values are resolved with Viper from
// an optional YAML file plus STRATOMESH_* environment variables, with
// defaults for everything unset.
package config
