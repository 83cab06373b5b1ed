// Package config loads, defaults, and validates alertd configuration.
//
// Configuration is a YAML file with ${VAR} environment expansion. Load reads
// the raw file, LoadWithDefaults fills optional fields, and LoadAndValidate
// is what main uses.
package config
