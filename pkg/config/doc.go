// Package config loads and validates deepstore's configuration.
//
// # Sources
//
// Configuration is layered in this order, later layers winning:
//
//  1. Built-in defaults (see defaults.go)
//  2. A YAML file, normally deepstore.yaml; a missing file is not an error
//  3. DEEPSTORE_* environment variables
//
// List-valued variables (DEEPSTORE_INCLUDE_DIRECTORIES, DEEPSTORE_EXCLUDE_TABLES,
// ...) are comma separated; empty items are dropped.
//
// # Usage
//
//	if err := config.Initialize("deepstore.yaml"); err != nil {
//	    return err
//	}
//	cfg := config.GetConfig()
//	policy := cfg.RetentionPolicy()
//
// The daemon watches the file with NewWatcher and swaps in the new
// configuration on change. A file that fails validation is ignored and the
// previous configuration stays in effect.
package config
