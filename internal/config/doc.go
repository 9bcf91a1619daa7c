// Package config provides loading and environment overlay for tasktrail
// configuration. It exposes a Default() baseline, a JSON file loader and
// a TASKTRAIL_* environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/tasktrail.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config
