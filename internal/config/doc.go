// Package config loads and validates subflow's runtime configuration.
//
// Configuration lives in a single directory (default ~/.config/subflow)
// containing config.yaml. Any key that is absent keeps its default:
//
//	cache:
//	  maxIdle: 60s        # evict loaded workflows idle for longer than this
//	  maxSize: 3          # loaded workflows are expensive, keep few
//	  cleanupDelay: 61s   # cleanup pass scheduled after each release
//	  loadTimeout: 0s     # 0 means no upper bound
//	remote:
//	  timeout: 2m
//	  maxRetries: 3
//	  tempDir: ""
//	pool:
//	  interactive: 4
//	  background: 4
//	watch:
//	  enabled: true
//	  debounce: 500ms
//	logging:
//	  level: info
//	  format: text
//
// The package also hosts the ValidationErrors helpers shared with workflow
// definition validation.
package config
