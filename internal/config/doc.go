// Package config loads framepipe run configuration.
//
// Configuration is read from an optional YAML, JSON or TOML file (by default
// framepipe.yaml in the working directory) and overridden by FRAMEPIPE_
// environment variables, with nested keys joined by underscores:
//
//	FRAMEPIPE_FRAME_TARGET_FPS=120
//	FRAMEPIPE_LOG_LEVEL=debug
//
// # Configuration File Structure
//
//	pipeline:
//	  parallel_layout: 4
//	  layer_optimization: true
//	frame:
//	  target_fps: 60
//	  frames: 600
//	hit_test:
//	  cell_size: 0.1
//	  max_entries: 4096
//	metrics:
//	  enabled: true
//	  namespace: framepipe
//	tracing:
//	  enabled: false
//	  endpoint: localhost:4318
//	server:
//	  addr: ":8080"
//	log:
//	  level: info
//	  format: text
//	demo:
//	  nodes: 500
//	  fanout: 4
//	  producers: 4
//	  rate: 200
//	report:
//	  dest: s3://bucket/runs/latest.json
//
// Every field has a default, so an empty or missing file is valid.
package config
