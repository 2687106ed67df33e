// Package config handles configuration loading for the inquiry gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	ai:
//	  openai:
//	    api_key: "${OPENAI_API_KEY}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # REST API and websocket endpoint
//
// Database:
//
//	database:
//	  path: "/var/lib/inquiry/gateway.db"
//
// AI providers:
//
//	ai:
//	  default_provider: "openai"  # openai, gemini
//	  openai:
//	    api_key: "${OPENAI_API_KEY}"
//	    model: "gpt-4o-mini"
//	  gemini:
//	    api_key: "${GEMINI_API_KEY}"
//	    model: "gemini-2.0-flash"
//	  campus_data_path: "./campus_data.txt"
//	  history_window: 10
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
