// Package config handles loading and validating tour engine configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with TOURENGINE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (staging API key, JWT secret, broker passwords) should
//     be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Viewer.DragSensitivity)
package config
