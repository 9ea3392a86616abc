// Package config handles loading and validating the DaVinci bridge
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with DAVINCI_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens, API keys) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Fireplace.Host)
package config
