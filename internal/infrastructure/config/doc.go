// Package config handles loading and validating the IoT Agent configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The configuration is loaded once at startup and treated as read-only
// afterwards; components receive the parts they need by value or pointer.
//
// Security Considerations:
//   - Keystone passwords and JWT secrets should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.BrokerURL())
package config
