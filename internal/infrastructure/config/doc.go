// Package config handles loading and validating LiteTouch bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with LITETOUCH_* environment variables
//   - Validation of required fields (all problems reported at once)
//   - Default value handling
//
// The device map (which loads and keypad buttons the bridge exposes) lives
// in a separate file named by bridge.config_file and is loaded by the
// litetouch package.
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The panel link itself carries no authentication
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Panel.Address())
package config
