// Package config provides configuration management for the event publisher service.
//
// Configuration is loaded from environment variables using the env package.
// All configuration values have sensible defaults for development use.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("ring backlog is %d\n", cfg.Publisher.Backlog)
package config
