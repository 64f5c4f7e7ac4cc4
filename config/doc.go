// Package config provides application configuration management.
//
// Configuration is read with viper from a YAML file (config.yaml in the
// working directory or ./config, or an explicit path), overlaid with
// CODERUNNER_* environment variables and validated before use. It covers the
// HTTP/MCP transports, the target cluster and namespace, execution limits and
// polling policy, logging, and the table of supported languages.
//
// Usage:
//
//	cfg, err := config.Load("/etc/coderunner/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Namespace: %s\n", cfg.Cluster.Namespace)
package config
