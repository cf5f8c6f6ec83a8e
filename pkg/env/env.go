// Package env reads raw environment variables for the few settings needed
// before the envconfig-backed configuration is loaded, such as the logger
// format.
package env

import "os"

// Get returns the named environment variable, or fallback when it is unset
// or empty.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
