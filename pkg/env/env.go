package env

import "os"

// Get reads an environment variable, falling back when unset or empty.
// Empty values count as unset so a blank export cannot blank out a default.
func Get(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
