// Package instance names the running process for logs and lock ownership.
package instance

import (
	"os"
	"strings"
)

const fallbackID = "local"

// ID returns LIBRARY_INSTANCE_ID, then the platform dyno name, then the
// hostname. Processes on one host without any of these share "local".
func ID() string {
	for _, key := range []string{"LIBRARY_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
