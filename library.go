// Package chatplugin holds helpers shared by the ChatPlugin synchronization commands
package chatplugin

import (
	"strings"
)

// SplitList flattens list entries that themselves hold several values separated by commas
// and/or newlines, as happens when a list is passed through an environment variable.
// Whitespace around each value is trimmed and empty values are dropped.
// Examples:
//   - ["10.0.0.1,10.0.0.2"] -> ["10.0.0.1", "10.0.0.2"]
//   - ["10.0.0.1\n10.0.0.2", "10.1.0.0/16"] -> ["10.0.0.1", "10.0.0.2", "10.1.0.0/16"]
func SplitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		normalized := strings.ReplaceAll(value, "\n", ",")
		for _, part := range strings.Split(normalized, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
