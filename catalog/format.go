package catalog

import (
	"strconv"
	"strings"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
)

// FormatNumeric replaces {0}, {1}... with the matching args. Indexes without an arg are
// left untouched.
func FormatNumeric(template string, args []string) string {
	pairs := make([]string, 0, len(args)*2)
	for i, arg := range args {
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", arg)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// FormatNamed replaces {name} with the value of each placeholder
func FormatNamed(template string, placeholders []protocol.Placeholder) string {
	pairs := make([]string, 0, len(placeholders)*2)
	for _, p := range placeholders {
		pairs = append(pairs, "{"+p.Name+"}", p.Value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
