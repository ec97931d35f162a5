package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier such as "sug_3f2a...". The prefix names
// the kind of object the id belongs to.
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}
