package sandbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewJobID returns "<prefix>-<unix millis>-<8 hex>". The random suffix keeps
// ids distinct when concurrent requests land in the same millisecond; the
// result is a valid DNS-1123 label for prefixes of up to 40 characters.
func NewJobID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), suffix)
}
