package xid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns a prefixed, time-ordered identifier (UUIDv7), e.g.
// "shift_0190a4c2-...". Ids are never reused.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), uuid.NewString())
	}
	return prefix + "_" + id.String()
}
