package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a prefixed identifier, e.g. "mv-5f0c...". The prefix keeps
// ids greppable in logs and reports.
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
