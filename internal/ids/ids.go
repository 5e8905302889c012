package ids

import (
	"strings"

	"github.com/google/uuid"
)

func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func NewWithPrefix(prefix string) string {
	return prefix + New()
}
