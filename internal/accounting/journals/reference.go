package journals

import (
	"fmt"
	"strings"
)

// Reference is the idempotency key of a posting, stored as "type:id".
type Reference struct {
	Type string
	ID   string
}

// NewReference builds a reference, formatting id with %v.
func NewReference(typ string, id any) *Reference {
	return &Reference{Type: typ, ID: fmt.Sprint(id)}
}

// String returns the normalised "type:id" form.
func (r Reference) String() string {
	return normalizePart(r.Type) + ":" + normalizePart(r.ID)
}

func normalizePart(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
