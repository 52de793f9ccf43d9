package domain

import (
	"fmt"
	"strings"
)

// ErrSchemaViolation is returned when a request body does not conform to the
// endpoint's JSON schema. Errors holds one message per failing keyword.
type ErrSchemaViolation struct {
	Schema string
	Errors []string
}

func (e *ErrSchemaViolation) Error() string {
	return fmt.Sprintf("body does not match schema %q: %s", e.Schema, strings.Join(e.Errors, "; "))
}
