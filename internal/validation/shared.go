package validation

import (
	"fmt"
	"sort"
	"strings"
)

// Error collects per-field problems with a request. Handlers answer it with
// 400 and the Fields map as details.
type Error struct {
	Fields map[string]string
}

// Error joins the field messages in field order.
func (e *Error) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(msgs, "; ")
}

func fieldError(field, msg string) *Error {
	return &Error{Fields: map[string]string{field: msg}}
}
