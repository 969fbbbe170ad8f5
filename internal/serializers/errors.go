package serializers

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// ValidationErrors maps a field name to the messages raised for it. It is
// written to clients as-is.
type ValidationErrors map[string][]string

func (e ValidationErrors) Add(field, message string) {
	e[field] = append(e[field], message)
}

func (e ValidationErrors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(e[field], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var typeMessages = map[string]string{
	"task":      "Not a valid string.",
	"completed": "Must be a valid boolean.",
}

// FromBindError turns a JSON type mismatch on a known field into a field
// error. Anything else (syntax errors, empty bodies) is reported as not
// handled.
func FromBindError(err error) (ValidationErrors, bool) {
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) {
		return nil, false
	}
	msg, ok := typeMessages[typeErr.Field]
	if !ok {
		return nil, false
	}
	return ValidationErrors{typeErr.Field: {msg}}, true
}
