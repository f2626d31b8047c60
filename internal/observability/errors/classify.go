// Package errors turns errors into low-cardinality class names for metric tags and alerts.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/target/bulkmailer/internal/errors"
)

var deliveryClasses = []struct {
	target error
	class  string
}{
	{apperrors.ErrTemplateNotFound, "template_not_found"},
	{apperrors.ErrRender, "render"},
	{apperrors.ErrCompose, "compose"},
	{apperrors.ErrTransport, "transport"},
	{apperrors.ErrPersistence, "persistence"},
	{apperrors.ErrInitialization, "initialization"},
	{context.DeadlineExceeded, "timeout"},
	{context.Canceled, "canceled"},
}

// Classify returns a normalized error class. Delivery taxonomy errors map to their kind;
// anything else is named after its innermost concrete type in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for _, dc := range deliveryClasses {
		if goerrors.Is(err, dc.target) {
			return dc.class
		}
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
