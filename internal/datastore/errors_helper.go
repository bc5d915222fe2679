package datastore

import (
	"github.com/guianderson/terrama2/internal/errors"
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	// Add context pairs
	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// notFoundError reports a missing row.
func notFoundError(what string, id any) error {
	return errors.Newf("%s %v not found", what, id).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("id", id).
		Build()
}
