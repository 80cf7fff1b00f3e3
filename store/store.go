// Package store provides the entity stores the selection core reads from:
// an in-memory store loaded from YAML fixtures and a PostgreSQL/PostGIS
// store over the metadata archive tables.
package store

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/query"
)

// Store is the read interface of the entity archive.
type Store interface {
	// Get returns the entity with identifier, or nil when there is none.
	Get(ctx context.Context, identifier string) (*model.Entity, error)
	// Children returns the direct members of a collection.
	Children(ctx context.Context, collectionKey int64) ([]*model.Entity, error)
	// Query returns the entities matching every predicate of q.
	Query(ctx context.Context, q query.Query) ([]*model.Entity, error)
}

var (
	ErrStoreUnavailable = errors.New("entity store unavailable")
	// ErrCorruptEntity marks a stored record that cannot be decoded.
	ErrCorruptEntity = errors.New("corrupt entity record")
)

// StoreUnavailableError reports a failure of the storage backend itself.
// It is surfaced unchanged; retrying is left to the backend transport.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("entity store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

func (e *StoreUnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// unavailable wraps a backend failure. Corrupt records are returned as
// they are.
func unavailable(op string, err error) error {
	if errors.Is(err, ErrCorruptEntity) {
		return err
	}
	return errors.WithStack(&StoreUnavailableError{Op: op, Err: err})
}
