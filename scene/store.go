// Package scene provides the store of named transform records that the
// registration registries read and write. The store is the source of truth:
// registries never cache record state, so a transform edited through any
// other path is observed on the next registry read.
package scene

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/acoustiq/alignment/spatial"
)

// Handle identifies a transform record in a Store.
type Handle uuid.UUID

// NewHandle returns a fresh record handle.
func NewHandle() Handle {
	return Handle(uuid.New())
}

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// MatrixCallback is invoked after a record's matrix actually changes. An
// error returned here propagates to the caller of the mutation that fired
// the notification.
type MatrixCallback func(h Handle) error

// RemovedCallback is invoked after a record is removed from the store.
type RemovedCallback func(h Handle) error

// CancelFunc cancels a subscription. Safe to call more than once.
type CancelFunc func()

// Store is a keyed store of transform records. Each record carries a 4x4
// matrix, a name, and a set of string attributes. Mutations notify
// subscribers synchronously, at most once per actual change.
type Store interface {
	// Create adds a record with the given matrix and returns its handle.
	Create(matrix *spatial.AffineTransform) Handle

	// SetMatrix replaces a record's matrix. Matrix-modified subscribers fire
	// only if the new matrix differs from the stored one; any errors they
	// return are returned here.
	SetMatrix(h Handle, matrix *spatial.AffineTransform) error

	// Matrix returns a copy of a record's matrix.
	Matrix(h Handle) (*spatial.AffineTransform, error)

	// SetName names a record.
	SetName(h Handle, name string) error

	// Name returns a record's name.
	Name(h Handle) (string, error)

	// SetAttribute sets a string attribute on a record.
	SetAttribute(h Handle, key, value string) error

	// Attribute returns an attribute value and whether it is present.
	Attribute(h Handle, key string) (string, bool, error)

	// Query returns the handles of all records whose attributes satisfy the
	// predicate. The predicate receives a copy of the attribute map.
	Query(match func(attrs map[string]string) bool) []Handle

	// Remove deletes a record. Removed subscribers fire after deletion; any
	// errors they return are returned here. Subscriptions on the record are
	// discarded.
	Remove(h Handle) error

	// OnMatrixModified subscribes to matrix changes on a record.
	OnMatrixModified(h Handle, cb MatrixCallback) (CancelFunc, error)

	// OnRemoved subscribes to removal of a record.
	OnRemoved(h Handle, cb RemovedCallback) (CancelFunc, error)
}

// RecordNotFoundError indicates a handle that does not resolve in the store.
type RecordNotFoundError struct {
	Handle Handle
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("no transform record %q in store", e.Handle)
}
