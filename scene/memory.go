package scene

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/acoustiq/alignment/spatial"
)

// MemoryStore is the in-memory Store implementation. It owns the mutex
// serializing access; callbacks fire outside the lock so that a notification
// handler may re-enter the store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Handle]*record
}

type record struct {
	name       string
	matrix     *spatial.AffineTransform
	attrs      map[string]string
	nextSubID  int
	onModified map[int]MatrixCallback
	onRemoved  map[int]RemovedCallback
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[Handle]*record{}}
}

// Create adds a record with the given matrix and returns its handle.
func (s *MemoryStore) Create(matrix *spatial.AffineTransform) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := NewHandle()
	s.records[h] = &record{
		matrix:     matrix.Clone(),
		attrs:      map[string]string{},
		onModified: map[int]MatrixCallback{},
		onRemoved:  map[int]RemovedCallback{},
	}
	return h
}

// SetMatrix replaces a record's matrix, notifying subscribers if it changed.
func (s *MemoryStore) SetMatrix(h Handle, matrix *spatial.AffineTransform) error {
	s.mu.Lock()
	rec, ok := s.records[h]
	if !ok {
		s.mu.Unlock()
		return &RecordNotFoundError{Handle: h}
	}
	if rec.matrix.ApproxEqual(matrix, 0) {
		s.mu.Unlock()
		return nil
	}
	rec.matrix = matrix.Clone()
	callbacks := make([]MatrixCallback, 0, len(rec.onModified))
	for _, cb := range rec.onModified {
		callbacks = append(callbacks, cb)
	}
	s.mu.Unlock()

	var err error
	for _, cb := range callbacks {
		err = multierr.Combine(err, cb(h))
	}
	return err
}

// Matrix returns a copy of a record's matrix.
func (s *MemoryStore) Matrix(h Handle) (*spatial.AffineTransform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[h]
	if !ok {
		return nil, &RecordNotFoundError{Handle: h}
	}
	return rec.matrix.Clone(), nil
}

// SetName names a record.
func (s *MemoryStore) SetName(h Handle, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[h]
	if !ok {
		return &RecordNotFoundError{Handle: h}
	}
	rec.name = name
	return nil
}

// Name returns a record's name.
func (s *MemoryStore) Name(h Handle) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[h]
	if !ok {
		return "", &RecordNotFoundError{Handle: h}
	}
	return rec.name, nil
}

// SetAttribute sets a string attribute on a record.
func (s *MemoryStore) SetAttribute(h Handle, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[h]
	if !ok {
		return &RecordNotFoundError{Handle: h}
	}
	rec.attrs[key] = value
	return nil
}

// Attribute returns an attribute value and whether it is present.
func (s *MemoryStore) Attribute(h Handle, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[h]
	if !ok {
		return "", false, &RecordNotFoundError{Handle: h}
	}
	value, present := rec.attrs[key]
	return value, present, nil
}

// Query returns the handles of all records whose attributes satisfy the
// predicate.
func (s *MemoryStore) Query(match func(attrs map[string]string) bool) []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Handle
	for h, rec := range s.records {
		attrs := make(map[string]string, len(rec.attrs))
		for k, v := range rec.attrs {
			attrs[k] = v
		}
		if match(attrs) {
			out = append(out, h)
		}
	}
	return out
}

// Remove deletes a record and notifies removal subscribers.
func (s *MemoryStore) Remove(h Handle) error {
	s.mu.Lock()
	rec, ok := s.records[h]
	if !ok {
		s.mu.Unlock()
		return &RecordNotFoundError{Handle: h}
	}
	delete(s.records, h)
	callbacks := make([]RemovedCallback, 0, len(rec.onRemoved))
	for _, cb := range rec.onRemoved {
		callbacks = append(callbacks, cb)
	}
	s.mu.Unlock()

	var err error
	for _, cb := range callbacks {
		err = multierr.Combine(err, cb(h))
	}
	return err
}

// OnMatrixModified subscribes to matrix changes on a record.
func (s *MemoryStore) OnMatrixModified(h Handle, cb MatrixCallback) (CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[h]
	if !ok {
		return nil, &RecordNotFoundError{Handle: h}
	}
	id := rec.nextSubID
	rec.nextSubID++
	rec.onModified[id] = cb
	return s.cancelModified(h, id), nil
}

// OnRemoved subscribes to removal of a record.
func (s *MemoryStore) OnRemoved(h Handle, cb RemovedCallback) (CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[h]
	if !ok {
		return nil, &RecordNotFoundError{Handle: h}
	}
	id := rec.nextSubID
	rec.nextSubID++
	rec.onRemoved[id] = cb
	return s.cancelRemoved(h, id), nil
}

func (s *MemoryStore) cancelModified(h Handle, id int) CancelFunc {
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if rec, ok := s.records[h]; ok {
			delete(rec.onModified, id)
		}
	}
}

func (s *MemoryStore) cancelRemoved(h Handle, id int) CancelFunc {
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if rec, ok := s.records[h]; ok {
			delete(rec.onRemoved, id)
		}
	}
}
