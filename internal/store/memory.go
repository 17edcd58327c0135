package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a goroutine-safe in-memory Store. It backs tests
// and the fail-soft path when the durable store cannot be opened.
//
// A MemoryStore is inherently single-instance: it cannot be shared
// across processes, and every change notification carries the store's
// own origin, so a consumer filtering self-originated changes sees
// none. Cross-instance reload is the SQLite store's concern.
type MemoryStore struct {
	mu     sync.RWMutex
	kinds  map[Kind]map[string]Record
	origin string
	closed bool

	watchers map[int]*memWatcher
	nextID   int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kinds: map[Kind]map[string]Record{
			KindCategories: {},
			KindRelations:  {},
			KindSyncQueue:  {},
		},
		origin:   uuid.NewString(),
		watchers: make(map[int]*memWatcher),
	}
}

// GetAll returns every record of a kind in id order.
func (s *MemoryStore) GetAll(ctx context.Context, kind Kind) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	records, ok := s.kinds[kind]
	if !ok {
		return nil, ErrUnknownKind
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// Get returns one record by id.
func (s *MemoryStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	records, ok := s.kinds[kind]
	if !ok {
		return nil, ErrUnknownKind
	}

	rec, ok := records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Put inserts or replaces a record.
func (s *MemoryStore) Put(ctx context.Context, kind Kind, rec Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	records, ok := s.kinds[kind]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownKind
	}
	records[rec.ID] = rec
	s.mu.Unlock()

	s.notify(kind)
	return nil
}

// Delete removes a record. Missing ids are a no-op.
func (s *MemoryStore) Delete(ctx context.Context, kind Kind, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	records, ok := s.kinds[kind]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownKind
	}
	delete(records, id)
	s.mu.Unlock()

	s.notify(kind)
	return nil
}

// Query returns records matching the predicate.
func (s *MemoryStore) Query(ctx context.Context, kind Kind, pred func(Record) bool) ([]Record, error) {
	all, err := s.GetAll(ctx, kind)
	if err != nil {
		return nil, err
	}

	var matched []Record
	for _, rec := range all {
		if pred(rec) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// Clear removes all records of a kind.
func (s *MemoryStore) Clear(ctx context.Context, kind Kind) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.kinds[kind]; !ok {
		s.mu.Unlock()
		return ErrUnknownKind
	}
	s.kinds[kind] = map[string]Record{}
	s.mu.Unlock()

	s.notify(kind)
	return nil
}

// Origin identifies this store handle.
func (s *MemoryStore) Origin() string {
	return s.origin
}

// Watch returns an in-process change watcher.
func (s *MemoryStore) Watch() (Watcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	id := s.nextID
	s.nextID++

	w := &memWatcher{
		store:   s,
		id:      id,
		changes: make(chan Change, 16),
	}
	s.watchers[id] = w

	return w, nil
}

// Close releases the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for id, w := range s.watchers {
		close(w.changes)
		delete(s.watchers, id)
	}
	return nil
}

func (s *MemoryStore) notify(kind Kind) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.watchers {
		select {
		case w.changes <- Change{Kind: kind, Origin: s.origin}:
		default:
		}
	}
}

type memWatcher struct {
	store   *MemoryStore
	id      int
	changes chan Change
}

func (w *memWatcher) Changes() <-chan Change {
	return w.changes
}

func (w *memWatcher) Close() error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	if _, ok := w.store.watchers[w.id]; ok {
		delete(w.store.watchers, w.id)
		close(w.changes)
	}
	return nil
}
