package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mdelaney/catsync/internal/models"
	"github.com/mdelaney/catsync/internal/store"
)

// MockRemote provides an in-memory Remote for testing.
type MockRemote struct {
	mu sync.Mutex

	// Stored records per kind.
	Records map[store.Kind]map[string]store.Record

	// Error injection. FailWith takes precedence; offline maps
	// every call to ErrRemoteUnavailable.
	FailWith error
	offline  bool

	// Request tracking.
	Calls []MockCall
}

// MockCall tracks one remote invocation.
type MockCall struct {
	Method string
	Kind   store.Kind
	ID     string
}

// NewMockRemote creates a mock remote.
func NewMockRemote() *MockRemote {
	return &MockRemote{
		Records: map[store.Kind]map[string]store.Record{
			store.KindCategories: {},
			store.KindRelations:  {},
		},
	}
}

// SetOnline toggles simulated connectivity.
func (m *MockRemote) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = !online
}

func (m *MockRemote) check(method string, kind store.Kind, id string) error {
	m.Calls = append(m.Calls, MockCall{Method: method, Kind: kind, ID: id})

	if m.FailWith != nil {
		return m.FailWith
	}
	if m.offline {
		return fmt.Errorf("%w: mock offline", models.ErrRemoteUnavailable)
	}
	return nil
}

// Select returns all records of a kind in id order.
func (m *MockRemote) Select(ctx context.Context, kind store.Kind) ([]store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check("select", kind, ""); err != nil {
		return nil, err
	}

	out := make([]store.Record, 0, len(m.Records[kind]))
	for _, rec := range m.Records[kind] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// Insert stores a record.
func (m *MockRemote) Insert(ctx context.Context, kind store.Kind, rec store.Record) (*store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check("insert", kind, rec.ID); err != nil {
		return nil, err
	}

	m.ensureKind(kind)[rec.ID] = rec
	return &rec, nil
}

// Update replaces a record by id.
func (m *MockRemote) Update(ctx context.Context, kind store.Kind, id string, rec store.Record) (*store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check("update", kind, id); err != nil {
		return nil, err
	}

	if _, ok := m.ensureKind(kind)[id]; !ok {
		return nil, &models.APIError{Code: "Not Found", Message: id, StatusCode: 404}
	}
	m.Records[kind][id] = rec
	return &rec, nil
}

// Delete removes a record; missing ids succeed.
func (m *MockRemote) Delete(ctx context.Context, kind store.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check("delete", kind, id); err != nil {
		return err
	}

	delete(m.ensureKind(kind), id)
	return nil
}

// Upsert replaces records by id.
func (m *MockRemote) Upsert(ctx context.Context, kind store.Kind, recs []store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check("upsert", kind, ""); err != nil {
		return err
	}

	bucket := m.ensureKind(kind)
	for _, rec := range recs {
		bucket[rec.ID] = rec
	}
	return nil
}

// Ping reports simulated reachability.
func (m *MockRemote) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check("ping", "", "")
}

// Close is a no-op.
func (m *MockRemote) Close() error {
	return nil
}

// CallCount returns how many calls used the given method.
func (m *MockRemote) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *MockRemote) ensureKind(kind store.Kind) map[string]store.Record {
	if m.Records[kind] == nil {
		m.Records[kind] = map[string]store.Record{}
	}
	return m.Records[kind]
}
