package storage

import (
	"context"
	"sort"
	"sync"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps, making tests fast and isolated.
type MockRepository struct {
	mu      sync.Mutex
	records map[string]*StoredRecord
	links   map[string]*StoredLink

	// Hooks for test assertions
	UpsertRecordsCalls int
	UpsertLinksCalls   int
	DeleteLinkCalls    int
	DeleteRecordsCalls int
	ListRecordsCalls   int
	ListLinksCalls     int

	// Error injection for testing error paths
	ListRecordsErr   error
	ListLinksErr     error
	UpsertRecordsErr error
	UpsertLinksErr   error
	DeleteLinkErr    error
	DeleteLinksErr   error
	DeleteRecordsErr error

	// FailUpsertRecordsOn fails the upsert calls whose 1-based call number
	// is a key; the value is the error returned.
	FailUpsertRecordsOn map[int]error
	// FailUpsertLinksOn does the same for link upserts.
	FailUpsertLinksOn map[int]error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		records: make(map[string]*StoredRecord),
		links:   make(map[string]*StoredLink),
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// AddRecord seeds a record directly
func (m *MockRepository) AddRecord(r *StoredRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *r
	m.records[r.IdentityHash] = &copied
}

// AddLink seeds a link directly
func (m *MockRepository) AddLink(l *StoredLink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *l
	m.links[l.SubjectHash] = &copied
}

// RecordCount returns the number of stored records
func (m *MockRepository) RecordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Link returns the stored link for a subject
func (m *MockRepository) Link(subjectHash string) (*StoredLink, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[subjectHash]
	if !ok {
		return nil, false
	}
	copied := *l
	return &copied, true
}

// LinkCount returns the number of stored links
func (m *MockRepository) LinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

// ListRecords pages through records in display order
func (m *MockRepository) ListRecords(_ context.Context, page PageRequest) ([]*StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListRecordsCalls++
	if m.ListRecordsErr != nil {
		return nil, m.ListRecordsErr
	}

	all := make([]*StoredRecord, 0, len(m.records))
	for _, r := range m.records {
		copied := *r
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].BatchID != all[j].BatchID {
			return all[i].BatchID > all[j].BatchID
		}
		if all[i].IngestionIndex != all[j].IngestionIndex {
			return all[i].IngestionIndex < all[j].IngestionIndex
		}
		return all[i].IdentityHash < all[j].IdentityHash
	})
	return pageOf(all, page), nil
}

// UpsertRecords stores copies of the records
func (m *MockRepository) UpsertRecords(_ context.Context, records []*StoredRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertRecordsCalls++
	if err := m.FailUpsertRecordsOn[m.UpsertRecordsCalls]; err != nil {
		return err
	}
	if m.UpsertRecordsErr != nil {
		return m.UpsertRecordsErr
	}
	for _, r := range records {
		copied := *r
		m.records[r.IdentityHash] = &copied
	}
	return nil
}

// DeleteRecords removes records and cascades to links
func (m *MockRepository) DeleteRecords(_ context.Context, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteRecordsCalls++
	if m.DeleteRecordsErr != nil {
		return m.DeleteRecordsErr
	}
	doomed := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		doomed[h] = true
		delete(m.records, h)
	}
	for key, l := range m.links {
		if doomed[l.SubjectHash] || (l.CounterpartHash != "" && doomed[l.CounterpartHash]) {
			delete(m.links, key)
		}
	}
	return nil
}

// ListLinks pages through links by subject hash
func (m *MockRepository) ListLinks(_ context.Context, page PageRequest) ([]*StoredLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListLinksCalls++
	if m.ListLinksErr != nil {
		return nil, m.ListLinksErr
	}

	all := make([]*StoredLink, 0, len(m.links))
	for _, l := range m.links {
		copied := *l
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SubjectHash < all[j].SubjectHash })
	return pageOf(all, page), nil
}

// UpsertLinks stores copies of the links
func (m *MockRepository) UpsertLinks(_ context.Context, links []*StoredLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertLinksCalls++
	if err := m.FailUpsertLinksOn[m.UpsertLinksCalls]; err != nil {
		return err
	}
	if m.UpsertLinksErr != nil {
		return m.UpsertLinksErr
	}
	for _, l := range links {
		copied := *l
		m.links[l.SubjectHash] = &copied
	}
	return nil
}

// DeleteLink removes one link
func (m *MockRepository) DeleteLink(_ context.Context, subjectHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteLinkCalls++
	if m.DeleteLinkErr != nil {
		return m.DeleteLinkErr
	}
	delete(m.links, subjectHash)
	return nil
}

// DeleteLinks removes several links
func (m *MockRepository) DeleteLinks(_ context.Context, subjectHashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteLinksErr != nil {
		return m.DeleteLinksErr
	}
	for _, h := range subjectHashes {
		delete(m.links, h)
	}
	return nil
}

func pageOf[T any](all []T, page PageRequest) []T {
	start := page.offset()
	if start >= len(all) {
		return nil
	}
	end := start + page.limit()
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
