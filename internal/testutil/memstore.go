package testutil

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/Sternrassler/portal-sync/pkg/store"
)

var _ store.Store = (*MemStore)(nil)

// Op names a MemStore write for failure injection.
type Op string

const (
	OpCreateClient    Op = "create_client"
	OpInsertProposal  Op = "insert_proposal"
	OpUpdateProposal  Op = "update_proposal"
	OpInsertDefaulter Op = "insert_defaulter"
	OpUpdateDefaulter Op = "update_defaulter"
	OpInsertProduct   Op = "insert_product"
	OpUpdateProduct   Op = "update_product"
)

// memState is the full content of a MemStore. It is copied on every
// transaction and savepoint.
type memState struct {
	nextID     int64
	brokers    map[int64]string
	clients    map[int64]store.ClientRow
	proposals  map[int64]store.ProposalRow
	defaulters map[int64]store.DefaulterRow
	products   map[int64]store.ProductRow
}

func newMemState() *memState {
	return &memState{
		brokers:    make(map[int64]string),
		clients:    make(map[int64]store.ClientRow),
		proposals:  make(map[int64]store.ProposalRow),
		defaulters: make(map[int64]store.DefaulterRow),
		products:   make(map[int64]store.ProductRow),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.nextID = s.nextID
	for k, v := range s.brokers {
		c.brokers[k] = v
	}
	for k, v := range s.clients {
		c.clients[k] = v
	}
	for k, v := range s.proposals {
		c.proposals[k] = v
	}
	for k, v := range s.defaulters {
		c.defaulters[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	return c
}

func (s *memState) newID() int64 {
	s.nextID++
	return s.nextID
}

// MemStore is an in-memory store.Store with transaction and savepoint
// semantics and hooks for failure injection.
type MemStore struct {
	mu    sync.Mutex
	state *memState

	// FailOn, when set, is consulted before every write. A non-nil error
	// fails that write.
	FailOn func(op Op, key string) error

	// BeginErr fails BeginBatch.
	BeginErr error

	// Commits counts committed batches.
	Commits int
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{state: newMemState()}
}

// AddBroker registers a broker and returns its id.
func (m *MemStore) AddBroker(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.state.newID()
	m.state.brokers[id] = name
	return id
}

// AddClient stores a client row directly and returns its id.
func (m *MemStore) AddClient(c store.ClientRow) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.state.newID()
	m.state.clients[c.ID] = c
	return c.ID
}

// Clients returns a snapshot of the committed clients.
func (m *MemStore) Clients() []store.ClientRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedValues(m.state.clients)
}

// Proposals returns a snapshot of the committed proposals.
func (m *MemStore) Proposals() []store.ProposalRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedValues(m.state.proposals)
}

// Defaulters returns a snapshot of the committed delinquency rows.
func (m *MemStore) Defaulters() []store.DefaulterRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedValues(m.state.defaulters)
}

// Products returns a snapshot of the committed product rows.
func (m *MemStore) Products() []store.ProductRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedValues(m.state.products)
}

func sortedValues[T any](m map[int64]T) []T {
	out := make([]T, 0, len(m))
	for _, id := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[id])
	}
	return out
}

// BeginBatch starts a transaction over a copy of the committed state.
func (m *MemStore) BeginBatch(ctx context.Context) (store.Tx, error) {
	if m.BeginErr != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrConnectionLost, m.BeginErr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &memTx{store: m, memRepos: &memRepos{store: m, state: m.state.clone()}}, nil
}

type memTx struct {
	*memRepos
	store *MemStore
	done  bool
}

func (t *memTx) Record(ctx context.Context, fn func(store.Repos) error) error {
	if t.done {
		return fmt.Errorf("%w: transaction closed", store.ErrConnectionLost)
	}
	sp := &memRepos{store: t.store, state: t.memRepos.state.clone()}
	if err := fn(sp); err != nil {
		return err
	}
	t.memRepos.state = sp.state
	return nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return errors.New("transaction closed")
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.state = t.memRepos.state
	t.store.Commits++
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}

type memRepos struct {
	store *MemStore
	state *memState
}

func (r *memRepos) fail(op Op, key string) error {
	if r.store.FailOn == nil {
		return nil
	}
	return r.store.FailOn(op, key)
}

func (r *memRepos) FindBrokerID(ctx context.Context, name string) (int64, bool, error) {
	prefix := strings.ToUpper(name)
	for _, id := range slices.Sorted(maps.Keys(r.state.brokers)) {
		if strings.HasPrefix(strings.ToUpper(r.state.brokers[id]), prefix) {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (r *memRepos) FindClientID(ctx context.Context, tenantID int64, document string) (int64, bool, error) {
	for id, c := range r.state.clients {
		if c.TenantID == tenantID && c.Document == document {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (r *memRepos) CreateClient(ctx context.Context, c store.ClientRow) (int64, error) {
	if err := r.fail(OpCreateClient, c.Document); err != nil {
		return 0, err
	}
	if id, ok, _ := r.FindClientID(ctx, c.TenantID, c.Document); ok {
		return id, nil
	}
	c.ID = r.state.newID()
	r.state.clients[c.ID] = c
	return c.ID, nil
}

func (r *memRepos) FindProposal(ctx context.Context, tenantID int64, number string) (*store.ProposalRow, error) {
	for _, p := range r.state.proposals {
		if p.TenantID == tenantID && p.Number == number {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *memRepos) InsertProposal(ctx context.Context, p store.ProposalRow) error {
	if err := r.fail(OpInsertProposal, p.Number); err != nil {
		return err
	}
	p.ID = r.state.newID()
	r.state.proposals[p.ID] = p
	return nil
}

func (r *memRepos) UpdateProposal(ctx context.Context, p store.ProposalRow) error {
	if err := r.fail(OpUpdateProposal, p.Number); err != nil {
		return err
	}
	stored, ok := r.state.proposals[p.ID]
	if !ok {
		return fmt.Errorf("update proposal: id %d not found", p.ID)
	}
	p.TenantID = stored.TenantID
	p.Number = stored.Number
	r.state.proposals[p.ID] = p
	return nil
}

func (r *memRepos) FindDefaulter(ctx context.Context, key store.DefaulterKey) (*store.DefaulterRow, error) {
	for _, d := range r.state.defaulters {
		if d.DefaulterKey == key {
			return &d, nil
		}
	}
	return nil, nil
}

func (r *memRepos) InsertDefaulter(ctx context.Context, d store.DefaulterRow) error {
	if err := r.fail(OpInsertDefaulter, d.ProposalNumber); err != nil {
		return err
	}
	d.ID = r.state.newID()
	r.state.defaulters[d.ID] = d
	return nil
}

func (r *memRepos) UpdateDefaulter(ctx context.Context, d store.DefaulterRow) error {
	if err := r.fail(OpUpdateDefaulter, d.ProposalNumber); err != nil {
		return err
	}
	stored, ok := r.state.defaulters[d.ID]
	if !ok {
		return fmt.Errorf("update defaulter: id %d not found", d.ID)
	}
	d.DefaulterKey = stored.DefaulterKey
	r.state.defaulters[d.ID] = d
	return nil
}

func (r *memRepos) FindProduct(ctx context.Context, key store.ProductKey) (*store.ProductRow, error) {
	for _, p := range r.state.products {
		if p.ProductKey == key {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *memRepos) InsertProduct(ctx context.Context, p store.ProductRow) error {
	if err := r.fail(OpInsertProduct, p.ProposalNumber); err != nil {
		return err
	}
	p.ID = r.state.newID()
	r.state.products[p.ID] = p
	return nil
}

func (r *memRepos) UpdateProduct(ctx context.Context, p store.ProductRow) error {
	if err := r.fail(OpUpdateProduct, p.ProposalNumber); err != nil {
		return err
	}
	stored, ok := r.state.products[p.ID]
	if !ok {
		return fmt.Errorf("update product: id %d not found", p.ID)
	}
	p.ProductKey = stored.ProductKey
	r.state.products[p.ID] = p
	return nil
}
