package engine

import (
	"context"
	"log"
	"sort"
	"sync"
)

// MemStore is the thread-safe in-memory record engine.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [identity][kind]record
	data      map[string]map[Kind]any
	versions  map[string]uint64
	persister *Persistence
	wg        sync.WaitGroup
	closed    bool
}

// NewMemStore initializes a store from existing data (from LoadAll) and an
// optional persister. A nil persister keeps everything in memory only.
func NewMemStore(initialData map[string]map[Kind]any, p *Persistence) *MemStore {
	if initialData == nil {
		initialData = make(map[string]map[Kind]any)
	}
	return &MemStore{
		data:      initialData,
		versions:  make(map[string]uint64),
		persister: p,
	}
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

// Close flushes pending writes and rejects further transactions.
func (m *MemStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Wait()
	return nil
}

type recordKey struct {
	id   string
	kind Kind
}

type memTx struct {
	store    *MemStore
	writes   map[recordKey]any
	readOnly bool
}

func (tx *memTx) Get(kind Kind, id string) (any, error) {
	if val, ok := tx.writes[recordKey{id, kind}]; ok {
		return val, nil
	}
	records, ok := tx.store.data[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	val, ok := records[kind]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return val, nil
}

func (tx *memTx) Put(kind Kind, id string, val any) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	tx.writes[recordKey{id, kind}] = val
	return nil
}

// View runs fn under the read lock.
func (m *MemStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn(&memTx{store: m, readOnly: true})
}

// Update runs fn under the write lock. Staged writes are applied only when fn
// returns nil, then the touched identities are persisted in the background.
func (m *MemStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshots, versions, err := m.commit(fn)
	if err != nil {
		return err
	}

	for id, data := range snapshots {
		go func(id string, version uint64, data map[Kind]any) {
			defer m.wg.Done()
			if err := m.persister.SaveIdentity(id, version, data); err != nil {
				log.Printf("Warning: could not persist records of %s: %v", id, err)
			}
		}(id, versions[id], data)
	}
	return nil
}

// commit runs fn and applies its writes while holding m.mu. It returns copies
// of the touched identities to persist, already counted in m.wg; both are nil
// without a persister.
func (m *MemStore) commit(fn func(tx Tx) error) (map[string]map[Kind]any, map[string]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, ErrClosed
	}

	tx := &memTx{store: m, writes: make(map[recordKey]any)}
	if err := fn(tx); err != nil {
		return nil, nil, err
	}

	touched := make(map[string]struct{})
	for k, val := range tx.writes {
		if m.data[k.id] == nil {
			m.data[k.id] = make(map[Kind]any)
		}
		m.data[k.id][k.kind] = val
		touched[k.id] = struct{}{}
	}

	versions := make(map[string]uint64, len(touched))
	for id := range touched {
		m.versions[id]++
		versions[id] = m.versions[id]
	}
	if m.persister == nil {
		return nil, nil, nil
	}

	snapshots := make(map[string]map[Kind]any, len(touched))
	for id := range touched {
		snapshots[id] = m.copyIdentityData(id)
	}
	m.wg.Add(len(snapshots))
	return snapshots, versions, nil
}

// copyIdentityData creates a copy of one identity's records.
// It MUST be called while holding m.mu.
func (m *MemStore) copyIdentityData(id string) map[Kind]any {
	original, ok := m.data[id]
	if !ok {
		return nil
	}
	out := make(map[Kind]any, len(original))
	for k, v := range original {
		out[k] = v
	}
	return out
}

func (m *MemStore) Identities(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]string, 0, len(m.data))
	for id := range m.data {
		list = append(list, id)
	}
	sort.Strings(list)
	return list, nil
}

func (m *MemStore) Kinds(ctx context.Context, id string) ([]Kind, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []Kind
	for kind := range m.data[id] {
		list = append(list, kind)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list, nil
}

func (m *MemStore) Dump(ctx context.Context, kind Kind) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]any)
	for id, records := range m.data {
		if val, ok := records[kind]; ok {
			out[id] = val
		}
	}
	return out, nil
}
