// Package memory provides process-local implementations of the repository
// interfaces with the same constraints the Postgres schema enforces.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/repository"
)

// Store holds every table. Repositories obtained from the same Store share
// state, so foreign keys and the history join behave like the database.
type Store struct {
	mu        sync.RWMutex
	breweries map[uuid.UUID]domain.Brewery
	users     map[uuid.UUID]domain.User
	kegs      map[uuid.UUID]domain.Keg
	history   []domain.KegStateHistory

	// txMu serialises transactions against each other and against writes
	// made outside one, so a rollback never discards a concurrent write.
	txMu sync.Mutex
}

func NewStore() *Store {
	return &Store{
		breweries: make(map[uuid.UUID]domain.Brewery),
		users:     make(map[uuid.UUID]domain.User),
		kegs:      make(map[uuid.UUID]domain.Keg),
	}
}

func (s *Store) Breweries() repository.BreweryRepository     { return &breweryRepository{s: s} }
func (s *Store) Users() repository.UserRepository            { return &userRepository{s: s} }
func (s *Store) Kegs() repository.KegRepository              { return &kegRepository{s: s} }
func (s *Store) KegHistory() repository.KegHistoryRepository { return &historyRepository{s: s} }
func (s *Store) TxManager() repository.TxManager             { return &txManager{s: s} }

type snapshot struct {
	breweries map[uuid.UUID]domain.Brewery
	users     map[uuid.UUID]domain.User
	kegs      map[uuid.UUID]domain.Keg
	history   []domain.KegStateHistory
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot{
		breweries: maps.Clone(s.breweries),
		users:     maps.Clone(s.users),
		kegs:      maps.Clone(s.kegs),
		history:   append([]domain.KegStateHistory(nil), s.history...),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breweries = snap.breweries
	s.users = snap.users
	s.kegs = snap.kegs
	s.history = snap.history
}

type txKey struct{}

func inTx(ctx context.Context) bool { return ctx.Value(txKey{}) != nil }

// lock takes the write lock. Outside a transaction it first waits for any
// running transaction to finish.
func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

type txManager struct {
	s *Store
}

// RunInTx restores the pre-transaction state when fn fails or panics.
func (m *txManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}

	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()

	snap := m.s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			m.s.restore(snap)
			panic(p)
		} else if err != nil {
			m.s.restore(snap)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, true))
}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func paginate[T any](items []T, page repository.Page) []T {
	start := page.Offset
	if start > len(items) {
		return []T{}
	}
	end := len(items)
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}
	return items[start:end]
}
