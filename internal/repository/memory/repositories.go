package memory

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/repository"
)

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneUser(u domain.User) *domain.User {
	u.BreweryID = clonePtr(u.BreweryID)
	return &u
}

func cloneKeg(k domain.Keg) *domain.Keg {
	k.Location = clonePtr(k.Location)
	k.AssignedUserID = clonePtr(k.AssignedUserID)
	return &k
}

type breweryRepository struct {
	s *Store
}

func (r *breweryRepository) Create(ctx context.Context, b *domain.Brewery) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	defer r.s.lock(ctx)()

	for _, existing := range r.s.breweries {
		if existing.Name == b.Name || existing.ID == b.ID {
			return repository.ErrDuplicate
		}
	}
	r.s.breweries[b.ID] = *b
	return nil
}

func (r *breweryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Brewery, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.breweries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r *breweryRepository) List(ctx context.Context) ([]*domain.Brewery, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*domain.Brewery, 0, len(r.s.breweries))
	for _, b := range r.s.breweries {
		b := b
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *breweryRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	defer r.s.lock(ctx)()

	b, ok := r.s.breweries[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Active = active
	r.s.breweries[id] = b
	return nil
}

func (r *breweryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	defer r.s.lock(ctx)()

	if _, ok := r.s.breweries[id]; !ok {
		return repository.ErrNotFound
	}
	for _, u := range r.s.users {
		if u.BreweryID != nil && *u.BreweryID == id {
			return repository.ErrReferenced
		}
	}
	for _, k := range r.s.kegs {
		if k.BreweryID == id {
			return repository.ErrReferenced
		}
	}
	delete(r.s.breweries, id)
	return nil
}

type userRepository struct {
	s *Store
}

// breweryExists must be called with s.mu held.
func (s *Store) breweryExists(id *uuid.UUID) bool {
	if id == nil {
		return true
	}
	_, ok := s.breweries[*id]
	return ok
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	defer r.s.lock(ctx)()

	for _, existing := range r.s.users {
		if existing.Email == u.Email || existing.ID == u.ID {
			return repository.ErrDuplicate
		}
	}
	if !r.s.breweryExists(u.BreweryID) {
		return repository.ErrReferenced
	}
	r.s.users[u.ID] = *cloneUser(*u)
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *userRepository) Update(ctx context.Context, u *domain.User) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	defer r.s.lock(ctx)()

	current, ok := r.s.users[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, existing := range r.s.users {
		if id != u.ID && existing.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	if !r.s.breweryExists(u.BreweryID) {
		return repository.ErrReferenced
	}
	updated := *cloneUser(*u)
	updated.PasswordHash = current.PasswordHash
	updated.CreatedAt = current.CreatedAt
	r.s.users[u.ID] = updated
	return nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	defer r.s.lock(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	r.s.users[id] = u
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	defer r.s.lock(ctx)()

	if _, ok := r.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.users, id)

	// ON DELETE SET NULL
	for kid, k := range r.s.kegs {
		if k.AssignedUserID != nil && *k.AssignedUserID == id {
			k.AssignedUserID = nil
			r.s.kegs[kid] = k
		}
	}
	for i := range r.s.history {
		if h := r.s.history[i].UserID; h != nil && *h == id {
			r.s.history[i].UserID = nil
		}
	}
	return nil
}

func (r *userRepository) List(ctx context.Context, filter repository.UserFilter, page repository.Page) ([]*domain.User, int, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, 0, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var matched []*domain.User
	for _, u := range r.s.users {
		if search != "" && !strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		if filter.BreweryID != nil && !domain.SameBrewery(u.BreweryID, filter.BreweryID) {
			continue
		}
		matched = append(matched, cloneUser(u))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Email < matched[j].Email
	})
	return paginate(matched, page), len(matched), nil
}

func (r *userRepository) CountByBrewery(ctx context.Context, breweryID uuid.UUID) (int, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, u := range r.s.users {
		if u.BreweryID != nil && *u.BreweryID == breweryID {
			n++
		}
	}
	return n, nil
}

func (r *userRepository) GlobalAdminExists(ctx context.Context) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if u.Role == domain.RoleGlobalAdmin {
			return true, nil
		}
	}
	return false, nil
}

type kegRepository struct {
	s *Store
}

func (r *kegRepository) Create(ctx context.Context, k *domain.Keg) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	defer r.s.lock(ctx)()

	if _, ok := r.s.kegs[k.ID]; ok {
		return repository.ErrDuplicate
	}
	if !r.s.breweryExists(&k.BreweryID) {
		return repository.ErrReferenced
	}
	if k.AssignedUserID != nil {
		if _, ok := r.s.users[*k.AssignedUserID]; !ok {
			return repository.ErrReferenced
		}
	}
	r.s.kegs[k.ID] = *cloneKeg(*k)
	return nil
}

func (r *kegRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Keg, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	k, ok := r.s.kegs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneKeg(k), nil
}

// GetForUpdate relies on RunInTx serialising transactions.
func (r *kegRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Keg, error) {
	return r.GetByID(ctx, id)
}

func (r *kegRepository) Update(ctx context.Context, k *domain.Keg) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	defer r.s.lock(ctx)()

	current, ok := r.s.kegs[k.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if !r.s.breweryExists(&k.BreweryID) {
		return repository.ErrReferenced
	}
	if k.AssignedUserID != nil {
		if _, ok := r.s.users[*k.AssignedUserID]; !ok {
			return repository.ErrReferenced
		}
	}
	updated := *cloneKeg(*k)
	updated.Version = current.Version + 1
	updated.CreatedAt = current.CreatedAt
	r.s.kegs[k.ID] = updated
	k.Version = updated.Version
	return nil
}

func (r *kegRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	defer r.s.lock(ctx)()

	if _, ok := r.s.kegs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.kegs, id)
	return nil
}

func (r *kegRepository) List(ctx context.Context, filter repository.KegFilter, page repository.Page) ([]*domain.Keg, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*domain.Keg
	for _, k := range r.s.kegs {
		if filter.BreweryID != nil && k.BreweryID != *filter.BreweryID {
			continue
		}
		if filter.State != nil && k.State != *filter.State {
			continue
		}
		matched = append(matched, cloneKeg(k))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	return paginate(matched, page), nil
}

func (r *kegRepository) CountByBrewery(ctx context.Context, breweryID uuid.UUID) (int, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, k := range r.s.kegs {
		if k.BreweryID == breweryID {
			n++
		}
	}
	return n, nil
}

type historyRepository struct {
	s *Store
}

func (r *historyRepository) Append(ctx context.Context, e *domain.KegStateHistory) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	defer r.s.lock(ctx)()

	entry := *e
	entry.UserID = clonePtr(e.UserID)
	r.s.history = append(r.s.history, entry)
	return nil
}

func (r *historyRepository) ListByKeg(ctx context.Context, kegID uuid.UUID) ([]*domain.KegHistoryEntry, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*domain.KegHistoryEntry{}
	// Walk backwards so equal timestamps keep newest-append-first order.
	for i := len(r.s.history) - 1; i >= 0; i-- {
		h := r.s.history[i]
		if h.KegID != kegID {
			continue
		}
		entry := &domain.KegHistoryEntry{OldState: h.OldState, NewState: h.NewState, ChangedAt: h.ChangedAt}
		if h.UserID != nil {
			if u, ok := r.s.users[*h.UserID]; ok {
				email := u.Email
				entry.UserEmail = &email
			}
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangedAt.After(out[j].ChangedAt) })
	return out, nil
}
