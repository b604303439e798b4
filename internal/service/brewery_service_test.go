package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinouy/kegtracker-backend/internal/domain"
)

func TestBreweryService_Create(t *testing.T) {
	f := newFixture(t)
	ga := f.user(t, "root@kegtracker.test", domain.RoleGlobalAdmin, nil)
	acme := f.brewery(t, "Acme Brewing")
	admin := f.user(t, "admin@acme.test", domain.RoleAdmin, &acme)

	_, err := f.breweries.Create(f.ctx, admin, CreateBreweryRequest{Name: "Rogue"})
	requireRule(t, err, domain.RuleRoleCapability)

	b, err := f.breweries.Create(f.ctx, ga, CreateBreweryRequest{Name: "  Rogue Hops "})
	require.NoError(t, err)
	assert.Equal(t, "Rogue Hops", b.Name)
	assert.True(t, b.Active)

	_, err = f.breweries.Create(f.ctx, ga, CreateBreweryRequest{Name: "Rogue Hops"})
	requireKind(t, err, domain.KindConflict)

	list, err := f.breweries.List(f.ctx, admin)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestBreweryService_ActivationIsAdvisory(t *testing.T) {
	f := newFixture(t)
	ga := f.user(t, "root@kegtracker.test", domain.RoleGlobalAdmin, nil)
	acme := f.brewery(t, "Acme Brewing")
	brewer := f.user(t, "brewer@acme.test", domain.RoleUser, &acme)

	require.NoError(t, f.breweries.Deactivate(f.ctx, ga, acme))
	b, err := f.store.Breweries().GetByID(f.ctx, acme)
	require.NoError(t, err)
	assert.False(t, b.Active)

	// members keep working
	_, err = f.auth.Login(f.ctx, LoginRequest{Email: "brewer@acme.test", Password: testPassword})
	require.NoError(t, err)
	_, err = f.kegs.List(f.ctx, brewer, ListKegsQuery{})
	require.NoError(t, err)

	require.NoError(t, f.breweries.Activate(f.ctx, ga, acme))
	b, err = f.store.Breweries().GetByID(f.ctx, acme)
	require.NoError(t, err)
	assert.True(t, b.Active)

	requireKind(t, f.breweries.Deactivate(f.ctx, ga, uuid.New()), domain.KindNotFound)
}

func TestBreweryService_DeleteRefusesDependents(t *testing.T) {
	f := newFixture(t)
	ga := f.user(t, "root@kegtracker.test", domain.RoleGlobalAdmin, nil)
	withUsers := f.brewery(t, "Acme Brewing")
	withKegs := f.brewery(t, "Keg House")
	empty := f.brewery(t, "Empty Barn")
	f.user(t, "brewer@acme.test", domain.RoleUser, &withUsers)
	f.keg(t, ga, withKegs)

	requireKind(t, f.breweries.Delete(f.ctx, ga, withUsers), domain.KindConflict)
	requireKind(t, f.breweries.Delete(f.ctx, ga, withKegs), domain.KindConflict)
	requireKind(t, f.breweries.Delete(f.ctx, ga, uuid.New()), domain.KindNotFound)

	require.NoError(t, f.breweries.Delete(f.ctx, ga, empty))
	_, err := f.store.Breweries().GetByID(f.ctx, empty)
	require.Error(t, err)
}
