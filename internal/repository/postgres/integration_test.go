//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/repository"
	"github.com/tinouy/kegtracker-backend/internal/repository/postgres"
	"github.com/tinouy/kegtracker-backend/internal/service"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "kegtracker",
				"POSTGRES_PASSWORD": "kegtracker",
				"POSTGRES_DB":       "kegtracker",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("host=%s port=%s user=kegtracker password=kegtracker dbname=kegtracker sslmode=disable", host, port.Port())
}

func TestPostgres_KegUpdatesAreSerialized(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()
	log := zap.NewNop()

	require.NoError(t, postgres.MigrateUp(dsn, log))
	db, err := postgres.Connect(ctx, dsn, 10, 2, 3, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	breweries := postgres.NewBreweryRepository(db)
	users := postgres.NewUserRepository(db)
	kegs := postgres.NewKegRepository(db)
	history := postgres.NewKegHistoryRepository(db)

	now := time.Now().UTC()
	acme := &domain.Brewery{ID: uuid.New(), Name: "Acme Brewing", Active: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, breweries.Create(ctx, acme))
	assert.ErrorIs(t, breweries.Create(ctx, &domain.Brewery{ID: uuid.New(), Name: "Acme Brewing", Active: true}), repository.ErrDuplicate)

	admin := &domain.User{
		ID: uuid.New(), Email: "admin@acme.test", PasswordHash: "x", Role: domain.RoleAdmin,
		Active: true, BreweryID: &acme.ID, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, users.Create(ctx, admin))

	// non global admins must belong to a brewery
	orphan := &domain.User{ID: uuid.New(), Email: "orphan@acme.test", PasswordHash: "x", Role: domain.RoleUser, Active: true}
	require.Error(t, users.Create(ctx, orphan))

	kegService := service.NewKegService(kegs, history, users, breweries, postgres.NewTxManager(db), nil, nil, log)
	actor := domain.ActorFromUser(admin)
	keg, err := kegService.Create(ctx, actor, service.KegRequest{
		Name: "K-01", Type: domain.KegTypeKeg, Connector: domain.KegConnectorS,
		Capacity: 50, CurrentContent: 50, BreweryID: acme.ID.String(),
	})
	require.NoError(t, err)

	states := []domain.KegState{domain.KegStateInUse, domain.KegStateEmpty, domain.KegStateDirty, domain.KegStateClean}
	var wg sync.WaitGroup
	errs := make([]error, len(states))
	for i, state := range states {
		wg.Add(1)
		go func(i int, state domain.KegState) {
			defer wg.Done()
			_, errs[i] = kegService.Update(ctx, actor, keg.ID, service.KegRequest{
				Name: "K-01", Type: domain.KegTypeKeg, Connector: domain.KegConnectorS,
				Capacity: 50, State: state, BreweryID: acme.ID.String(),
			})
		}(i, state)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	stored, err := kegs.GetByID(ctx, keg.ID)
	require.NoError(t, err)
	assert.Equal(t, keg.Version+len(states), stored.Version)

	entries, err := history.ListByKeg(ctx, keg.ID)
	require.NoError(t, err)
	require.Len(t, entries, len(states))
	// each row starts where the previous committed update left off
	for i := 0; i < len(entries)-1; i++ {
		assert.Equal(t, entries[i+1].NewState, entries[i].OldState)
	}
	assert.Equal(t, stored.State, entries[0].NewState)
	assert.Equal(t, domain.KegStateReady, entries[len(entries)-1].OldState)

	// history outlives the keg
	require.NoError(t, kegs.Delete(ctx, keg.ID))
	entries, err = history.ListByKeg(ctx, keg.ID)
	require.NoError(t, err)
	assert.Len(t, entries, len(states))
}
