package tenant

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"maktaba/m/domain"
	"maktaba/m/internal/apperr"
	"maktaba/m/internal/database"
	"maktaba/m/internal/inventory"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	reg, err := Open(database.FileDSN(filepath.Join(dir, "registry.db")), filepath.Join(dir, "stores"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func newUser(t *testing.T, reg *Registry, name string) domain.User {
	t.Helper()
	u, err := reg.CreateUser(context.Background(), name, name+"@example.com", "secret-"+name)
	require.NoError(t, err)
	return u
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	u, err := reg.CreateUser(ctx, "amina", "Amina@Example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "amina@example.com", u.Email)
	require.Empty(t, u.Password)

	_, err = reg.CreateUser(ctx, "other", "amina@example.com", "pw")
	require.ErrorIs(t, err, apperr.ErrConstraint)

	_, err = reg.CreateUser(ctx, "", "x@example.com", "pw")
	require.ErrorIs(t, err, apperr.ErrValidation)

	got, err := reg.Authenticate(ctx, "amina@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Empty(t, got.Password)

	_, err = reg.Authenticate(ctx, "amina@example.com", "wrong")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = reg.Authenticate(ctx, "nobody@example.com", "pw")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestStoresAreIsolated(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	owner := newUser(t, reg, "owner")

	s1, err := reg.CreateStore(ctx, owner.ID, "North")
	require.NoError(t, err)
	s2, err := reg.CreateStore(ctx, owner.ID, "South")
	require.NoError(t, err)
	require.NotEqual(t, s1.Dataset, s2.Dataset)
	require.Equal(t, domain.PermissionOwner, s1.Level)

	h1, err := reg.Resolve(ctx, Session{UserID: owner.ID, StoreID: s1.ID}, domain.PermissionEditor)
	require.NoError(t, err)
	h2, err := reg.Resolve(ctx, Session{UserID: owner.ID, StoreID: s2.ID}, domain.PermissionEditor)
	require.NoError(t, err)

	_, err = inventory.NewService(h1.DB()).CreateItem(ctx, inventory.ItemInput{Code: "X1", Name: "Pen"})
	require.NoError(t, err)
	_, err = inventory.NewService(h2.DB()).CreateItem(ctx, inventory.ItemInput{Code: "X1", Name: "Pencil"})
	require.NoError(t, err)

	_, err = inventory.NewService(h1.DB()).CreateItem(ctx, inventory.ItemInput{Code: "X1", Name: "Again"})
	require.ErrorIs(t, err, apperr.ErrConstraint)

	items, err := inventory.NewService(h2.DB()).ListItems(ctx, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Pencil", items[0].Name)

	list, err := reg.ListStores(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "North", list[0].Name)
	require.Equal(t, domain.PermissionOwner, list[0].Level)
}

func TestResolveChecksSessionAndLevel(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	owner := newUser(t, reg, "owner")
	clerk := newUser(t, reg, "clerk")
	store, err := reg.CreateStore(ctx, owner.ID, "North")
	require.NoError(t, err)

	_, err = reg.Resolve(ctx, Session{StoreID: store.ID}, domain.PermissionViewer)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = reg.Resolve(ctx, Session{UserID: owner.ID}, domain.PermissionViewer)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = reg.Resolve(ctx, Session{UserID: 999, StoreID: store.ID}, domain.PermissionViewer)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = reg.Resolve(ctx, Session{UserID: owner.ID, StoreID: store.ID + 100}, domain.PermissionViewer)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = reg.Resolve(ctx, Session{UserID: clerk.ID, StoreID: store.ID}, domain.PermissionViewer)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	require.NoError(t, reg.Grant(ctx, owner.ID, store.ID, clerk.ID, domain.PermissionViewer))
	h, err := reg.Resolve(ctx, Session{UserID: clerk.ID, StoreID: store.ID}, domain.PermissionViewer)
	require.NoError(t, err)
	require.Equal(t, domain.PermissionViewer, h.Level)
	_, err = reg.Resolve(ctx, Session{UserID: clerk.ID, StoreID: store.ID}, domain.PermissionEditor)
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestGrantRules(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	owner := newUser(t, reg, "owner")
	manager := newUser(t, reg, "manager")
	clerk := newUser(t, reg, "clerk")
	store, err := reg.CreateStore(ctx, owner.ID, "North")
	require.NoError(t, err)

	require.ErrorIs(t, reg.Grant(ctx, clerk.ID, store.ID, clerk.ID, domain.PermissionViewer), apperr.ErrForbidden)

	require.NoError(t, reg.Grant(ctx, owner.ID, store.ID, manager.ID, domain.PermissionManager))
	require.NoError(t, reg.Grant(ctx, manager.ID, store.ID, clerk.ID, domain.PermissionEditor))
	require.ErrorIs(t, reg.Grant(ctx, manager.ID, store.ID, clerk.ID, domain.PermissionOwner), apperr.ErrForbidden)
	require.ErrorIs(t, reg.Grant(ctx, manager.ID, store.ID, owner.ID, domain.PermissionViewer), apperr.ErrForbidden)
	require.ErrorIs(t, reg.Grant(ctx, owner.ID, store.ID, owner.ID, domain.PermissionViewer), apperr.ErrForbidden)

	require.ErrorIs(t, reg.Grant(ctx, owner.ID, store.ID, clerk.ID, domain.PermissionNone), apperr.ErrValidation)
	require.ErrorIs(t, reg.Grant(ctx, owner.ID, store.ID, 999, domain.PermissionViewer), apperr.ErrNotFound)
	require.ErrorIs(t, reg.Grant(ctx, owner.ID, store.ID+9, clerk.ID, domain.PermissionViewer), apperr.ErrNotFound)

	stores, err := reg.ListStores(ctx, clerk.ID)
	require.NoError(t, err)
	require.Len(t, stores, 1)
	require.Equal(t, domain.PermissionEditor, stores[0].Level)
}

func TestConcurrentResolveSharesHandle(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	owner := newUser(t, reg, "owner")
	store, err := reg.CreateStore(ctx, owner.ID, "North")
	require.NoError(t, err)

	// drop the handle CreateStore opened so the goroutines race on the first open
	reg.mu.Lock()
	for k, db := range reg.handles {
		require.NoError(t, db.Close())
		delete(reg.handles, k)
	}
	reg.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[*sqlx.DB]struct{}{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := reg.Resolve(ctx, Session{UserID: owner.ID, StoreID: store.ID}, domain.PermissionViewer)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[h.DB()] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, 1)
}

func TestSessionContext(t *testing.T) {
	_, ok := SessionFrom(context.Background())
	require.False(t, ok)

	ctx := WithSession(context.Background(), Session{UserID: 3, StoreID: 7})
	sess, ok := SessionFrom(ctx)
	require.True(t, ok)
	require.Equal(t, Session{UserID: 3, StoreID: 7}, sess)
}
