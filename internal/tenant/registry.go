// Package tenant keeps the registry of users, stores and permissions, and
// hands out the dataset of a store to sessions allowed to use it.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"maktaba/m/domain"
	"maktaba/m/internal/apperr"
	"maktaba/m/internal/database"
	"maktaba/m/internal/migrations"
)

// Store is a resolved store: its registry row, the caller's level on it and
// the handle of its dataset.
type Store struct {
	domain.Store
	Level domain.Permission
	db    *sqlx.DB
}

// DB returns the dataset handle. Every engine call for this store goes
// through it.
func (s *Store) DB() *sqlx.DB { return s.db }

type Registry struct {
	db      *sqlx.DB
	dataDir string
	log     zerolog.Logger

	mu      sync.Mutex
	handles map[string]*sqlx.DB
	opening singleflight.Group
}

// Open connects to the registry database, migrates it and returns a
// Registry keeping store datasets under dataDir.
func Open(dsn, dataDir string, log zerolog.Logger) (*Registry, error) {
	db, err := database.Connect(dsn)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunRegistry(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Registry{
		db:      db,
		dataDir: dataDir,
		log:     log.With().Str("component", "registry").Logger(),
		handles: make(map[string]*sqlx.DB),
	}, nil
}

// CreateUser stores a new account with a bcrypt hash of its password.
func (r *Registry) CreateUser(ctx context.Context, username, email, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	switch {
	case username == "":
		return domain.User{}, apperr.Invalid("username", "is required")
	case email == "":
		return domain.User{}, apperr.Invalid("email", "is required")
	case password == "":
		return domain.User{}, apperr.Invalid("password", "is required")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("tenant: hash password: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO users (username, email, password) VALUES (?, ?, ?)`, username, email, string(hashed))
	if database.IsUniqueViolation(err) {
		return domain.User{}, &apperr.ConstraintError{Field: "email", Value: email}
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("tenant: insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.User{}, fmt.Errorf("tenant: user id: %w", err)
	}
	return r.userByID(ctx, id)
}

// Authenticate checks an email and password pair.
func (r *Registry) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	user, err := r.UserByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return domain.User{}, apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return domain.User{}, apperr.Unauthorized("invalid credentials")
	}
	user.Password = ""
	return user, nil
}

// UserByEmail loads an account, password hash included.
func (r *Registry) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, `SELECT id, username, email, password, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, apperr.NotFound("user", email)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("tenant: load user: %w", err)
	}
	return user, nil
}

func (r *Registry) userByID(ctx context.Context, id int64) (domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, `SELECT id, username, email, created_at FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, apperr.NotFound("user", id)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("tenant: load user: %w", err)
	}
	return user, nil
}

// CreateStore provisions an empty dataset and registers it as a store owned
// by ownerID.
func (r *Registry) CreateStore(ctx context.Context, ownerID int64, name string) (domain.StoreAccess, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.StoreAccess{}, apperr.Invalid("name", "is required")
	}
	if _, err := r.userByID(ctx, ownerID); err != nil {
		return domain.StoreAccess{}, err
	}

	dataset := uuid.NewString()
	if _, err := r.handle(ctx, dataset); err != nil {
		return domain.StoreAccess{}, err
	}

	var storeID int64
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO stores (name, owner_id, dataset) VALUES (?, ?, ?)`, name, ownerID, dataset)
		if err != nil {
			return fmt.Errorf("insert store: %w", err)
		}
		if storeID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("store id: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO store_permissions (store_id, user_id, level) VALUES (?, ?, ?)`,
			storeID, ownerID, domain.PermissionOwner); err != nil {
			return fmt.Errorf("insert owner permission: %w", err)
		}
		return nil
	})
	if err != nil {
		r.discard(dataset)
		return domain.StoreAccess{}, fmt.Errorf("tenant: create store: %w", err)
	}

	store, err := r.store(ctx, storeID)
	if err != nil {
		return domain.StoreAccess{}, err
	}
	r.log.Info().Int64("store_id", storeID).Int64("owner_id", ownerID).Msg("store created")
	return domain.StoreAccess{Store: store, Level: domain.PermissionOwner}, nil
}

// Grant gives userID the level on a store. The grantor needs at least
// manager and cannot hand out more than it holds. An owner keeps its level.
func (r *Registry) Grant(ctx context.Context, grantorID, storeID, userID int64, level domain.Permission) error {
	if level <= domain.PermissionNone || level > domain.PermissionOwner {
		return apperr.Invalid("level", "must be viewer, editor, manager or owner")
	}
	if _, err := r.store(ctx, storeID); err != nil {
		return err
	}
	grantorLevel, err := r.level(ctx, r.db, storeID, grantorID)
	if err != nil {
		return err
	}
	if !grantorLevel.AtLeast(domain.PermissionManager) {
		return apperr.Forbidden("granting requires manager")
	}
	if !grantorLevel.AtLeast(level) {
		return apperr.Forbidden(fmt.Sprintf("cannot grant %s as %s", level, grantorLevel))
	}
	if _, err := r.userByID(ctx, userID); err != nil {
		return err
	}

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := r.level(ctx, tx, storeID, userID)
		if err != nil {
			return err
		}
		if current == domain.PermissionOwner && level < domain.PermissionOwner {
			return apperr.Forbidden("an owner cannot be demoted")
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO store_permissions (store_id, user_id, level) VALUES (?, ?, ?)
                        ON CONFLICT (store_id, user_id) DO UPDATE SET level = excluded.level`, storeID, userID, level); err != nil {
			return fmt.Errorf("tenant: grant: %w", err)
		}
		r.log.Info().Int64("store_id", storeID).Int64("user_id", userID).Stringer("level", level).Msg("permission granted")
		return nil
	})
}

// ListStores returns the stores userID holds any level on.
func (r *Registry) ListStores(ctx context.Context, userID int64) ([]domain.StoreAccess, error) {
	out := []domain.StoreAccess{}
	if err := r.db.SelectContext(ctx, &out, `SELECT s.id, s.name, s.owner_id, s.dataset, s.created_at, p.level
                FROM stores s
                JOIN store_permissions p ON p.store_id = s.id
                WHERE p.user_id = ?
                ORDER BY s.name, s.id`, userID); err != nil {
		return nil, fmt.Errorf("tenant: list stores: %w", err)
	}
	return out, nil
}

// Resolve checks that the session may act on its store with at least min
// and returns the store with its dataset handle.
func (r *Registry) Resolve(ctx context.Context, sess Session, min domain.Permission) (*Store, error) {
	if sess.UserID <= 0 {
		return nil, apperr.Unauthorized("no user in session")
	}
	if sess.StoreID <= 0 {
		return nil, apperr.Unauthorized("no store selected")
	}
	if _, err := r.userByID(ctx, sess.UserID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthorized("unknown user")
		}
		return nil, err
	}
	store, err := r.store(ctx, sess.StoreID)
	if err != nil {
		return nil, err
	}
	level, err := r.level(ctx, r.db, sess.StoreID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if level == domain.PermissionNone || !level.AtLeast(min) {
		return nil, apperr.Forbidden(fmt.Sprintf("%s access required", min))
	}

	db, err := r.handle(ctx, store.Dataset)
	if err != nil {
		return nil, err
	}
	return &Store{Store: store, Level: level, db: db}, nil
}

// Close closes every dataset handle and the registry database.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for dataset, db := range r.handles {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", dataset, err))
		}
		delete(r.handles, dataset)
	}
	if err := r.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close registry: %w", err))
	}
	return errors.Join(errs...)
}

func (r *Registry) store(ctx context.Context, storeID int64) (domain.Store, error) {
	var store domain.Store
	err := r.db.GetContext(ctx, &store, `SELECT id, name, owner_id, dataset, created_at FROM stores WHERE id = ?`, storeID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Store{}, apperr.NotFound("store", storeID)
	}
	if err != nil {
		return domain.Store{}, fmt.Errorf("tenant: load store: %w", err)
	}
	return store, nil
}

func (r *Registry) level(ctx context.Context, q sqlx.QueryerContext, storeID, userID int64) (domain.Permission, error) {
	var level domain.Permission
	err := sqlx.GetContext(ctx, q, &level, `SELECT level FROM store_permissions WHERE store_id = ? AND user_id = ?`, storeID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PermissionNone, nil
	}
	if err != nil {
		return domain.PermissionNone, fmt.Errorf("tenant: load permission: %w", err)
	}
	return level, nil
}

// handle returns the cached handle of a dataset, opening and migrating it
// on first use. Concurrent first uses share one open.
func (r *Registry) handle(ctx context.Context, dataset string) (*sqlx.DB, error) {
	r.mu.Lock()
	db, ok := r.handles[dataset]
	r.mu.Unlock()
	if ok {
		return db, nil
	}

	ch := r.opening.DoChan(dataset, func() (any, error) {
		r.mu.Lock()
		if db, ok := r.handles[dataset]; ok {
			r.mu.Unlock()
			return db, nil
		}
		r.mu.Unlock()

		db, err := database.Connect(database.FileDSN(r.datasetPath(dataset)))
		if err != nil {
			return nil, err
		}
		if err := migrations.RunStore(db); err != nil {
			_ = db.Close()
			return nil, err
		}

		r.mu.Lock()
		r.handles[dataset] = db
		r.mu.Unlock()
		r.log.Debug().Str("dataset", dataset).Msg("dataset opened")
		return db, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("tenant: open dataset %s: %w", dataset, res.Err)
		}
		return res.Val.(*sqlx.DB), nil
	}
}

// discard closes and removes a dataset that never got registered.
func (r *Registry) discard(dataset string) {
	r.mu.Lock()
	db, ok := r.handles[dataset]
	delete(r.handles, dataset)
	r.mu.Unlock()
	if ok {
		_ = db.Close()
	}
	path := r.datasetPath(dataset)
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.log.Warn().Err(err).Str("path", p).Msg("could not remove orphan dataset")
		}
	}
}

func (r *Registry) datasetPath(dataset string) string {
	return filepath.Join(r.dataDir, dataset+".db")
}
