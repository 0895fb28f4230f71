package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"maktaba/m/domain"
	"maktaba/m/internal/api"
	"maktaba/m/internal/config"
	"maktaba/m/internal/logger"
	"maktaba/m/internal/seed"
	"maktaba/m/internal/tenant"
)

type app struct {
	cfg      config.Config
	log      zerolog.Logger
	registry *tenant.Registry
}

func (a *app) open(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.log = logger.New(cfg.LogLevel, cfg.LogFormat)

	a.registry, err = tenant.Open(cfg.RegistryDSN, cfg.DataDir, a.log)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	return nil
}

func (a *app) close(c *cli.Context) error {
	if a.registry == nil {
		return nil
	}
	return a.registry.Close()
}

func main() {
	a := &app{}
	cliApp := &cli.App{
		Name:   "maktaba",
		Usage:  "Multi-store point of sale and inventory server",
		Before: a.open,
		After:  a.close,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: a.serve,
			},
			{
				Name:  "create-user",
				Usage: "Create an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"MAKTABA_PASSWORD"}},
				},
				Action: a.createUser,
			},
			{
				Name:  "create-store",
				Usage: "Create a store owned by an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Usage: "owner email", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
				},
				Action: a.createStore,
			},
			{
				Name:  "grant",
				Usage: "Give an account a permission level on a store",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "store", Required: true},
					&cli.StringFlag{Name: "as", Usage: "grantor email", Required: true},
					&cli.StringFlag{Name: "email", Usage: "grantee email", Required: true},
					&cli.StringFlag{Name: "level", Usage: "viewer, editor, manager or owner", Required: true},
				},
				Action: a.grant,
			},
			{
				Name:  "import-items",
				Usage: "Import an item catalog CSV into a store",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "store", Required: true},
					&cli.StringFlag{Name: "as", Usage: "email of an editor of the store", Required: true},
					&cli.StringFlag{Name: "file", Usage: "CSV with code, name, buy_price, sell_price, qty columns", Required: true},
				},
				Action: a.importItems,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) serve(c *cli.Context) error {
	handler := api.New(a.registry, api.Options{
		Secret:         a.cfg.Secret,
		TokenTTL:       a.cfg.TokenTTL,
		LoginRateLimit: a.cfg.LoginRateLimit,
		CORSOrigins:    a.cfg.CORSOrigins,
	}, a.log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Msg("maktaba server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) createUser(c *cli.Context) error {
	user, err := a.registry.CreateUser(c.Context, c.String("username"), c.String("email"), c.String("password"))
	if err != nil {
		return err
	}
	a.log.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("user created")
	return nil
}

func (a *app) createStore(c *cli.Context) error {
	owner, err := a.registry.UserByEmail(c.Context, c.String("owner"))
	if err != nil {
		return err
	}
	store, err := a.registry.CreateStore(c.Context, owner.ID, c.String("name"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "store %d (%s) created\n", store.ID, store.Name)
	return nil
}

func (a *app) grant(c *cli.Context) error {
	level, err := domain.ParsePermission(c.String("level"))
	if err != nil {
		return err
	}
	grantor, err := a.registry.UserByEmail(c.Context, c.String("as"))
	if err != nil {
		return err
	}
	grantee, err := a.registry.UserByEmail(c.Context, c.String("email"))
	if err != nil {
		return err
	}
	return a.registry.Grant(c.Context, grantor.ID, c.Int64("store"), grantee.ID, level)
}

func (a *app) importItems(c *cli.Context) error {
	user, err := a.registry.UserByEmail(c.Context, c.String("as"))
	if err != nil {
		return err
	}
	store, err := a.registry.Resolve(c.Context, tenant.Session{UserID: user.ID, StoreID: c.Int64("store")}, domain.PermissionEditor)
	if err != nil {
		return err
	}
	res, err := seed.LoadItemsFile(c.Context, store.DB(), c.String("file"), a.log)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "imported %d items, skipped %d\n", res.Inserted, res.Skipped)
	return nil
}
