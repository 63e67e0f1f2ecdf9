// Package app assembles a crudflow service from a Config: it opens the
// document store, creates the RPC session and registers one ViewSet per
// configured collection.
package app

import (
	"context"
	"errors"
	"fmt"

	runtimepkg "github.com/drblury/crudflow/internal/runtime"
	configpkg "github.com/drblury/crudflow/internal/runtime/config"
	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
	"github.com/drblury/crudflow/internal/runtime/logging"
	"github.com/drblury/crudflow/internal/runtime/schema"
	"github.com/drblury/crudflow/internal/runtime/store"
	"github.com/drblury/crudflow/internal/runtime/viewset"

	_ "github.com/drblury/crudflow/internal/runtime/store/memory"
	_ "github.com/drblury/crudflow/internal/runtime/store/postgres"
	_ "github.com/drblury/crudflow/internal/runtime/store/sqlite"
	_ "github.com/drblury/crudflow/transport/transports"
)

// Dependencies lets callers swap collaborators. Zero values use the defaults.
type Dependencies struct {
	Service runtimepkg.ServiceDependencies
	// Store replaces the backend selected by the config. App closes it.
	Store store.ObjectStore
}

// App owns the store, the service and the registered viewsets.
type App struct {
	conf     *configpkg.Config
	log      logging.ServiceLogger
	store    store.ObjectStore
	service  *runtimepkg.Service
	viewsets []*viewset.ViewSet
}

// New applies defaults to cfg, validates it and registers every collection.
// Any error is a configuration fault and leaves nothing open.
func New(ctx context.Context, cfg *configpkg.Config, log logging.ServiceLogger, deps Dependencies) (*App, error) {
	if cfg != nil {
		cfg.ApplyDefaults()
	}
	if err := configpkg.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	st := deps.Store
	if st == nil {
		var err error
		st, err = store.Open(ctx, store.Options{
			Backend:     cfg.Store,
			SQLiteFile:  cfg.SQLiteFile,
			PostgresURL: cfg.PostgresURL,
			Logger:      logging.Component(log, "store"),
		})
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	svc, err := runtimepkg.NewService(ctx, cfg, log, deps.Service)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a := &App{conf: cfg, log: log, store: st, service: svc}
	if err := a.registerCollections(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) registerCollections(ctx context.Context) error {
	validator := schema.NewValidator()
	for _, col := range a.conf.Collections {
		caps, err := Capabilities(col, validator)
		if err != nil {
			return fmt.Errorf("collection %s: %w", col.Name, err)
		}
		vs, err := viewset.New(viewset.Config{
			Name:         col.Name,
			URIPrefix:    a.conf.URIPrefix,
			Capabilities: caps,
		}, viewset.Dependencies{
			Session:   a.service,
			Store:     a.store,
			Validator: validator,
			Logger:    a.log,
		})
		if err != nil {
			return err
		}
		if err := vs.Register(ctx); err != nil {
			return fmt.Errorf("collection %s: %w", col.Name, err)
		}
		a.log.Info("Registered collection", logging.LogFields{
			"collection": col.Name,
			"procedures": vs.Procedures(),
		})
		a.viewsets = append(a.viewsets, vs)
	}
	return nil
}

// Capabilities compiles the schemas of col and returns its enabled
// capabilities in list, create, update, delete order.
func Capabilities(col configpkg.CollectionConfig, validator *schema.Validator) ([]viewset.Capability, error) {
	var caps []viewset.Capability
	if col.Enables(viewset.ActionList) {
		caps = append(caps, viewset.List{})
	}
	if col.Enables(viewset.ActionCreate) {
		s, err := validator.Compile(col.Name+".create", col.CreateSchema)
		if err != nil {
			return nil, err
		}
		caps = append(caps, viewset.Create{Schema: s, Timestamp: col.Timestamp})
	}
	if col.Enables(viewset.ActionUpdate) {
		s, err := validator.Compile(col.Name+".update", col.UpdateSchema)
		if err != nil {
			return nil, err
		}
		caps = append(caps, viewset.Update{Schema: s})
	}
	if col.Enables(viewset.ActionDelete) {
		caps = append(caps, viewset.Delete{})
	}
	return caps, nil
}

func (a *App) Service() *runtimepkg.Service { return a.service }
func (a *App) ViewSets() []*viewset.ViewSet { return a.viewsets }

// Run serves until ctx is cancelled, then closes everything.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Error("Failed to shut down cleanly", err, nil)
		}
	}()
	err := a.service.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops the service and closes the store.
func (a *App) Close() error {
	return errors.Join(a.service.Close(), a.store.Close())
}
