package cmd

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-dedupe/internal/config"
	"github.com/kozaktomas/photo-dedupe/internal/engine"
	"github.com/kozaktomas/photo-dedupe/internal/fingerprint"
	"github.com/kozaktomas/photo-dedupe/internal/kv"
	"github.com/kozaktomas/photo-dedupe/internal/photostore"
	"github.com/kozaktomas/photo-dedupe/internal/photostore/photoprism"
)

// photoSource combines the photo inventory with pixel access. Both the
// filesystem store and the PhotoPrism store satisfy it.
type photoSource interface {
	photostore.Store
	fingerprint.Source
}

// appDeps holds the wired services a command works against.
type appDeps struct {
	cfg         *config.Config
	store       kv.Store
	photos      photoSource
	engine      *engine.Engine
	closePhotos func()
}

// Close releases the store and the photo source.
func (a *appDeps) Close() {
	if a.closePhotos != nil {
		a.closePhotos()
	}
	if err := a.store.Close(); err != nil {
		fmt.Printf("Warning: failed to close store: %v\n", err)
	}
}

// openStore opens the key-value store selected by STORE_BACKEND.
func openStore(cfg *config.Config) (kv.Store, error) {
	switch cfg.Store.Backend {
	case "badger":
		return kv.NewBadgerStore(cfg.Store.BadgerPath)
	case "postgres":
		return kv.NewPostgresStore(kv.PostgresConfig{
			URL:          cfg.Store.PostgresURL,
			MaxOpenConns: cfg.Store.MaxOpenConns,
			MaxIdleConns: cfg.Store.MaxIdleConns,
		})
	case "memory":
		return kv.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q (badger, postgres or memory)", cfg.Store.Backend)
	}
}

// openPhotos opens the photo source. An explicit directory wins, then a
// configured PhotoPrism database, then PHOTOS_DIR. The returned close
// function is always safe to call.
func openPhotos(cfg *config.Config, dir string) (photoSource, func(), error) {
	if dir == "" && cfg.Photos.PhotoPrismDSN != "" {
		store, err := photoprism.NewStore(cfg.Photos.PhotoPrismDSN, cfg.Photos.PhotoPrismOriginals)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PhotoPrism database: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}

	if dir == "" {
		dir = cfg.Photos.Dir
	}
	if dir == "" {
		return nil, nil, errors.New("no photo source: pass --dir or set PHOTOS_DIR or PHOTOPRISM_DATABASE_URL")
	}

	store, err := photostore.NewFilesystemStore(dir)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

// newEngine builds an engine over a store and an optional pixel source.
func newEngine(cfg *config.Config, store kv.Store, source fingerprint.Source) *engine.Engine {
	return engine.New(engine.Options{
		Store:     store,
		Source:    source,
		ResultTTL: cfg.Engine.ResultTTL,
		ImageTTL:  cfg.Engine.ImageCooldown,
		GroupTTL:  cfg.Engine.GroupCooldown,
	})
}

// initApp wires the store, the photo source and the engine. Commands that
// fingerprint photos or plan batches go through here; dir overrides the
// configured photo directory when non-empty.
func initApp(dir string) (*appDeps, error) {
	cfg := config.Load()

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	photos, closePhotos, err := openPhotos(cfg, dir)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &appDeps{
		cfg:         cfg,
		store:       store,
		photos:      photos,
		engine:      newEngine(cfg, store, photos),
		closePhotos: closePhotos,
	}, nil
}

// initStoreApp wires only the store-backed parts. Commands that never read
// pixels (marking groups processed, clearing checkpoints, cache stats) use
// it so they work without a configured photo source.
func initStoreApp() (*appDeps, error) {
	cfg := config.Load()

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	return &appDeps{
		cfg:    cfg,
		store:  store,
		engine: newEngine(cfg, store, nil),
	}, nil
}
