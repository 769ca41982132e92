package cli

import (
	"database/sql"

	"datavault/config"
	"datavault/crypto"
	"datavault/db"
	"datavault/logging"
	"datavault/notes"
	"datavault/secrets"
)

// openStore opens the configured secure store. Tests swap it for a shared
// in-memory store.
var openStore = func(cfg config.Config) (secrets.Store, error) {
	return secrets.OpenKeyring(secrets.KeyringConfig{
		Backend:      cfg.Keyring.Backend,
		Service:      cfg.Keyring.Service,
		FileDir:      cfg.Keyring.FileDir,
		FilePassword: cfg.Keyring.FilePassword,
	})
}

type app struct {
	conn  *sql.DB
	store secrets.Store
	notes *notes.Repository
}

func openApp() (*app, error) {
	cfg := config.AppConfig

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	opts := []notes.Option{notes.WithLogger(logging.ForModule("notes"))}
	if cfg.KeyCacheTTL > 0 {
		opts = append(opts, notes.WithKeyCache(crypto.NewKeyCache(cfg.KeyCacheTTL)))
	}

	return &app{
		conn:  conn,
		store: store,
		notes: notes.NewRepository(conn, store, opts...),
	}, nil
}

func (a *app) Close() error {
	return a.conn.Close()
}
