// Package notes stores notes in SQLite with both text fields encrypted.
//
// Each call derives the field key from the secret material in the secure
// store, encodes or decodes the fields through the codec and runs exactly
// one statement per row it touches. Rows are never cached between calls.
package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"datavault/codec"
	"datavault/crypto"
	"datavault/models"
	"datavault/secrets"
)

// Repository is the note store.
type Repository struct {
	db      *sql.DB
	secrets *secrets.Provisioner
	codec   *codec.Codec
	keys    *crypto.KeyCache
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithKeyCache memoizes key derivation. Without it the key is derived on
// every call.
func WithKeyCache(c *crypto.KeyCache) Option {
	return func(r *Repository) { r.keys = c }
}

// WithLogger sets the logger used by the repository and its codec.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// NewRepository returns a Repository over conn whose secrets live in store.
func NewRepository(conn *sql.DB, store secrets.Store, opts ...Option) *Repository {
	r := &Repository{
		db:     conn,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.secrets = secrets.NewProvisioner(store, r.logger)
	r.codec = codec.New(r.logger)
	return r
}

// key derives the field key. Failures are fatal to the calling operation.
func (r *Repository) key() ([]byte, error) {
	material, err := r.secrets.Material()
	if err != nil {
		return nil, err
	}
	key, err := r.keys.Derive(material.Passphrase, material.Salt)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (r *Repository) encodePair(key []byte, title, content string) (string, string, error) {
	encTitle, err := r.codec.Encode(title, key)
	if err != nil {
		return "", "", fmt.Errorf("encrypt title: %w", err)
	}
	encContent, err := r.codec.Encode(content, key)
	if err != nil {
		return "", "", fmt.Errorf("encrypt content: %w", err)
	}
	return encTitle, encContent, nil
}

func (r *Repository) millis() int64 {
	return r.now().UnixMilli()
}

// Create inserts a note and returns it with the caller's plaintext.
func (r *Repository) Create(ctx context.Context, title, content string) (models.Note, error) {
	key, err := r.key()
	if err != nil {
		return models.Note{}, err
	}
	encTitle, encContent, err := r.encodePair(key, title, content)
	if err != nil {
		return models.Note{}, err
	}

	now := r.millis()
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO notes (title, content, created_at, updated_at) VALUES (?, ?, ?, ?)",
		encTitle, encContent, now, now)
	if err != nil {
		return models.Note{}, fmt.Errorf("insert note: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return models.Note{}, fmt.Errorf("insert note: %w", err)
	}

	return models.Note{ID: id, Title: title, Content: content, CreatedAt: now, UpdatedAt: now}, nil
}

// List returns every note, most recently updated first. A field that fails
// to decrypt is returned raw; it never fails the listing.
func (r *Repository) List(ctx context.Context) ([]models.Note, error) {
	key, err := r.key()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, title, content, created_at, updated_at FROM notes ORDER BY updated_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := []models.Note{}
	for rows.Next() {
		var n models.Note
		var content sql.NullString
		if err := rows.Scan(&n.ID, &n.Title, &content, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.Title = r.codec.Decode(n.Title, key)
		n.Content = r.codec.Decode(content.String, key)
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	return notes, nil
}

// GetByID returns the note with id; found is false if there is none.
func (r *Repository) GetByID(ctx context.Context, id int64) (note models.Note, found bool, err error) {
	var content sql.NullString
	err = r.db.QueryRowContext(ctx,
		"SELECT id, title, content, created_at, updated_at FROM notes WHERE id = ?", id).
		Scan(&note.ID, &note.Title, &content, &note.CreatedAt, &note.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Note{}, false, nil
	}
	if err != nil {
		return models.Note{}, false, fmt.Errorf("query note %d: %w", id, err)
	}

	key, err := r.key()
	if err != nil {
		return models.Note{}, false, err
	}
	note.Title = r.codec.Decode(note.Title, key)
	note.Content = r.codec.Decode(content.String, key)
	return note, true, nil
}

// Update re-encrypts both fields with fresh IVs and bumps updated_at.
// updated reports whether a row matched; a missing id is not an error.
func (r *Repository) Update(ctx context.Context, id int64, title, content string) (updated bool, err error) {
	key, err := r.key()
	if err != nil {
		return false, err
	}
	encTitle, encContent, err := r.encodePair(key, title, content)
	if err != nil {
		return false, err
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE notes SET title = ?, content = ?, updated_at = MAX(?, created_at) WHERE id = ?",
		encTitle, encContent, r.millis(), id)
	if err != nil {
		return false, fmt.Errorf("update note %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update note %d: %w", id, err)
	}
	return n > 0, nil
}

// Delete removes the note with id. deleted reports whether a row matched.
func (r *Repository) Delete(ctx context.Context, id int64) (deleted bool, err error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete note %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete note %d: %w", id, err)
	}
	return n > 0, nil
}
