// Package catalog records the ingested images and their metadata in a
// sqlite database.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned when the image was never indexed.
var ErrNotFound = errors.New("image not indexed")

const schema = `
CREATE TABLE IF NOT EXISTS images (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	tile_size INTEGER NOT NULL,
	width INTEGER,
	height INTEGER,
	indexed_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS properties (
	image_id TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (image_id, name)
);
CREATE INDEX IF NOT EXISTS idx_properties_image ON properties(image_id);`

// Image is one row of the catalog.
type Image struct {
	ID        string
	FilePath  string
	TileSize  int
	Width     int
	Height    int
	IndexedAt time.Time
}

// Catalog is the sqlite backed index.
type Catalog struct {
	db *sql.DB
}

// Open creates the database and its tables when missing.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite only has one writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create schema: %w", err)
	}

	return &Catalog{db}, nil
}

// Close the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Index records the image, again when ingested twice.
func (c *Catalog) Index(ctx context.Context, id, filePath string, tileSize int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO images (id, file_path, tile_size, indexed_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_path = excluded.file_path,
			tile_size = excluded.tile_size,
			updated_at = excluded.updated_at
	`, id, filePath, tileSize, now, now)
	if err != nil {
		return fmt.Errorf("cannot index %s: %w", id, err)
	}
	return nil
}

// SetDimensions stores the probed dimensions of the image, indexing it when
// it is not yet.
func (c *Catalog) SetDimensions(ctx context.Context, id string, tileSize, width, height int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO images (id, file_path, tile_size, width, height, indexed_at, updated_at)
		VALUES (?, '', ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tile_size = excluded.tile_size,
			width = excluded.width,
			height = excluded.height,
			updated_at = excluded.updated_at
	`, id, tileSize, width, height, now, now)
	if err != nil {
		return fmt.Errorf("cannot record dimensions of %s: %w", id, err)
	}
	return nil
}

// Get returns the catalog entry of the image.
func (c *Catalog) Get(ctx context.Context, id string) (*Image, error) {
	var image Image
	var width, height sql.NullInt64
	var indexedAt string

	err := c.db.QueryRowContext(ctx, `
		SELECT id, file_path, tile_size, width, height, indexed_at FROM images WHERE id = ?
	`, id).Scan(&image.ID, &image.FilePath, &image.TileSize, &width, &height, &indexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	image.Width = int(width.Int64)
	image.Height = int(height.Int64)
	image.IndexedAt, _ = time.Parse(time.RFC3339, indexedAt)
	return &image, nil
}

// SaveProperties replaces the metadata properties of the image. Values are
// kept as JSON.
func (c *Catalog) SaveProperties(ctx context.Context, id string, properties map[string]interface{}) (err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM properties WHERE image_id = ?", id); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO properties (image_id, name, value) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for name, value := range properties {
		var encoded []byte
		if encoded, err = json.Marshal(value); err != nil {
			return fmt.Errorf("property %s of %s: %w", name, id, err)
		}
		if _, err = stmt.ExecContext(ctx, id, name, string(encoded)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Properties returns the metadata properties of the image.
func (c *Catalog) Properties(ctx context.Context, id string) (map[string]interface{}, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name, value FROM properties WHERE image_id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	properties := map[string]interface{}{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			return nil, fmt.Errorf("property %s of %s: %w", name, id, err)
		}
		properties[name] = decoded
	}
	return properties, rows.Err()
}
