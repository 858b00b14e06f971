package vincent

import (
	"database/sql"
	"fmt"

	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/myst6re/vincent-tim/metadata"
	"github.com/myst6re/vincent-tim/tim"
)

// Catalog records the TIM files found by analysis and histograms of the
// metadata fields of collected textures
type Catalog struct {
	db *sql.DB
}

// Container is a distinct TIM file found at least once
type Container struct {
	Hash        string
	Depth       int
	Width       int
	Height      int
	Palettes    int
	Occurrences int
}

// FieldCount is the number of textures with a metadata field set to value
type FieldCount struct {
	Name  string
	Value uint32
	Count int
}

// NewCatalog opens or creates the catalog in file
func NewCatalog(file string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=5000", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS container (id INTEGER PRIMARY KEY NOT NULL, hash TEXT NOT NULL UNIQUE, depth INTEGER NOT NULL, width INTEGER NOT NULL, height INTEGER NOT NULL, palettes INTEGER NOT NULL)"); err != nil {
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS occurrence (container_id INTEGER NOT NULL, source TEXT NOT NULL, byte_offset INTEGER NOT NULL, size INTEGER NOT NULL, UNIQUE(source, byte_offset), FOREIGN KEY(container_id) REFERENCES container(id))"); err != nil {
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS field (format TEXT NOT NULL, name TEXT NOT NULL, value INTEGER NOT NULL, count INTEGER NOT NULL, PRIMARY KEY(format, name, value))"); err != nil {
		return nil, err
	}

	return &Catalog{
		db: db,
	}, nil
}

// Close closes the catalog
func (c *Catalog) Close() error {
	return c.db.Close()
}

func hash(b []byte) string {
	return fmt.Sprintf("%016X", xxhash.Sum64(b))
}

// AddContainer records that data, decoded as f, was found in source at p.
// Identical files found elsewhere share one container row.
func (c *Catalog) AddContainer(source string, p tim.Position, data []byte, f *tim.File) error {
	id, err := c.addContainer(data, f)
	if err != nil {
		return err
	}

	if _, err := c.db.Exec("INSERT OR REPLACE INTO occurrence (container_id, source, byte_offset, size) VALUES (?, ?, ?, ?)", id, source, p.Offset, p.Size); err != nil {
		return err
	}
	return nil
}

func (c *Catalog) addContainer(data []byte, f *tim.File) (int64, error) {
	sum := hash(data)

	var id int64
	switch err := c.db.QueryRow("SELECT id FROM container WHERE hash = ?", sum).Scan(&id); err {
	case sql.ErrNoRows:
		b := f.Texture().Bounds()
		result, err := c.db.Exec("INSERT INTO container (hash, depth, width, height, palettes) VALUES (?, ?, ?, ?, ?)", sum, f.Depth(), b.Dx(), b.Dy(), f.Texture().ColorTableCount())
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	case nil:
		return id, nil
	default:
		return 0, err
	}
}

// Containers returns every distinct container ordered by hash
func (c *Catalog) Containers() ([]Container, error) {
	rows, err := c.db.Query("SELECT c.hash, c.depth, c.width, c.height, c.palettes, COUNT(o.source) FROM container AS c LEFT JOIN occurrence AS o ON o.container_id = c.id GROUP BY c.id ORDER BY c.hash")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var containers []Container
	for rows.Next() {
		var ct Container
		if err := rows.Scan(&ct.Hash, &ct.Depth, &ct.Width, &ct.Height, &ct.Palettes, &ct.Occurrences); err != nil {
			return nil, err
		}
		containers = append(containers, ct)
	}
	return containers, rows.Err()
}

// AddFields counts every unsigned integer field of m against format.
// Fields that do not hold an integer are skipped.
func (c *Catalog) AddFields(format string, m *metadata.Metadata) error {
	for _, key := range m.Keys() {
		v, _, err := m.Uint(key, 32)
		if err != nil {
			continue
		}
		if _, err := c.db.Exec("INSERT INTO field (format, name, value, count) VALUES (?, ?, ?, 1) ON CONFLICT(format, name, value) DO UPDATE SET count = count + 1", format, key, v); err != nil {
			return err
		}
	}
	return nil
}

// Fields returns the field histogram of format ordered by name then value
func (c *Catalog) Fields(format string) ([]FieldCount, error) {
	rows, err := c.db.Query("SELECT name, value, count FROM field WHERE format = ? ORDER BY name, value", format)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []FieldCount
	for rows.Next() {
		var fc FieldCount
		if err := rows.Scan(&fc.Name, &fc.Value, &fc.Count); err != nil {
			return nil, err
		}
		fields = append(fields, fc)
	}
	return fields, rows.Err()
}
