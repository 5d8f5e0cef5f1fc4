package printerstore

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Logger is the narrow logging surface printerstore depends on; the
// package declares the interface it needs rather than importing a
// concrete logger type.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

type nopLogger struct{}

func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

const schemaVersion = 2

// Store is the SQLite-backed printer configuration catalog.
type Store struct {
	db  *sql.DB
	log Logger
}

// Open opens (creating if necessary) the printer_configs table at path,
// applying WAL mode and a busy timeout, then runs schema migration.
func Open(path string, log Logger) (*Store, error) {
	if log == nil {
		log = nopLogger{}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening printer config database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS printer_configs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			connection_details TEXT NOT NULL,
			paper_size TEXT NOT NULL,
			character_set TEXT NOT NULL,
			role TEXT NOT NULL,
			is_default INTEGER NOT NULL DEFAULT 0,
			fallback_printer_id TEXT,
			enabled INTEGER NOT NULL DEFAULT 1,
			firmware TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_printer_configs_role ON printer_configs(role);
		CREATE TABLE IF NOT EXISTS printer_configs_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating printer_configs schema: %w", err)
	}
	return nil
}

// migrate applies in-place ADD COLUMN migrations for additive changes,
// stamped via a version row in printer_configs_meta. Destructive changes
// (widening an enum, say) would instead rebuild the table in a
// transaction: create-new, copy, drop, rename, recreate indexes.
func (s *Store) migrate() error {
	current := 1
	var v string
	err := s.db.QueryRow(`SELECT value FROM printer_configs_meta WHERE key='schema_version'`).Scan(&v)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if err == nil {
		if _, perr := fmt.Sscanf(v, "%d", &current); perr != nil {
			return fmt.Errorf("parsing schema version %q: %w", v, perr)
		}
	}

	if current < 2 {
		// Render mode and template style arrived after the first release
		// and are added with defaults. The store's queries and
		// PrinterConfig neither read nor write these columns.
		if _, err := s.db.Exec(
			`ALTER TABLE printer_configs ADD COLUMN render_mode TEXT NOT NULL DEFAULT 'escpos'`); err != nil {
			return fmt.Errorf("adding render_mode column: %w", err)
		}
		if _, err := s.db.Exec(
			`ALTER TABLE printer_configs ADD COLUMN template_style TEXT NOT NULL DEFAULT 'standard'`); err != nil {
			return fmt.Errorf("adding template_style column: %w", err)
		}
		s.log.Info("printer config schema migrated", "from", current, "to", 2)
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO printer_configs_meta(key, value) VALUES ('schema_version', ?)`,
		fmt.Sprint(schemaVersion))
	return err
}

func newID() string {
	b := make([]byte, 16)
	rand.Read(b)
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// Save inserts a new printer config, enforcing name uniqueness and
// demoting any existing default for the same role.
func (s *Store) Save(n NewPrinterConfig) (PrinterConfig, error) {
	if err := n.validate(); err != nil {
		return PrinterConfig{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return PrinterConfig{}, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM printer_configs WHERE name = ?`, n.Name).Scan(&exists); err != nil {
		return PrinterConfig{}, err
	}
	if exists > 0 {
		return PrinterConfig{}, ErrDuplicateName
	}

	if n.IsDefault {
		if _, err := tx.Exec(`UPDATE printer_configs SET is_default = 0, updated_at = ? WHERE role = ? AND is_default = 1`,
			time.Now().UTC().Format(time.RFC3339Nano), string(n.Role)); err != nil {
			return PrinterConfig{}, err
		}
	}

	cfg := PrinterConfig{
		ID:                newID(),
		Name:              n.Name,
		Type:              n.Type,
		ConnectionDetails: n.ConnectionDetails,
		PaperSize:         n.PaperSize,
		CharacterSet:      n.CharacterSet,
		Role:              n.Role,
		IsDefault:         n.IsDefault,
		FallbackPrinterID: n.FallbackPrinterID,
		Enabled:           n.Enabled,
		Firmware:          n.Firmware,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}

	details, err := json.Marshal(cfg.ConnectionDetails)
	if err != nil {
		return PrinterConfig{}, err
	}

	_, err = tx.Exec(`
		INSERT INTO printer_configs
			(id, name, type, connection_details, paper_size, character_set, role, is_default, fallback_printer_id, enabled, firmware, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.Name, string(cfg.Type), string(details), string(cfg.PaperSize), cfg.CharacterSet, string(cfg.Role),
		boolToInt(cfg.IsDefault), cfg.FallbackPrinterID, boolToInt(cfg.Enabled), cfg.Firmware,
		cfg.CreatedAt.Format(time.RFC3339Nano), cfg.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return PrinterConfig{}, fmt.Errorf("inserting printer config: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return PrinterConfig{}, err
	}
	s.log.Info("printer config saved", "id", cfg.ID, "name", cfg.Name, "role", string(cfg.Role))
	return cfg, nil
}

// Get returns one printer config by id.
func (s *Store) Get(id string) (PrinterConfig, error) {
	row := s.db.QueryRow(`
		SELECT id, name, type, connection_details, paper_size, character_set, role, is_default, fallback_printer_id, enabled, firmware, created_at, updated_at
		FROM printer_configs WHERE id = ?`, id)
	return scanConfig(row)
}

// GetByName returns one printer config by its unique name.
func (s *Store) GetByName(name string) (PrinterConfig, error) {
	row := s.db.QueryRow(`
		SELECT id, name, type, connection_details, paper_size, character_set, role, is_default, fallback_printer_id, enabled, firmware, created_at, updated_at
		FROM printer_configs WHERE name = ?`, name)
	return scanConfig(row)
}

// GetAll returns every printer config, ordered by name.
func (s *Store) GetAll() ([]PrinterConfig, error) {
	rows, err := s.db.Query(`
		SELECT id, name, type, connection_details, paper_size, character_set, role, is_default, fallback_printer_id, enabled, firmware, created_at, updated_at
		FROM printer_configs ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigs(rows)
}

// GetEnabled returns every enabled printer config.
func (s *Store) GetEnabled() ([]PrinterConfig, error) {
	rows, err := s.db.Query(`
		SELECT id, name, type, connection_details, paper_size, character_set, role, is_default, fallback_printer_id, enabled, firmware, created_at, updated_at
		FROM printer_configs WHERE enabled = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigs(rows)
}

// GetByRole returns every printer config assigned to role.
func (s *Store) GetByRole(role Role) ([]PrinterConfig, error) {
	rows, err := s.db.Query(`
		SELECT id, name, type, connection_details, paper_size, character_set, role, is_default, fallback_printer_id, enabled, firmware, created_at, updated_at
		FROM printer_configs WHERE role = ? ORDER BY name ASC`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigs(rows)
}

// GetDefaultForRole returns the single default printer for role, if any.
func (s *Store) GetDefaultForRole(role Role) (PrinterConfig, error) {
	row := s.db.QueryRow(`
		SELECT id, name, type, connection_details, paper_size, character_set, role, is_default, fallback_printer_id, enabled, firmware, created_at, updated_at
		FROM printer_configs WHERE role = ? AND is_default = 1`, string(role))
	return scanConfig(row)
}

// Update applies a partial patch, re-checking name uniqueness and
// re-enforcing the single-default-per-role invariant if IsDefault is set.
func (s *Store) Update(id string, u Update) (PrinterConfig, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return PrinterConfig{}, err
	}
	defer tx.Rollback()

	existing, err := scanConfig(tx.QueryRow(`
		SELECT id, name, type, connection_details, paper_size, character_set, role, is_default, fallback_printer_id, enabled, firmware, created_at, updated_at
		FROM printer_configs WHERE id = ?`, id))
	if err != nil {
		return PrinterConfig{}, err
	}

	if u.Name != nil {
		existing.Name = *u.Name
	}
	if u.Type != nil {
		existing.Type = *u.Type
	}
	if u.ConnectionDetails != nil {
		existing.ConnectionDetails = *u.ConnectionDetails
	}
	if u.PaperSize != nil {
		existing.PaperSize = *u.PaperSize
	}
	if u.CharacterSet != nil {
		existing.CharacterSet = *u.CharacterSet
	}
	if u.Role != nil {
		existing.Role = *u.Role
	}
	if u.FallbackPrinterID != nil {
		if *u.FallbackPrinterID != nil && **u.FallbackPrinterID == id {
			return PrinterConfig{}, fmt.Errorf("%w: a printer cannot be its own fallback", ErrInvalid)
		}
		existing.FallbackPrinterID = *u.FallbackPrinterID
	}
	if u.Enabled != nil {
		existing.Enabled = *u.Enabled
	}
	if u.Firmware != nil {
		existing.Firmware = *u.Firmware
	}

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM printer_configs WHERE name = ? AND id != ?`, existing.Name, id).Scan(&exists); err != nil {
		return PrinterConfig{}, err
	}
	if exists > 0 {
		return PrinterConfig{}, ErrDuplicateName
	}

	if u.IsDefault != nil {
		existing.IsDefault = *u.IsDefault
		if existing.IsDefault {
			if _, err := tx.Exec(`UPDATE printer_configs SET is_default = 0, updated_at = ? WHERE role = ? AND is_default = 1 AND id != ?`,
				time.Now().UTC().Format(time.RFC3339Nano), string(existing.Role), id); err != nil {
				return PrinterConfig{}, err
			}
		}
	}

	existing.UpdatedAt = time.Now().UTC()
	details, err := json.Marshal(existing.ConnectionDetails)
	if err != nil {
		return PrinterConfig{}, err
	}

	_, err = tx.Exec(`
		UPDATE printer_configs SET name=?, type=?, connection_details=?, paper_size=?, character_set=?, role=?,
			is_default=?, fallback_printer_id=?, enabled=?, firmware=?, updated_at=?
		WHERE id = ?`,
		existing.Name, string(existing.Type), string(details), string(existing.PaperSize), existing.CharacterSet,
		string(existing.Role), boolToInt(existing.IsDefault), existing.FallbackPrinterID, boolToInt(existing.Enabled),
		existing.Firmware, existing.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return PrinterConfig{}, fmt.Errorf("updating printer config: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return PrinterConfig{}, err
	}
	s.log.Info("printer config updated", "id", id)
	return existing, nil
}

// Delete removes a printer config and nulls out any FallbackPrinterID
// referencing it elsewhere, in one transaction.
func (s *Store) Delete(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM printer_configs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`UPDATE printer_configs SET fallback_printer_id = NULL, updated_at = ? WHERE fallback_printer_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info("printer config deleted", "id", id)
	return nil
}

// NameExists reports whether name is already taken, optionally ignoring
// the config identified by excludeID (for update flows checking their
// own row).
func (s *Store) NameExists(name, excludeID string) (bool, error) {
	var n int
	var err error
	if excludeID != "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM printer_configs WHERE name = ? AND id != ?`, name, excludeID).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM printer_configs WHERE name = ?`, name).Scan(&n)
	}
	return n > 0, err
}

// Count returns the total number of configured printers.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM printer_configs`).Scan(&n)
	return n, err
}

// ExportAll returns every config in its serialized (export) shape, used by
// the orchestrator's settings export operation.
func (s *Store) ExportAll() ([]SerializedConfig, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]SerializedConfig, len(all))
	for i, c := range all {
		out[i] = c.ToSerialized()
	}
	return out, nil
}

// ImportAll loads docs into the printer_configs table, preserving ids so
// routing references elsewhere remain valid. With replace set the table
// is cleared first; otherwise rows are upserted by id. Runs in one
// transaction so a partial import never leaves the table half-populated.
// Returns the number of configs imported.
func (s *Store) ImportAll(docs []SerializedConfig, replace bool) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.Exec(`DELETE FROM printer_configs`); err != nil {
			return 0, err
		}
	}

	count := 0
	seenDefault := make(map[Role]bool)
	for _, d := range docs {
		details, err := json.Marshal(d.ConnectionDetails)
		if err != nil {
			return 0, err
		}
		isDefault := d.IsDefault && !seenDefault[d.Role]
		if isDefault {
			seenDefault[d.Role] = true
			if _, err := tx.Exec(`UPDATE printer_configs SET is_default = 0, updated_at = ? WHERE role = ? AND is_default = 1 AND id != ?`,
				time.Now().UTC().Format(time.RFC3339Nano), string(d.Role), d.ID); err != nil {
				return 0, err
			}
		}
		_, err = tx.Exec(`
			INSERT OR REPLACE INTO printer_configs
				(id, name, type, connection_details, paper_size, character_set, role, is_default, fallback_printer_id, enabled, firmware, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.Name, string(d.Type), string(details), string(d.PaperSize), d.CharacterSet, string(d.Role),
			boolToInt(isDefault), d.FallbackPrinterID, boolToInt(d.Enabled), d.Firmware,
			d.CreatedAt.Format(time.RFC3339Nano), d.UpdatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return 0, fmt.Errorf("importing printer config %s: %w", d.Name, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfig(row rowScanner) (PrinterConfig, error) {
	var c PrinterConfig
	var typ, details, paperSize, role string
	var isDefault, enabled int
	var fallbackID sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.Name, &typ, &details, &paperSize, &c.CharacterSet, &role, &isDefault, &fallbackID,
		&enabled, &c.Firmware, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return PrinterConfig{}, ErrNotFound
	}
	if err != nil {
		return PrinterConfig{}, err
	}

	c.Type = PrinterType(typ)
	c.PaperSize = PaperSize(paperSize)
	c.Role = Role(role)
	c.IsDefault = isDefault != 0
	c.Enabled = enabled != 0
	if fallbackID.Valid {
		id := fallbackID.String
		c.FallbackPrinterID = &id
	}
	if err := json.Unmarshal([]byte(details), &c.ConnectionDetails); err != nil {
		return PrinterConfig{}, fmt.Errorf("decoding connection details: %w", err)
	}
	c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return PrinterConfig{}, err
	}
	c.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return PrinterConfig{}, err
	}
	return c, nil
}

func scanConfigs(rows *sql.Rows) ([]PrinterConfig, error) {
	var out []PrinterConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
