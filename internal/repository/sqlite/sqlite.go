package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"iotexplorer/internal/domain"
)

// Repository implements repository.DeviceStore using SQLite
type Repository struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and migrates the schema.
// ":memory:" gives a private in-memory database.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; also keeps an in-memory database on a single connection
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		mac TEXT PRIMARY KEY,
		ip TEXT NOT NULL,
		server TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		main_command TEXT,
		available INTEGER NOT NULL DEFAULT 0,
		status JSON,
		missed_updates INTEGER NOT NULL DEFAULT 0,
		payload JSON,
		last_seen DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_devices_type ON devices(type);
	`

	_, err := r.db.Exec(schema)
	return err
}

// ListDevices returns every persisted device ordered by MAC
func (r *Repository) ListDevices(ctx context.Context) ([]domain.DeviceSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deviceColumns+`
		FROM devices
		ORDER BY mac
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.DeviceSnapshot
	for rows.Next() {
		var row deviceRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		device, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", row.mac, err)
		}
		devices = append(devices, device)
	}

	return devices, rows.Err()
}

// GetDevice retrieves one device, or nil when the MAC is unknown
func (r *Repository) GetDevice(ctx context.Context, mac string) (*domain.DeviceSnapshot, error) {
	var row deviceRow
	err := r.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+`
		FROM devices WHERE mac = ?
	`, mac).Scan(row.scanArgs()...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	device, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// SaveDevices upserts devices in a single transaction
func (r *Repository) SaveDevices(ctx context.Context, devices []domain.DeviceSnapshot) error {
	if len(devices) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mac) DO UPDATE SET
			ip = excluded.ip,
			server = excluded.server,
			name = excluded.name,
			type = excluded.type,
			main_command = excluded.main_command,
			available = excluded.available,
			status = excluded.status,
			missed_updates = excluded.missed_updates,
			payload = excluded.payload,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, device := range devices {
		args, err := deviceInsertArgs(device)
		if err != nil {
			return fmt.Errorf("device %s: %w", device.MAC, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to upsert device %s: %w", device.MAC, err)
		}
	}

	return tx.Commit()
}

// DeleteDevice removes a device by MAC
func (r *Repository) DeleteDevice(ctx context.Context, mac string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE mac = ?", mac)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
