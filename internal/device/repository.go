package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const selectColumns = `
		SELECT id, type, name, service, subservice, lazy,
			registration_id, internal_id
		FROM devices`

// SQLiteRepository implements Registry using SQLite.
// The devices table is created by the embedded migrations.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed registry.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Store inserts the device or replaces the row with the same id.
func (r *SQLiteRepository) Store(ctx context.Context, d *Device) (*Device, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}

	lazy := d.Lazy
	if lazy == nil {
		lazy = []Attribute{}
	}
	lazyJSON, err := json.Marshal(lazy)
	if err != nil {
		return nil, fmt.Errorf("marshalling lazy attributes: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO devices (
			id, type, name, service, subservice, lazy,
			registration_id, internal_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			service = excluded.service,
			subservice = excluded.subservice,
			lazy = excluded.lazy,
			registration_id = excluded.registration_id,
			internal_id = excluded.internal_id,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		d.ID,
		d.Type,
		d.Name,
		d.Service,
		d.Subservice,
		string(lazyJSON),
		d.RegistrationID,
		d.InternalID,
		now,
		now,
	)
	if err != nil {
		return nil, internalDB("storing device", err)
	}

	return d.DeepCopy(), nil
}

// Remove deletes a device by id.
func (r *SQLiteRepository) Remove(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return internalDB("deleting device", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return internalDB("checking rows affected", err)
	}
	if rowsAffected == 0 {
		return notFound(id)
	}

	return nil
}

// Get retrieves a device by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, internalDB("querying device by id", err)
	}
	return d, nil
}

// List retrieves all devices ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+" ORDER BY id")
	if err != nil {
		return nil, internalDB("querying devices", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, internalDB("scanning device", err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, internalDB("iterating devices", err)
	}

	return devices, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var lazyJSON string

	err := scanner.Scan(
		&d.ID,
		&d.Type,
		&d.Name,
		&d.Service,
		&d.Subservice,
		&lazyJSON,
		&d.RegistrationID,
		&d.InternalID,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(lazyJSON), &d.Lazy); err != nil {
		return nil, fmt.Errorf("unmarshalling lazy attributes: %w", err)
	}

	return &d, nil
}
