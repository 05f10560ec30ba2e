package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"iotexplorer/internal/domain"
)

const deviceColumns = `mac, ip, server, name, type, main_command, available, status,
		missed_updates, payload, last_seen, created_at, updated_at`

// nullToString converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullToTimePtr converts sql.NullTime to *time.Time
func nullToTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

// stringToNull converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timePtrToNull converts *time.Time to sql.NullTime
func timePtrToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// marshalToNull marshals a value to JSON, or NULL when the value is nil
func marshalToNull(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// deviceRow holds scanned columns of the devices table
type deviceRow struct {
	mac, ip, server, name, deviceType string
	mainCommand                       sql.NullString
	available                         bool
	status                            sql.NullString
	missedUpdates                     int
	payload                           sql.NullString
	lastSeen                          sql.NullTime
	createdAt, updatedAt              time.Time
}

func (r *deviceRow) scanArgs() []interface{} {
	return []interface{}{
		&r.mac, &r.ip, &r.server, &r.name, &r.deviceType, &r.mainCommand,
		&r.available, &r.status, &r.missedUpdates, &r.payload,
		&r.lastSeen, &r.createdAt, &r.updatedAt,
	}
}

func (r *deviceRow) toDomain() (domain.DeviceSnapshot, error) {
	device := domain.DeviceSnapshot{
		MAC:           r.mac,
		IP:            r.ip,
		Address:       r.server,
		Name:          r.name,
		Type:          r.deviceType,
		MainCommand:   nullToString(r.mainCommand),
		Manufacturer:  domain.Manufacturer,
		Available:     r.available,
		MissedUpdates: r.missedUpdates,
		LastSeen:      nullToTimePtr(r.lastSeen),
		CreatedAt:     r.createdAt,
		UpdatedAt:     r.updatedAt,
	}

	if r.status.Valid {
		if err := json.Unmarshal([]byte(r.status.String), &device.Status); err != nil {
			return device, fmt.Errorf("failed to unmarshal status: %w", err)
		}
	}
	if r.payload.Valid {
		device.Payload = json.RawMessage(r.payload.String)
	}

	return device, nil
}

func deviceInsertArgs(d domain.DeviceSnapshot) ([]interface{}, error) {
	status, err := marshalToNull(d.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}

	var payload sql.NullString
	if len(d.Payload) > 0 {
		payload = sql.NullString{String: string(d.Payload), Valid: true}
	}

	now := time.Now().UTC()
	created, updated := d.CreatedAt.UTC(), d.UpdatedAt.UTC()
	if d.CreatedAt.IsZero() {
		created = now
	}
	if d.UpdatedAt.IsZero() {
		updated = created
	}

	return []interface{}{
		d.MAC, d.IP, d.Address, d.Name, d.Type, stringToNull(d.MainCommand),
		d.Available, status, d.MissedUpdates, payload,
		timePtrToNull(d.LastSeen), created, updated,
	}, nil
}
