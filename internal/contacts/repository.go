package contacts

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: phone_number is stored already normalized by the portal; lookups compare exactly.

const contactColumns = `id, name, phone_number, assigned_employee_id, call_status, call_time, call_duration_sec, created_at`

type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) FindByPhone(ctx context.Context, phone string) (Contact, error) {
	const q = `
SELECT ` + contactColumns + `
FROM contacts
WHERE phone_number = $1
ORDER BY id
LIMIT 1
`
	c, err := scanContact(r.db.QueryRowContext(ctx, q, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	return c, nil
}

func (r *SQLRepo) UpdateLastCall(ctx context.Context, id int64, lc LastCall) (Contact, error) {
	const q = `
UPDATE contacts
SET assigned_employee_id = $2, call_status = $3, call_time = $4, call_duration_sec = $5
WHERE id = $1
RETURNING ` + contactColumns
	c, err := scanContact(r.db.QueryRowContext(ctx, q,
		id,
		lc.EmployeeID,
		string(lc.Status),
		lc.At,
		lc.DurationSeconds,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	return c, nil
}

func scanContact(row interface{ Scan(dest ...any) error }) (Contact, error) {
	var (
		c        Contact
		assigned sql.NullInt64
		status   sql.NullString
		callTime sql.NullTime
		duration sql.NullInt64
	)
	if err := row.Scan(
		&c.ID,
		&c.Name,
		&c.PhoneNumber,
		&assigned,
		&status,
		&callTime,
		&duration,
		&c.CreatedAt,
	); err != nil {
		return Contact{}, err
	}
	if assigned.Valid {
		id := assigned.Int64
		c.AssignedEmployeeID = &id
	}
	if status.Valid {
		s := CallStatus(status.String)
		c.CallStatus = &s
	}
	if callTime.Valid {
		t := callTime.Time.UTC()
		c.CallTime = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		c.CallDurationSec = &d
	}
	return c, nil
}

// Insert is used by tests and seed tooling; the portal owns contact creation in production.
func (r *SQLRepo) Insert(ctx context.Context, name, phone string, assigned *int64) (Contact, error) {
	const q = `
INSERT INTO contacts (name, phone_number, assigned_employee_id, created_at)
VALUES ($1, $2, $3, $4)
RETURNING ` + contactColumns
	return scanContact(r.db.QueryRowContext(ctx, q, name, NormalizePhone(phone), assigned, time.Now().UTC()))
}
