package calllog

import (
	"context"
	"database/sql"
	"errors"

	"callcenter/pkg/utils"
)

// NOTE: This repository assumes the call_logs table created by store.Migrate, including
// UNIQUE (provider_call_id). NULL provider ids never conflict.

const recordColumns = `id, employee_id, call_date, call_time, status, duration, customer_phone, notes,
       provider_call_id, from_number, to_number, created_at`

// SQLRepo implements Repository over database/sql. The SQL is shared by the pgx and sqlite drivers.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Upsert(ctx context.Context, rec Record) (Record, UpsertOp, error) {
	var (
		out Record
		op  UpsertOp
	)
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if rec.ProviderCallID != nil {
			existing, ok, err := findByProviderCallID(ctx, tx, *rec.ProviderCallID)
			if err != nil {
				return err
			}
			if ok {
				updated, err := updateRecord(ctx, tx, existing.ID, rec)
				if err != nil {
					return err
				}
				out, op = updated, OpUpdated
				return nil
			}
		}
		inserted, err := insertRecord(ctx, tx, rec)
		if err != nil {
			return err
		}
		out, op = inserted, OpInserted
		return nil
	})
	return out, op, err
}

// FindByProviderCallID returns the record for a provider call id, if any.
func (r *SQLRepo) FindByProviderCallID(ctx context.Context, providerCallID string) (Record, bool, error) {
	const q = `SELECT ` + recordColumns + ` FROM call_logs WHERE provider_call_id = $1 LIMIT 1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, providerCallID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

func findByProviderCallID(ctx context.Context, tx *sql.Tx, providerCallID string) (Record, bool, error) {
	const q = `SELECT ` + recordColumns + ` FROM call_logs WHERE provider_call_id = $1 LIMIT 1`
	rec, err := scanRecord(tx.QueryRowContext(ctx, q, providerCallID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

func updateRecord(ctx context.Context, tx *sql.Tx, id int64, rec Record) (Record, error) {
	const q = `
UPDATE call_logs
SET status = $2, duration = $3, customer_phone = $4, notes = $5, from_number = $6, to_number = $7
WHERE id = $1
RETURNING ` + recordColumns
	return scanRecord(tx.QueryRowContext(ctx, q,
		id,
		string(rec.Status),
		rec.DurationSeconds,
		rec.CustomerPhone,
		rec.Notes,
		rec.FromNumber,
		rec.ToNumber,
	))
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec Record) (Record, error) {
	// ON CONFLICT covers a concurrent insert of the same provider call id between our
	// lookup and this statement; the later writer wins, as with the update branch.
	const q = `
INSERT INTO call_logs (
  employee_id, call_date, call_time, status, duration, customer_phone, notes,
  provider_call_id, from_number, to_number, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (provider_call_id) DO UPDATE SET
  status = excluded.status,
  duration = excluded.duration,
  customer_phone = excluded.customer_phone,
  notes = excluded.notes,
  from_number = excluded.from_number,
  to_number = excluded.to_number
RETURNING ` + recordColumns
	return scanRecord(tx.QueryRowContext(ctx, q,
		rec.EmployeeID,
		rec.CallDate,
		rec.CallTime,
		string(rec.Status),
		rec.DurationSeconds,
		rec.CustomerPhone,
		rec.Notes,
		rec.ProviderCallID,
		rec.FromNumber,
		rec.ToNumber,
		rec.CreatedAt,
	))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec                                        Record
		status                                     string
		duration                                   sql.NullInt64
		customerPhone, notes, providerID, from, to sql.NullString
	)
	if err := row.Scan(
		&rec.ID,
		&rec.EmployeeID,
		&rec.CallDate,
		&rec.CallTime,
		&status,
		&duration,
		&customerPhone,
		&notes,
		&providerID,
		&from,
		&to,
		&rec.CreatedAt,
	); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	if duration.Valid {
		d := int(duration.Int64)
		rec.DurationSeconds = &d
	}
	rec.CustomerPhone = nullString(customerPhone)
	rec.Notes = nullString(notes)
	rec.ProviderCallID = nullString(providerID)
	rec.FromNumber = nullString(from)
	rec.ToNumber = nullString(to)
	return rec, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
