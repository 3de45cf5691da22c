package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/FahadIshaq/scanback-backend/internal/repository"
)

const tagColumns = `code, kind, owner, details, contact, settings, status, is_activated,
	activated_at, scan_count, last_scanned_at, found_info, created_at, updated_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// RecordRepository implements tag.RecordStore.
type RecordRepository struct {
	db *DB
}

// NewRecordRepository creates a new RecordRepository
func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Insert stores a new tag.
func (r *RecordRepository) Insert(ctx context.Context, rec *tag.Record) error {
	cols, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	query := r.db.rebind(`
		INSERT INTO tags (` + tagColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = r.db.ExecContext(ctx, query,
		rec.Code,
		rec.Kind,
		rec.Owner,
		cols.details,
		cols.contact,
		cols.settings,
		rec.Status,
		rec.IsActivated,
		nullNanos(rec.ActivatedAt),
		rec.ScanCount,
		nullNanos(rec.LastScannedAt),
		cols.foundInfo,
		toNanos(rec.CreatedAt),
		toNanos(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrUniqueViolation
		}
		return fmt.Errorf("failed to insert tag: %w", err)
	}
	return nil
}

// FindByCode loads a tag with its scan ledger.
func (r *RecordRepository) FindByCode(ctx context.Context, code string) (*tag.Record, error) {
	rec, err := r.load(ctx, r.db, code, "")
	if err != nil {
		return nil, err
	}
	if rec.ScanHistory, err = r.loadScans(ctx, r.db, code); err != nil {
		return nil, err
	}
	return rec, nil
}

// FindPublicByCode loads the public projection of a tag without its ledger.
func (r *RecordRepository) FindPublicByCode(ctx context.Context, code string) (*tag.PublicView, error) {
	rec, err := r.load(ctx, r.db, code, "")
	if err != nil {
		return nil, err
	}
	return tag.NewPublicView(rec), nil
}

// UpdateByCode applies m inside a transaction, after its precondition passes.
func (r *RecordRepository) UpdateByCode(ctx context.Context, code string, m tag.Mutation) (*tag.Record, error) {
	var updated *tag.Record
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := r.load(ctx, tx, code, r.db.forUpdate())
		if err != nil {
			return err
		}
		if rec.ScanHistory, err = r.loadScans(ctx, tx, code); err != nil {
			return err
		}
		if m.Precondition != nil {
			if err := m.Precondition(rec.Clone()); err != nil {
				return err
			}
		}

		rec.Apply(m)
		if err := r.write(ctx, tx, rec); err != nil {
			return err
		}
		if m.Scan != nil {
			if err := r.appendScan(ctx, tx, code, *m.Scan); err != nil {
				return err
			}
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// List returns tag summaries matching the given options, newest first.
func (r *RecordRepository) List(ctx context.Context, opts tag.ListOptions) ([]tag.Summary, error) {
	query := `
		SELECT code, kind, owner, status, is_activated, scan_count, last_scanned_at, created_at
		FROM tags
	`
	var (
		conditions []string
		args       []any
	)
	if opts.Owner != "" {
		conditions = append(conditions, "owner = ?")
		args = append(args, opts.Owner)
	}
	if len(opts.Kinds) > 0 {
		conditions = append(conditions, "kind IN ("+placeholders(len(opts.Kinds))+")")
		for _, k := range opts.Kinds {
			args = append(args, k)
		}
	}
	if len(opts.Statuses) > 0 {
		conditions = append(conditions, "status IN ("+placeholders(len(opts.Statuses))+")")
		for _, s := range opts.Statuses {
			args = append(args, s)
		}
	}
	if opts.Activated != nil {
		conditions = append(conditions, "is_activated = ?")
		args = append(args, *opts.Activated)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, code ASC"

	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}

	rows, err := r.db.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	out := make([]tag.Summary, 0)
	for rows.Next() {
		var (
			s           tag.Summary
			lastScanned sql.NullInt64
			createdAt   int64
		)
		if err := rows.Scan(&s.Code, &s.Kind, &s.Owner, &s.Status, &s.IsActivated,
			&s.ScanCount, &lastScanned, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag summary: %w", err)
		}
		s.LastScannedAt = timePtr(lastScanned)
		s.CreatedAt = fromNanos(createdAt)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}
	return out, nil
}

func (r *RecordRepository) load(ctx context.Context, q queryer, code, suffix string) (*tag.Record, error) {
	query := r.db.rebind(`SELECT ` + tagColumns + ` FROM tags WHERE code = ?` + suffix)

	var (
		rec                        tag.Record
		details, contact, settings string
		foundInfo                  sql.NullString
		activatedAt, lastScannedAt sql.NullInt64
		createdAt, updatedAt       int64
	)
	err := q.QueryRowContext(ctx, query, code).Scan(
		&rec.Code,
		&rec.Kind,
		&rec.Owner,
		&details,
		&contact,
		&settings,
		&rec.Status,
		&rec.IsActivated,
		&activatedAt,
		&rec.ScanCount,
		&lastScannedAt,
		&foundInfo,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}

	if err := decodeJSON(details, &rec.Details); err != nil {
		return nil, fmt.Errorf("decoding details of %s: %w", code, err)
	}
	if err := decodeJSON(contact, &rec.Contact); err != nil {
		return nil, fmt.Errorf("decoding contact of %s: %w", code, err)
	}
	if err := decodeJSON(settings, &rec.Settings); err != nil {
		return nil, fmt.Errorf("decoding settings of %s: %w", code, err)
	}
	if foundInfo.Valid && foundInfo.String != "" {
		rec.FoundInfo = &tag.FoundInfo{}
		if err := decodeJSON(foundInfo.String, rec.FoundInfo); err != nil {
			return nil, fmt.Errorf("decoding found info of %s: %w", code, err)
		}
	}
	rec.ActivatedAt = timePtr(activatedAt)
	rec.LastScannedAt = timePtr(lastScannedAt)
	rec.CreatedAt = fromNanos(createdAt)
	rec.UpdatedAt = fromNanos(updatedAt)
	if len(rec.Details) == 0 {
		rec.Details = nil
	}
	return &rec, nil
}

func (r *RecordRepository) loadScans(ctx context.Context, q queryer, code string) ([]tag.ScanEvent, error) {
	rows, err := q.QueryContext(ctx, r.db.rebind(`
		SELECT scanned_at, source, agent, location
		FROM scan_events
		WHERE code = ?
		ORDER BY id ASC
	`), code)
	if err != nil {
		return nil, fmt.Errorf("failed to load scan history: %w", err)
	}
	defer rows.Close()

	var out []tag.ScanEvent
	for rows.Next() {
		var (
			evt       tag.ScanEvent
			scannedAt int64
			location  sql.NullString
		)
		if err := rows.Scan(&scannedAt, &evt.Source, &evt.Agent, &location); err != nil {
			return nil, fmt.Errorf("failed to scan scan event: %w", err)
		}
		evt.ScannedAt = fromNanos(scannedAt)
		if location.Valid && location.String != "" {
			evt.Location = &tag.Location{}
			if err := decodeJSON(location.String, evt.Location); err != nil {
				return nil, fmt.Errorf("decoding scan location: %w", err)
			}
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scan history: %w", err)
	}
	return out, nil
}

func (r *RecordRepository) write(ctx context.Context, tx *sql.Tx, rec *tag.Record) error {
	cols, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, r.db.rebind(`
		UPDATE tags
		SET owner = ?, details = ?, contact = ?, settings = ?, status = ?, is_activated = ?,
		    activated_at = ?, scan_count = ?, last_scanned_at = ?, found_info = ?, updated_at = ?
		WHERE code = ?
	`),
		rec.Owner,
		cols.details,
		cols.contact,
		cols.settings,
		rec.Status,
		rec.IsActivated,
		nullNanos(rec.ActivatedAt),
		rec.ScanCount,
		nullNanos(rec.LastScannedAt),
		cols.foundInfo,
		toNanos(rec.UpdatedAt),
		rec.Code,
	)
	if err != nil {
		return fmt.Errorf("failed to update tag: %w", err)
	}
	return nil
}

func (r *RecordRepository) appendScan(ctx context.Context, tx *sql.Tx, code string, evt tag.ScanEvent) error {
	var location sql.NullString
	if evt.Location != nil {
		raw, err := json.Marshal(evt.Location)
		if err != nil {
			return fmt.Errorf("encoding scan location: %w", err)
		}
		location = sql.NullString{String: string(raw), Valid: true}
	}

	if _, err := tx.ExecContext(ctx, r.db.rebind(`
		INSERT INTO scan_events (code, scanned_at, source, agent, location)
		VALUES (?, ?, ?, ?, ?)
	`), code, toNanos(evt.ScannedAt), evt.Source, evt.Agent, location); err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}

	if _, err := tx.ExecContext(ctx, r.db.rebind(`
		DELETE FROM scan_events
		WHERE code = ? AND id NOT IN (
			SELECT id FROM scan_events WHERE code = ? ORDER BY id DESC LIMIT ?
		)
	`), code, code, tag.MaxScanHistory); err != nil {
		return fmt.Errorf("failed to trim scan history: %w", err)
	}
	return nil
}

type encodedColumns struct {
	details, contact, settings string
	foundInfo                  sql.NullString
}

func encodeRecord(rec *tag.Record) (encodedColumns, error) {
	var cols encodedColumns
	details := rec.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return cols, fmt.Errorf("encoding details: %w", err)
	}
	cols.details = string(raw)

	if raw, err = json.Marshal(rec.Contact); err != nil {
		return cols, fmt.Errorf("encoding contact: %w", err)
	}
	cols.contact = string(raw)

	if raw, err = json.Marshal(rec.Settings); err != nil {
		return cols, fmt.Errorf("encoding settings: %w", err)
	}
	cols.settings = string(raw)

	if rec.FoundInfo != nil {
		if raw, err = json.Marshal(rec.FoundInfo); err != nil {
			return cols, fmt.Errorf("encoding found info: %w", err)
		}
		cols.foundInfo = sql.NullString{String: string(raw), Valid: true}
	}
	return cols, nil
}

func decodeJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
