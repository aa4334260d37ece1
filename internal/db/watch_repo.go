package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"farewatch/internal/types"
)

// WatchRepository provides data access for the watches table. It is the
// durable store of watch definitions and their last-known-price state.
type WatchRepository struct {
	db DBTX
}

// NewWatchRepository creates a WatchRepository backed by the given database
// connection (pool or transaction).
func NewWatchRepository(db DBTX) *WatchRepository {
	return &WatchRepository{db: db}
}

// watchColumns is the standard column set for watch queries. Scan order in
// scanWatch must match.
const watchColumns = `id, user_id, origin, destination, cabin,
	adults, children, infants,
	window_start, window_end, flex_days, trip_type,
	target_usd, max_stops,
	channel, email, phone,
	active, deactivate_reason,
	last_best_usd, last_notified_usd, last_checked,
	created_at, updated_at`

// scannable is satisfied by both pgx.Row and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanWatch scans a single watch row. Columns must match watchColumns.
func scanWatch(row scannable) (*types.Watch, error) {
	var w types.Watch
	var (
		userID           *string
		email            *string
		phone            *string
		deactivateReason *string
	)

	err := row.Scan(
		&w.ID,
		&userID,
		&w.Origin,
		&w.Destination,
		&w.Cabin,
		&w.Adults,
		&w.Children,
		&w.Infants,
		&w.Start,
		&w.End,
		&w.FlexDays,
		&w.TripType,
		&w.TargetUsd,
		&w.MaxStops,
		&w.Channel,
		&email,
		&phone,
		&w.Active,
		&deactivateReason,
		&w.LastBestUsd,
		&w.LastNotifiedUsd,
		&w.LastChecked,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID != nil {
		w.UserID = *userID
	}
	if email != nil {
		w.Email = *email
	}
	if phone != nil {
		w.Phone = *phone
	}
	if deactivateReason != nil {
		w.DeactivateReason = types.DeactivateReason(*deactivateReason)
	}

	return &w, nil
}

// nullIfEmpty maps "" to a SQL NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts a new watch row.
func (r *WatchRepository) Create(ctx context.Context, w *types.Watch) error {
	const q = `
		INSERT INTO watches (
			id, user_id, origin, destination, cabin,
			adults, children, infants,
			window_start, window_end, flex_days, trip_type,
			target_usd, max_stops,
			channel, email, phone,
			active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)`

	_, err := r.db.Exec(ctx, q,
		w.ID, nullIfEmpty(w.UserID), w.Origin, w.Destination, w.Cabin,
		w.Adults, w.Children, w.Infants,
		w.Start, w.End, w.FlexDays, w.TripType,
		w.TargetUsd, w.MaxStops,
		w.Channel, nullIfEmpty(w.Email), nullIfEmpty(w.Phone),
		w.Active, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create watch", err)
	}
	return nil
}

// GetByID fetches a single watch by ID. Returns a not_found AppError when
// the row does not exist.
func (r *WatchRepository) GetByID(ctx context.Context, id string) (*types.Watch, error) {
	q := `SELECT ` + watchColumns + ` FROM watches WHERE id = $1`

	w, err := scanWatch(r.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundWatch, "watch not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load watch", err)
	}
	return w, nil
}

// ListByUser returns all watches owned by the given user id. An empty
// userID selects the anonymous bucket.
func (r *WatchRepository) ListByUser(ctx context.Context, userID string) ([]*types.Watch, error) {
	q := `SELECT ` + watchColumns + ` FROM watches
		WHERE user_id IS NOT DISTINCT FROM $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, q, nullIfEmpty(userID))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list watches", err)
	}
	defer rows.Close()

	return collectWatches(rows)
}

// ListActive returns all active watches in a stable order; this is the
// sweep coordinator's working set.
func (r *WatchRepository) ListActive(ctx context.Context) ([]*types.Watch, error) {
	q := `SELECT ` + watchColumns + ` FROM watches WHERE active ORDER BY created_at`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active watches", err)
	}
	defer rows.Close()

	return collectWatches(rows)
}

func collectWatches(rows pgx.Rows) ([]*types.Watch, error) {
	var out []*types.Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan watch row", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "watch row iteration failed", err)
	}
	return out, nil
}

// Update writes the user-editable policy fields of a watch. Price-state
// fields are deliberately excluded; only UpdatePriceState touches those.
func (r *WatchRepository) Update(ctx context.Context, w *types.Watch) error {
	const q = `
		UPDATE watches SET
			origin = $2, destination = $3, cabin = $4,
			adults = $5, children = $6, infants = $7,
			window_start = $8, window_end = $9, flex_days = $10, trip_type = $11,
			target_usd = $12, max_stops = $13,
			channel = $14, email = $15, phone = $16,
			active = $17, deactivate_reason = $18,
			updated_at = $19
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, q,
		w.ID, w.Origin, w.Destination, w.Cabin,
		w.Adults, w.Children, w.Infants,
		w.Start, w.End, w.FlexDays, w.TripType,
		w.TargetUsd, w.MaxStops,
		w.Channel, nullIfEmpty(w.Email), nullIfEmpty(w.Phone),
		w.Active, nullIfEmpty(string(w.DeactivateReason)),
		w.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update watch", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundWatch, "watch not found", nil)
	}
	return nil
}

// UpdatePriceState atomically writes the trigger engine's price-state slice
// (last_best_usd, last_notified_usd, last_checked) in a single statement.
//
// When expectLastChecked is non-nil, the update is conditional on the
// last_checked value read at trigger start (optimistic concurrency); a lost
// race returns a conflict AppError instead of clobbering a concurrent write.
func (r *WatchRepository) UpdatePriceState(ctx context.Context, id string, state types.PriceState, expectLastChecked *time.Time) error {
	const q = `
		UPDATE watches SET
			last_best_usd = COALESCE($2, last_best_usd),
			last_notified_usd = COALESCE($3, last_notified_usd),
			last_checked = $4,
			updated_at = $4
		WHERE id = $1 AND ($5::boolean OR last_checked IS NOT DISTINCT FROM $6)`

	guard := expectLastChecked == nil
	var expected *time.Time
	if !guard {
		expected = expectLastChecked
	}

	tag, err := r.db.Exec(ctx, q,
		id, state.BestUsd, state.NotifiedUsd, state.CheckedAt, guard, expected,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update watch price state", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the watch is gone or another writer advanced last_checked.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return types.NewAppError(types.ErrCodeConflictConcurrent, "watch price state changed concurrently", nil)
	}
	return nil
}

// Deactivate flips a watch to inactive with a recorded reason. Used both by
// user action and by the sweep's window-expiry policy.
func (r *WatchRepository) Deactivate(ctx context.Context, id string, reason types.DeactivateReason, now time.Time) error {
	const q = `
		UPDATE watches SET active = false, deactivate_reason = $2, updated_at = $3
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, q, id, string(reason), now)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate watch", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundWatch, "watch not found", nil)
	}
	return nil
}

// Delete removes a watch permanently. Alert rows cascade via FK.
func (r *WatchRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM watches WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete watch", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundWatch, "watch not found", nil)
	}
	return nil
}

// CountByActive returns (active, total) watch counts for the sweep info
// endpoint.
func (r *WatchRepository) CountByActive(ctx context.Context) (active int, total int, err error) {
	const q = `SELECT COUNT(*) FILTER (WHERE active), COUNT(*) FROM watches`
	if err := r.db.QueryRow(ctx, q).Scan(&active, &total); err != nil {
		return 0, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count watches", err)
	}
	return active, total, nil
}
