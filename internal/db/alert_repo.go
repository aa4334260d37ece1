package db

import (
	"context"
	"time"

	"farewatch/internal/types"
)

// AlertRepository persists one record per NOTIFY decision: which watch, old
// and new price, delta, and whether the send succeeded.
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates an AlertRepository backed by the given
// database connection.
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, watch_id, route, old_price_usd, new_price_usd,
	delta_usd, sent, message_id, created_at`

// Insert records a NOTIFY decision.
func (r *AlertRepository) Insert(ctx context.Context, a *types.Alert) error {
	const q = `
		INSERT INTO alerts (
			id, watch_id, route, old_price_usd, new_price_usd,
			delta_usd, sent, message_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, q,
		a.ID, a.WatchID, a.Route, a.OldPriceUsd, a.NewPriceUsd,
		a.DeltaUsd, a.Sent, nullIfEmpty(a.MessageID), a.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert alert", err)
	}
	return nil
}

// ListByWatch returns the most recent alerts for one watch.
func (r *AlertRepository) ListByWatch(ctx context.Context, watchID string, limit int) ([]types.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts
		WHERE watch_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.Query(ctx, q, watchID, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list alerts", err)
	}
	defer rows.Close()

	var out []types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert row", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "alert row iteration failed", err)
	}
	return out, nil
}

// ListBefore returns alerts created before the cutoff, oldest first, up to
// limit rows. Used by the archival maintenance job.
func (r *AlertRepository) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts
		WHERE created_at < $1 ORDER BY created_at LIMIT $2`

	rows, err := r.db.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list alerts before cutoff", err)
	}
	defer rows.Close()

	var out []types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert row", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "alert row iteration failed", err)
	}
	return out, nil
}

// DeleteByIDs removes archived alert rows and returns the deleted count.
func (r *AlertRepository) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM alerts WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete archived alerts", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanAlert(row scannable) (types.Alert, error) {
	var a types.Alert
	var messageID *string

	err := row.Scan(
		&a.ID,
		&a.WatchID,
		&a.Route,
		&a.OldPriceUsd,
		&a.NewPriceUsd,
		&a.DeltaUsd,
		&a.Sent,
		&messageID,
		&a.CreatedAt,
	)
	if err != nil {
		return types.Alert{}, err
	}
	if messageID != nil {
		a.MessageID = *messageID
	}
	return a, nil
}
