package clickhouse

import (
	"context"
	"fmt"

	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/storage"
)

// HistorySink implements storage.HistorySink using ClickHouse. Accrual
// history is append-only; audit rows deduplicate through a
// ReplacingMergeTree keyed by record ID.
type HistorySink struct {
	conn *Conn
}

// NewHistorySink creates a new HistorySink.
func NewHistorySink(conn *Conn) *HistorySink {
	return &HistorySink{conn: conn}
}

// Compile-time interface check.
var _ storage.HistorySink = (*HistorySink)(nil)

// AppendAccruals adds a batch of accrual history rows.
func (s *HistorySink) AppendAccruals(ctx context.Context, records []*domain.AccrualRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO accrual_history (
			user_id, source_id, epoch_number, source,
			raw_points, points_with_multiplier, multiplier_bps,
			event_timestamp, block_number
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			r.UserID, r.SourceID, r.EpochNumber, r.Source,
			r.RawPoints, r.PointsWithMultiplier, r.MultiplierBps,
			uint64(r.Timestamp), r.BlockNumber,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// AppendAudit adds one audit mirror row.
func (s *HistorySink) AppendAudit(ctx context.Context, a *domain.AuditRecord) error {
	query := `
		INSERT INTO audit_history (
			id, kind, user_id, epoch_number, points, reason,
			block_number, event_timestamp, tx_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := s.conn.Exec(ctx, query,
		a.ID, string(a.Kind), a.UserID, a.EpochNumber, a.Points, a.Reason,
		a.BlockNumber, uint64(a.Timestamp), a.TxHash,
	)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// GetAccrualsByUser retrieves a user's accrual history within one epoch,
// ordered by block.
func (s *HistorySink) GetAccrualsByUser(ctx context.Context, userID string, epochNumber uint64) ([]*domain.AccrualRecord, error) {
	query := `
		SELECT user_id, source_id, epoch_number, source,
			raw_points, points_with_multiplier, multiplier_bps,
			event_timestamp, block_number
		FROM accrual_history
		WHERE user_id = ? AND epoch_number = ?
		ORDER BY block_number ASC, event_timestamp ASC
	`
	rows, err := s.conn.Query(ctx, query, userID, epochNumber)
	if err != nil {
		return nil, fmt.Errorf("query accruals by user: %w", err)
	}
	defer rows.Close()

	var records []*domain.AccrualRecord
	for rows.Next() {
		var r domain.AccrualRecord
		var ts uint64
		err := rows.Scan(
			&r.UserID, &r.SourceID, &r.EpochNumber, &r.Source,
			&r.RawPoints, &r.PointsWithMultiplier, &r.MultiplierBps,
			&ts, &r.BlockNumber,
		)
		if err != nil {
			return nil, fmt.Errorf("scan accrual row: %w", err)
		}
		r.Timestamp = int64(ts)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accrual rows: %w", err)
	}
	return records, nil
}

// TotalPointsBySource aggregates multiplier-applied points per source for
// one epoch across all users.
func (s *HistorySink) TotalPointsBySource(ctx context.Context, epochNumber uint64) (map[string]float64, error) {
	query := `
		SELECT source, sum(points_with_multiplier)
		FROM accrual_history
		WHERE epoch_number = ?
		GROUP BY source
	`
	rows, err := s.conn.Query(ctx, query, epochNumber)
	if err != nil {
		return nil, fmt.Errorf("query totals by source: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]float64)
	for rows.Next() {
		var source string
		var total float64
		if err := rows.Scan(&source, &total); err != nil {
			return nil, fmt.Errorf("scan totals row: %w", err)
		}
		totals[source] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate totals rows: %w", err)
	}
	return totals, nil
}
