package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-points-lab/internal/domain"
)

func TestHistorySink_AppendAccruals(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	sink := NewHistorySink(conn)
	ctx := context.Background()

	require.NoError(t, sink.AppendAccruals(ctx, nil))

	records := []*domain.AccrualRecord{
		{UserID: "alice", SourceID: "0xusdc", EpochNumber: 2, Source: "deposit",
			RawPoints: 41.66, PointsWithMultiplier: 83.32, MultiplierBps: 20000,
			Timestamp: 1000, BlockNumber: 100},
		{UserID: "alice", SourceID: "vp", EpochNumber: 2, Source: "voting_power",
			RawPoints: 5, PointsWithMultiplier: 10, MultiplierBps: 20000,
			Timestamp: 2000, BlockNumber: 200},
		{UserID: "bob", SourceID: "0xusdc", EpochNumber: 2, Source: "deposit",
			RawPoints: 10, PointsWithMultiplier: 10, MultiplierBps: 10000,
			Timestamp: 1500, BlockNumber: 150},
	}
	require.NoError(t, sink.AppendAccruals(ctx, records))

	got, err := sink.GetAccrualsByUser(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "deposit", got[0].Source)
	assert.Equal(t, 83.32, got[0].PointsWithMultiplier)
	assert.Equal(t, "voting_power", got[1].Source)

	totals, err := sink.TotalPointsBySource(ctx, 2)
	require.NoError(t, err)
	assert.InDelta(t, 93.32, totals["deposit"], 1e-9)
	assert.InDelta(t, 10, totals["voting_power"], 1e-9)
}

func TestHistorySink_AppendAudit(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	sink := NewHistorySink(conn)
	ctx := context.Background()

	rec := &domain.AuditRecord{
		ID:          "0xabc|1|epoch_end",
		Kind:        domain.EventEpochEnd,
		EpochNumber: 2,
		Reason:      "epoch end",
		BlockNumber: 300,
		Timestamp:   3000,
		TxHash:      "0xabc",
	}
	require.NoError(t, sink.AppendAudit(ctx, rec))
	// Replays insert the same ID again; ReplacingMergeTree collapses them.
	require.NoError(t, sink.AppendAudit(ctx, rec))

	var count uint64
	err := conn.QueryRow(ctx, `SELECT count() FROM audit_history FINAL WHERE id = ?`, rec.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
