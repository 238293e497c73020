// Package memory provides an in-memory implementation of storage.Store,
// used by tests, fixtures and offline replay.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lending-points-lab/internal/domain"
	"lending-points-lab/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu sync.RWMutex

	epochs    map[uint64]*domain.Epoch
	config    *domain.Config
	reserves  map[string]*domain.Reserve
	snapshots map[string]*domain.EpochIndexSnapshot
	balances  map[string]*domain.UserReserveBalance
	baselines map[string]*domain.UserReservePoints
	stats     map[string]*domain.UserEpochStats
	states    map[string]*domain.UserLeaderboardState
	indexes   map[string]*domain.UserIndex
	buckets   map[string]*domain.ScoreBucket
	topks     map[domain.Scope]*domain.TopK
	totals    map[domain.Scope]*domain.LeaderboardTotals
	audits    map[string]*domain.AuditRecord
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		epochs:    make(map[uint64]*domain.Epoch),
		reserves:  make(map[string]*domain.Reserve),
		snapshots: make(map[string]*domain.EpochIndexSnapshot),
		balances:  make(map[string]*domain.UserReserveBalance),
		baselines: make(map[string]*domain.UserReservePoints),
		stats:     make(map[string]*domain.UserEpochStats),
		states:    make(map[string]*domain.UserLeaderboardState),
		indexes:   make(map[string]*domain.UserIndex),
		buckets:   make(map[string]*domain.ScoreBucket),
		topks:     make(map[domain.Scope]*domain.TopK),
		totals:    make(map[domain.Scope]*domain.LeaderboardTotals),
		audits:    make(map[string]*domain.AuditRecord),
	}
}

func pairKey(a, b string) string {
	return fmt.Sprintf("%s|%s", a, b)
}

func snapshotKey(epoch uint64, reserveID string) string {
	return fmt.Sprintf("%d|%s", epoch, reserveID)
}

func statsKey(userID string, epoch uint64) string {
	return fmt.Sprintf("%s|%d", userID, epoch)
}

func scopeUserKey(scope domain.Scope, userID string) string {
	return fmt.Sprintf("%s|%s", scope, userID)
}

func bucketKey(scope domain.Scope, index int) string {
	return fmt.Sprintf("%s|%d", scope, index)
}

// GetEpoch retrieves an epoch by number.
func (s *Store) GetEpoch(_ context.Context, number uint64) (*domain.Epoch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.epochs[number]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// ActiveEpoch returns the single epoch with IsActive=true.
func (s *Store) ActiveEpoch(_ context.Context) (*domain.Epoch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.epochs {
		if e.IsActive {
			cp := *e
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// LatestClosedEpoch returns the closed epoch with the greatest end time.
func (s *Store) LatestClosedEpoch(_ context.Context) (*domain.Epoch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.Epoch
	for _, e := range s.epochs {
		if !e.Ended() {
			continue
		}
		if latest == nil || e.EndTime > latest.EndTime {
			latest = e
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// PutEpoch upserts an epoch.
func (s *Store) PutEpoch(_ context.Context, e *domain.Epoch) error {
	if e == nil {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.epochs[e.Number] = &cp
	return nil
}

// GetConfig returns the global config.
func (s *Store) GetConfig(_ context.Context) (*domain.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.config
	cp.VPTiers = append([]domain.VPTier(nil), s.config.VPTiers...)
	return &cp, nil
}

// PutConfig replaces the global config.
func (s *Store) PutConfig(_ context.Context, c *domain.Config) error {
	if c == nil {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.VPTiers = append([]domain.VPTier(nil), c.VPTiers...)
	s.config = &cp
	return nil
}

// GetReserve retrieves a reserve by ID.
func (s *Store) GetReserve(_ context.Context, id string) (*domain.Reserve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reserves[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ListReserves returns all reserves ordered by ID.
func (s *Store) ListReserves(_ context.Context) ([]*domain.Reserve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*domain.Reserve, 0, len(s.reserves))
	for _, r := range s.reserves {
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// PutReserve upserts a reserve.
func (s *Store) PutReserve(_ context.Context, r *domain.Reserve) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.reserves[r.ID] = &cp
	return nil
}

// GetIndexSnapshot retrieves a frozen end-of-epoch index snapshot.
func (s *Store) GetIndexSnapshot(_ context.Context, epoch uint64, reserveID string) (*domain.EpochIndexSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[snapshotKey(epoch, reserveID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

// PutIndexSnapshot upserts a frozen index snapshot.
func (s *Store) PutIndexSnapshot(_ context.Context, snap *domain.EpochIndexSnapshot) error {
	if snap == nil || snap.ReserveID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	s.snapshots[snapshotKey(snap.EpochNumber, snap.ReserveID)] = &cp
	return nil
}

// GetUserReserveBalance retrieves a user's scaled balances on a reserve.
func (s *Store) GetUserReserveBalance(_ context.Context, userID, reserveID string) (*domain.UserReserveBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[pairKey(userID, reserveID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// PutUserReserveBalance upserts a user's scaled balances.
func (s *Store) PutUserReserveBalance(_ context.Context, b *domain.UserReserveBalance) error {
	if b == nil || b.UserID == "" || b.ReserveID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.balances[pairKey(b.UserID, b.ReserveID)] = &cp
	return nil
}

// GetUserReservePoints retrieves a settlement baseline.
func (s *Store) GetUserReservePoints(_ context.Context, userID, reserveID string) (*domain.UserReservePoints, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.baselines[pairKey(userID, reserveID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// PutUserReservePoints upserts a settlement baseline.
func (s *Store) PutUserReservePoints(_ context.Context, p *domain.UserReservePoints) error {
	if p == nil || p.UserID == "" || p.ReserveID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.baselines[pairKey(p.UserID, p.ReserveID)] = &cp
	return nil
}

// GetUserEpochStats retrieves per-epoch stats.
func (s *Store) GetUserEpochStats(_ context.Context, userID string, epoch uint64) (*domain.UserEpochStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[statsKey(userID, epoch)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// PutUserEpochStats upserts per-epoch stats.
func (s *Store) PutUserEpochStats(_ context.Context, st *domain.UserEpochStats) error {
	if st == nil || st.UserID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.stats[statsKey(st.UserID, st.EpochNumber)] = &cp
	return nil
}

// GetUserState retrieves the denormalized per-user state.
func (s *Store) GetUserState(_ context.Context, userID string) (*domain.UserLeaderboardState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// PutUserState upserts the denormalized per-user state.
func (s *Store) PutUserState(_ context.Context, st *domain.UserLeaderboardState) error {
	if st == nil || st.UserID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.states[st.UserID] = &cp
	return nil
}

// GetUserIndex retrieves a user's ranking row in a scope.
func (s *Store) GetUserIndex(_ context.Context, scope domain.Scope, userID string) (*domain.UserIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[scopeUserKey(scope, userID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *idx
	return &cp, nil
}

// PutUserIndex upserts a user's ranking row.
func (s *Store) PutUserIndex(_ context.Context, idx *domain.UserIndex) error {
	if idx == nil || idx.UserID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *idx
	s.indexes[scopeUserKey(idx.Scope, idx.UserID)] = &cp
	return nil
}

// DeleteUserIndex removes a user's ranking row from a scope.
func (s *Store) DeleteUserIndex(_ context.Context, scope domain.Scope, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, scopeUserKey(scope, userID))
	return nil
}

// GetBucket retrieves a histogram bucket.
func (s *Store) GetBucket(_ context.Context, scope domain.Scope, index int) (*domain.ScoreBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[bucketKey(scope, index)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// PutBucket upserts a histogram bucket.
func (s *Store) PutBucket(_ context.Context, b *domain.ScoreBucket) error {
	if b == nil || b.Index < 0 {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.buckets[bucketKey(b.Scope, b.Index)] = &cp
	return nil
}

// GetTopK retrieves the exact leaderboard head for a scope.
func (s *Store) GetTopK(_ context.Context, scope domain.Scope) (*domain.TopK, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topks[scope]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	cp.Entries = append([]domain.TopKEntry(nil), t.Entries...)
	return &cp, nil
}

// PutTopK upserts the leaderboard head for a scope.
func (s *Store) PutTopK(_ context.Context, t *domain.TopK) error {
	if t == nil {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	cp.Entries = append([]domain.TopKEntry(nil), t.Entries...)
	s.topks[t.Scope] = &cp
	return nil
}

// GetTotals retrieves the participant totals for a scope.
func (s *Store) GetTotals(_ context.Context, scope domain.Scope) (*domain.LeaderboardTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.totals[scope]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// PutTotals upserts the participant totals for a scope.
func (s *Store) PutTotals(_ context.Context, t *domain.LeaderboardTotals) error {
	if t == nil {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.totals[t.Scope] = &cp
	return nil
}

// PutAudit upserts an audit record by its deterministic ID.
func (s *Store) PutAudit(_ context.Context, a *domain.AuditRecord) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.audits[a.ID] = &cp
	return nil
}

// ListAuditByUser returns a user's audit records ordered by block then ID.
func (s *Store) ListAuditByUser(_ context.Context, userID string) ([]*domain.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*domain.AuditRecord
	for _, a := range s.audits {
		if a.UserID == userID {
			cp := *a
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].BlockNumber != result[j].BlockNumber {
			return result[i].BlockNumber < result[j].BlockNumber
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
