// Package testutil provides in-memory store implementations for tests. Each
// store mirrors the conditional-update semantics of its Postgres
// counterpart: a state transition mutates the record only when the
// precondition still holds and returns the same domain sentinel otherwise.
package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// Clock is a manually advanced domain.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ domain.Clock = (*Clock)(nil)

// ---------------------------------------------------------------------------
// MemMarketStore
// ---------------------------------------------------------------------------

// MemMarketStore is an in-memory domain.MarketStore.
type MemMarketStore struct {
	mu      sync.Mutex
	nextID  int64
	markets map[int64]domain.FriendMarket
}

func NewMemMarketStore() *MemMarketStore {
	return &MemMarketStore{markets: make(map[int64]domain.FriendMarket)}
}

func (s *MemMarketStore) Create(ctx context.Context, m domain.FriendMarket) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	m.UpdatedAt = m.CreatedAt
	s.markets[m.ID] = m
	return m.ID, nil
}

func (s *MemMarketStore) GetByID(ctx context.Context, id int64) (domain.FriendMarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.FriendMarket{}, domain.ErrNotFound
	}
	return m, nil
}

// Put overwrites a market record directly, bypassing transition checks. Test
// setup only.
func (s *MemMarketStore) Put(m domain.FriendMarket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID > s.nextID {
		s.nextID = m.ID
	}
	s.markets[m.ID] = m
}

func (s *MemMarketStore) list(filter func(domain.FriendMarket) bool, opts domain.ListOpts) []domain.FriendMarket {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.FriendMarket
	for _, m := range s.markets {
		if filter(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func (s *MemMarketStore) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.FriendMarket, error) {
	return s.list(func(m domain.FriendMarket) bool { return m.Status == status }, opts), nil
}

func (s *MemMarketStore) ListByParticipant(ctx context.Context, addr string, opts domain.ListOpts) ([]domain.FriendMarket, error) {
	return s.list(func(m domain.FriendMarket) bool { return m.IsInvited(addr) }, opts), nil
}

func (s *MemMarketStore) GetStatuses(ctx context.Context, ids []int64) (map[int64]domain.MarketStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]domain.MarketStatus, len(ids))
	for _, id := range ids {
		if m, ok := s.markets[id]; ok {
			out[id] = m.Status
		}
	}
	return out, nil
}

func (s *MemMarketStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

func (s *MemMarketStore) ListExpiredPending(ctx context.Context, now time.Time) ([]domain.FriendMarket, error) {
	return s.list(func(m domain.FriendMarket) bool {
		return m.Status == domain.StatusPendingAcceptance && !m.AcceptanceDeadline.After(now)
	}, domain.ListOpts{}), nil
}

func (s *MemMarketStore) ListFinalizable(ctx context.Context, now time.Time) ([]domain.FriendMarket, error) {
	return s.list(func(m domain.FriendMarket) bool {
		return m.Status == domain.StatusActive && m.ProposedBy != "" && !m.DisputeOpen &&
			m.ChallengeDeadline != nil && !m.ChallengeDeadline.After(now)
	}, domain.ListOpts{}), nil
}

func (s *MemMarketStore) ListPegged(ctx context.Context) ([]domain.FriendMarket, error) {
	return s.list(func(m domain.FriendMarket) bool {
		return m.Status == domain.StatusActive && m.OracleID != ""
	}, domain.ListOpts{}), nil
}

func (s *MemMarketStore) UpdateStatus(ctx context.Context, id int64, from, to domain.MarketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status != from {
		return domain.ErrNotPending
	}
	m.Status = to
	s.markets[id] = m
	return nil
}

func (s *MemMarketStore) SetProposal(ctx context.Context, id int64, outcome bool, by string, challengeDeadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.ProposedBy != "" {
		return domain.ErrProposalPending
	}
	if m.Status != domain.StatusActive {
		return domain.ErrNotPending
	}
	m.ProposedOutcome = &outcome
	m.ProposedBy = by
	m.ChallengeDeadline = &challengeDeadline
	s.markets[id] = m
	return nil
}

func (s *MemMarketStore) SetChallenge(ctx context.Context, id int64, challenger string, bond *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.DisputeOpen {
		return domain.ErrDisputePending
	}
	if m.Status != domain.StatusActive || m.ProposedBy == "" {
		return domain.ErrNotPending
	}
	m.Challenger = challenger
	m.ChallengeBond = bond
	m.DisputeOpen = true
	s.markets[id] = m
	return nil
}

func (s *MemMarketStore) SetDisputeOutcome(ctx context.Context, id int64, outcome bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok || !m.DisputeOpen {
		return domain.ErrNotFound
	}
	m.ProposedOutcome = &outcome
	m.DisputeOpen = false
	s.markets[id] = m
	return nil
}

func (s *MemMarketStore) SetPeg(ctx context.Context, id int64, oracleID, conditionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.OracleID != "" {
		return domain.ErrAlreadyExists
	}
	if m.Status != domain.StatusActive {
		return domain.ErrNotPending
	}
	m.OracleID = oracleID
	m.ConditionID = conditionID
	s.markets[id] = m
	return nil
}

func (s *MemMarketStore) MarkResolved(ctx context.Context, id int64, outcome bool, winner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status == domain.StatusResolved {
		return domain.ErrAlreadyResolved
	}
	if m.Status != domain.StatusActive {
		return domain.ErrNotPending
	}
	m.Status = domain.StatusResolved
	m.Outcome = &outcome
	m.Winner = winner
	s.markets[id] = m
	return nil
}

func (s *MemMarketStore) MarkClaimed(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status != domain.StatusResolved {
		return domain.ErrNotResolved
	}
	if m.WinningsClaimed {
		return domain.ErrAlreadyClaimed
	}
	m.WinningsClaimed = true
	s.markets[id] = m
	return nil
}

var _ domain.MarketStore = (*MemMarketStore)(nil)

// ---------------------------------------------------------------------------
// MemAcceptanceStore
// ---------------------------------------------------------------------------

// MemAcceptanceStore is an in-memory domain.AcceptanceStore.
type MemAcceptanceStore struct {
	mu   sync.Mutex
	recs map[string]domain.ParticipantAcceptance
}

func NewMemAcceptanceStore() *MemAcceptanceStore {
	return &MemAcceptanceStore{recs: make(map[string]domain.ParticipantAcceptance)}
}

func accKey(marketID int64, participant string) string {
	return fmt.Sprintf("%d/%s", marketID, participant)
}

func (s *MemAcceptanceStore) CreateBatch(ctx context.Context, accs []domain.ParticipantAcceptance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range accs {
		s.recs[accKey(acc.MarketID, acc.Participant)] = acc
	}
	return nil
}

func (s *MemAcceptanceStore) Get(ctx context.Context, marketID int64, participant string) (domain.ParticipantAcceptance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[accKey(marketID, participant)]
	if !ok {
		return domain.ParticipantAcceptance{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *MemAcceptanceStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.ParticipantAcceptance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ParticipantAcceptance
	for _, rec := range s.recs {
		if rec.MarketID == marketID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InvitedAt.Equal(out[j].InvitedAt) {
			return out[i].InvitedAt.Before(out[j].InvitedAt)
		}
		return out[i].Participant < out[j].Participant
	})
	return out, nil
}

func (s *MemAcceptanceStore) MarkAccepted(ctx context.Context, marketID int64, participant string, amount *big.Int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accKey(marketID, participant)
	rec, ok := s.recs[key]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.HasAccepted {
		return domain.ErrAlreadyAccepted
	}
	rec.HasAccepted = true
	rec.StakedAmount = amount
	rec.AcceptedAt = at
	s.recs[key] = rec
	return nil
}

func (s *MemAcceptanceStore) CountAccepted(ctx context.Context, marketID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, rec := range s.recs {
		if rec.MarketID == marketID && rec.HasAccepted {
			count++
		}
	}
	return count, nil
}

var _ domain.AcceptanceStore = (*MemAcceptanceStore)(nil)

// ---------------------------------------------------------------------------
// MemVaultStore
// ---------------------------------------------------------------------------

// MemVaultStore is an in-memory domain.VaultStore.
type MemVaultStore struct {
	mu      sync.Mutex
	markets map[int64]domain.VaultMarket
	buckets map[string]*domain.VaultBucket
}

func NewMemVaultStore() *MemVaultStore {
	return &MemVaultStore{
		markets: make(map[int64]domain.VaultMarket),
		buckets: make(map[string]*domain.VaultBucket),
	}
}

func bucketKey(marketID int64, token string) string {
	return fmt.Sprintf("%d/%s", marketID, token)
}

// snapshotBucket copies a bucket with fresh big.Int values so callers never
// alias the store's live ledger state.
func snapshotBucket(b *domain.VaultBucket) domain.VaultBucket {
	cp := *b
	cp.Balance = new(big.Int).Set(b.Balance)
	cp.Deposited = new(big.Int).Set(b.Deposited)
	cp.Withdrawn = new(big.Int).Set(b.Withdrawn)
	return cp
}

func (s *MemVaultStore) RegisterMarket(ctx context.Context, marketID int64, manager string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[marketID]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[marketID] = domain.VaultMarket{MarketID: marketID, Manager: manager, Active: true, CreatedAt: at}
	return nil
}

func (s *MemVaultStore) GetMarket(ctx context.Context, marketID int64) (domain.VaultMarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return domain.VaultMarket{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *MemVaultStore) UpdateManager(ctx context.Context, marketID int64, newManager string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	m.Manager = newManager
	s.markets[marketID] = m
	return nil
}

func (s *MemVaultStore) CloseMarket(ctx context.Context, marketID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	m.Active = false
	s.markets[marketID] = m
	return nil
}

func (s *MemVaultStore) Credit(ctx context.Context, marketID int64, token string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bucketKey(marketID, token)
	b, ok := s.buckets[key]
	if !ok {
		b = &domain.VaultBucket{
			MarketID:  marketID,
			Token:     token,
			Balance:   big.NewInt(0),
			Deposited: big.NewInt(0),
			Withdrawn: big.NewInt(0),
		}
		s.buckets[key] = b
	}
	b.Balance.Add(b.Balance, amount)
	b.Deposited.Add(b.Deposited, amount)
	return nil
}

func (s *MemVaultStore) Debit(ctx context.Context, marketID int64, token string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketKey(marketID, token)]
	if !ok || b.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("bucket %d/%s: %w", marketID, token, domain.ErrInsufficientPayment)
	}
	b.Balance.Sub(b.Balance, amount)
	b.Withdrawn.Add(b.Withdrawn, amount)
	return nil
}

func (s *MemVaultStore) GetBucket(ctx context.Context, marketID int64, token string) (domain.VaultBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucketKey(marketID, token)]
	if !ok {
		return domain.VaultBucket{}, domain.ErrNotFound
	}
	return snapshotBucket(b), nil
}

func (s *MemVaultStore) ListBuckets(ctx context.Context, marketID int64) ([]domain.VaultBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.VaultBucket
	for _, b := range s.buckets {
		if b.MarketID == marketID {
			out = append(out, snapshotBucket(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

var _ domain.VaultStore = (*MemVaultStore)(nil)

// ---------------------------------------------------------------------------
// MemConditionStore
// ---------------------------------------------------------------------------

// MemConditionStore is an in-memory domain.ConditionStore.
type MemConditionStore struct {
	mu    sync.Mutex
	conds map[string]domain.Condition
}

func NewMemConditionStore() *MemConditionStore {
	return &MemConditionStore{conds: make(map[string]domain.Condition)}
}

func (s *MemConditionStore) Create(ctx context.Context, c domain.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conds[c.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.conds[c.ID] = c
	return nil
}

func (s *MemConditionStore) GetByID(ctx context.Context, id string) (domain.Condition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conds[id]
	if !ok {
		return domain.Condition{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *MemConditionStore) SetAsserted(ctx context.Context, id string, outcome bool, by string, bond *big.Int, at, livenessEnd time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conds[id]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Status != domain.ConditionOpen {
		return domain.ErrAlreadyExists
	}
	c.Status = domain.ConditionAsserted
	c.AssertedOutcome = &outcome
	c.AssertedBy = by
	c.AssertionBond = bond
	c.AssertedAt = &at
	c.LivenessEnd = &livenessEnd
	s.conds[id] = c
	return nil
}

func (s *MemConditionStore) SetSettled(ctx context.Context, id string, outcome bool, confidence float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conds[id]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Status != domain.ConditionAsserted {
		return domain.ErrAlreadyResolved
	}
	c.Status = domain.ConditionResolved
	c.Outcome = &outcome
	c.Confidence = confidence
	c.SettledAt = &at
	s.conds[id] = c
	return nil
}

func (s *MemConditionStore) ListSettleable(ctx context.Context, now time.Time) ([]domain.Condition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Condition
	for _, c := range s.conds {
		if c.Status == domain.ConditionAsserted && c.LivenessEnd != nil && !c.LivenessEnd.After(now) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ domain.ConditionStore = (*MemConditionStore)(nil)

// ---------------------------------------------------------------------------
// MemAuditStore
// ---------------------------------------------------------------------------

// MemAuditStore is an in-memory domain.AuditStore.
type MemAuditStore struct {
	mu      sync.Mutex
	nextID  int64
	Entries []domain.AuditEntry
}

func NewMemAuditStore() *MemAuditStore {
	return &MemAuditStore{}
}

func (s *MemAuditStore) Log(ctx context.Context, marketID int64, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.Entries = append(s.Entries, domain.AuditEntry{
		ID:        s.nextID,
		MarketID:  marketID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *MemAuditStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.Entries {
		if e.MarketID == marketID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemAuditStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.Entries {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Events returns the event names logged for a market, in order.
func (s *MemAuditStore) Events(marketID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.Entries {
		if e.MarketID == marketID {
			out = append(out, e.Event)
		}
	}
	return out
}

var _ domain.AuditStore = (*MemAuditStore)(nil)
