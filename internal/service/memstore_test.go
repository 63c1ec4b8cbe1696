package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crowdtest/internal/model"
)

// memStore is an in-memory Store for the service tests. RunSerializable
// snapshots the state before fn and restores it when fn fails, matching the
// all-or-nothing commit behaviour of the real store.
type memStore struct {
	mu    sync.Mutex
	state *memState
}

type memRow struct {
	missionID string
	status    string
}

type memState struct {
	wallets       map[string]*model.Wallet
	users         map[string]*model.User
	transactions  map[string]*model.Transaction
	txOrder       []string
	holdings      map[string]*model.Holding
	holdingOrder  []string
	entries       []*model.HoldingEntry
	missions      map[string]*model.Mission
	applications  []*memRow
	enrollments   []*memRow
	notifications []*model.Notification
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		wallets:      map[string]*model.Wallet{},
		users:        map[string]*model.User{},
		transactions: map[string]*model.Transaction{},
		holdings:     map[string]*model.Holding{},
		missions:     map[string]*model.Mission{},
	}}
}

func (s *memStore) RunSerializable(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	if err := fn(&memTx{state: s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (st *memState) clone() *memState {
	out := &memState{
		wallets:      make(map[string]*model.Wallet, len(st.wallets)),
		users:        make(map[string]*model.User, len(st.users)),
		transactions: make(map[string]*model.Transaction, len(st.transactions)),
		txOrder:      append([]string(nil), st.txOrder...),
		holdings:     make(map[string]*model.Holding, len(st.holdings)),
		holdingOrder: append([]string(nil), st.holdingOrder...),
		missions:     make(map[string]*model.Mission, len(st.missions)),
	}
	for id, w := range st.wallets {
		out.wallets[id] = copyWallet(w)
	}
	for id, u := range st.users {
		out.users[id] = copyUser(u)
	}
	for id, t := range st.transactions {
		out.transactions[id] = copyTransaction(t)
	}
	for id, h := range st.holdings {
		out.holdings[id] = copyHolding(h)
	}
	for id, m := range st.missions {
		cp := *m
		out.missions[id] = &cp
	}
	for _, e := range st.entries {
		cp := *e
		out.entries = append(out.entries, &cp)
	}
	for _, a := range st.applications {
		cp := *a
		out.applications = append(out.applications, &cp)
	}
	for _, e := range st.enrollments {
		cp := *e
		out.enrollments = append(out.enrollments, &cp)
	}
	for _, n := range st.notifications {
		cp := *n
		out.notifications = append(out.notifications, &cp)
	}
	return out
}

func copyWallet(w *model.Wallet) *model.Wallet {
	cp := *w
	return &cp
}

func copyUser(u *model.User) *model.User {
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	return &cp
}

func copyTransaction(t *model.Transaction) *model.Transaction {
	cp := *t
	if t.Metadata != nil {
		cp.Metadata = make(model.Metadata, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func copyHolding(h *model.Holding) *model.Holding {
	cp := *h
	if h.Breakdown != nil {
		cp.Breakdown = make(model.Breakdown, len(h.Breakdown))
		for k, v := range h.Breakdown {
			cp.Breakdown[k] = v
		}
	}
	return &cp
}

type memTx struct {
	state *memState
}

func (t *memTx) Wallet(ctx context.Context, accountID string) (*model.Wallet, error) {
	w, ok := t.state.wallets[accountID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return copyWallet(w), nil
}

func (t *memTx) CreateWallet(ctx context.Context, w *model.Wallet) error {
	if _, ok := t.state.wallets[w.AccountID]; ok {
		return fmt.Errorf("wallet %s already exists", w.AccountID)
	}
	t.state.wallets[w.AccountID] = copyWallet(w)
	return nil
}

func (t *memTx) ApplyWalletDelta(ctx context.Context, accountID string, delta int64, counter model.Counter, counterDelta int64) (int64, error) {
	w, ok := t.state.wallets[accountID]
	if !ok {
		return 0, model.ErrNotFound
	}
	if w.Balance+delta < 0 {
		return 0, model.ErrInsufficientFunds
	}
	w.Balance += delta
	switch counter {
	case model.CounterNone:
	case model.CounterCharged:
		w.TotalCharged += counterDelta
	case model.CounterEarned:
		w.TotalEarned += counterDelta
	case model.CounterSpent:
		w.TotalSpent += counterDelta
	case model.CounterWithdrawn:
		w.TotalWithdrawn += counterDelta
	default:
		return 0, fmt.Errorf("unknown counter %q", counter)
	}
	return w.Balance, nil
}

func (t *memTx) AppendTransaction(ctx context.Context, tr *model.Transaction) error {
	if _, ok := t.state.transactions[tr.ID]; ok {
		return fmt.Errorf("transaction %s already exists", tr.ID)
	}
	t.state.transactions[tr.ID] = copyTransaction(tr)
	t.state.txOrder = append(t.state.txOrder, tr.ID)
	return nil
}

func (t *memTx) TransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	tr, ok := t.state.transactions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return copyTransaction(tr), nil
}

func (t *memTx) SetTransactionStatus(ctx context.Context, id string, status model.TransactionStatus, patch model.Metadata) error {
	tr, ok := t.state.transactions[id]
	if !ok {
		return model.ErrNotFound
	}
	tr.Status = status
	if tr.Metadata == nil {
		tr.Metadata = model.Metadata{}
	}
	for k, v := range patch {
		tr.Metadata[k] = v
	}
	now := time.Now().UTC()
	tr.CompletedAt = &now
	return nil
}

func (t *memTx) CompletedOrderExists(ctx context.Context, orderID string) (bool, error) {
	for _, tr := range t.state.transactions {
		if tr.Status == model.TransactionCompleted && tr.Metadata.String("orderId") == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) SumWithdrawalsSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var total int64
	for _, tr := range t.state.transactions {
		if tr.UserID == userID && tr.Type == model.TransactionWithdraw &&
			tr.Status != model.TransactionCancelled && !tr.CreatedAt.Before(since) {
			total += tr.Amount
		}
	}
	return total, nil
}

func (t *memTx) ActiveHoldings(ctx context.Context, appID string) ([]*model.Holding, error) {
	var out []*model.Holding
	for _, id := range t.state.holdingOrder {
		h := t.state.holdings[id]
		if h.AppID == appID && h.Status == model.HoldingActive {
			out = append(out, copyHolding(h))
		}
	}
	return out, nil
}

func (t *memTx) CreateHolding(ctx context.Context, h *model.Holding) error {
	for _, existing := range t.state.holdings {
		if existing.AppID == h.AppID && existing.Status == model.HoldingActive {
			return model.ErrActiveHoldingExists
		}
	}
	t.state.holdings[h.ID] = copyHolding(h)
	t.state.holdingOrder = append(t.state.holdingOrder, h.ID)
	return nil
}

func (t *memTx) SettleHolding(ctx context.Context, id string, remaining, spent int64, status model.HoldingStatus) error {
	h, ok := t.state.holdings[id]
	if !ok {
		return model.ErrNotFound
	}
	h.RemainingAmount = remaining
	h.SpentAmount = spent
	h.Status = status
	return nil
}

func (t *memTx) AppendHoldingEntry(ctx context.Context, e *model.HoldingEntry) error {
	cp := *e
	t.state.entries = append(t.state.entries, &cp)
	return nil
}

func (t *memTx) Mission(ctx context.Context, id string) (*model.Mission, error) {
	m, ok := t.state.missions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (t *memTx) CreateMission(ctx context.Context, m *model.Mission) error {
	cp := *m
	t.state.missions[m.ID] = &cp
	return nil
}

func (t *memTx) SetMissionStatus(ctx context.Context, m *model.Mission) error {
	existing, ok := t.state.missions[m.ID]
	if !ok {
		return model.ErrNotFound
	}
	existing.Status = m.Status
	existing.RejectionReason = m.RejectionReason
	existing.ClosureReason = m.ClosureReason
	existing.StatusChangedBy = m.StatusChangedBy
	return nil
}

func (t *memTx) DeleteMission(ctx context.Context, id string) error {
	if _, ok := t.state.missions[id]; !ok {
		return model.ErrNotFound
	}
	delete(t.state.missions, id)
	return nil
}

func (t *memTx) CancelPendingApplications(ctx context.Context, missionID, reason string) (int64, error) {
	var n int64
	for _, a := range t.state.applications {
		if a.missionID == missionID && a.status == model.ApplicationPending {
			a.status = model.ApplicationCancelled
			n++
		}
	}
	return n, nil
}

func (t *memTx) CloseActiveEnrollments(ctx context.Context, missionID, reason string) (int64, error) {
	var n int64
	for _, e := range t.state.enrollments {
		if e.missionID == missionID && e.status == model.EnrollmentActive {
			e.status = model.EnrollmentCompleted
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateNotification(ctx context.Context, n *model.Notification) error {
	cp := *n
	t.state.notifications = append(t.state.notifications, &cp)
	return nil
}

func (t *memTx) User(ctx context.Context, id string) (*model.User, error) {
	u, ok := t.state.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return copyUser(u), nil
}

func (t *memTx) SetUserPoints(ctx context.Context, id string, points int64) error {
	u, ok := t.state.users[id]
	if !ok {
		return model.ErrNotFound
	}
	u.Points = points
	return nil
}

func (t *memTx) SetUserSuspension(ctx context.Context, id string, suspended bool, reason, by string, until *time.Time) error {
	u, ok := t.state.users[id]
	if !ok {
		return model.ErrNotFound
	}
	u.Suspended = suspended
	u.SuspendReason = reason
	u.SuspendedUntil = until
	return nil
}

// Seeding helpers.

func (s *memStore) seedWallet(accountID string, balance int64) {
	s.state.wallets[accountID] = &model.Wallet{AccountID: accountID, Balance: balance}
}

func (s *memStore) seedUser(id string, roles ...string) {
	s.state.users[id] = &model.User{ID: id, Roles: roles}
}

func (s *memStore) seedMission(m *model.Mission) {
	cp := *m
	s.state.missions[m.ID] = &cp
}

func (s *memStore) seedApplication(missionID, status string) {
	s.state.applications = append(s.state.applications, &memRow{missionID: missionID, status: status})
}

func (s *memStore) seedEnrollment(missionID, status string) {
	s.state.enrollments = append(s.state.enrollments, &memRow{missionID: missionID, status: status})
}

func (s *memStore) wallet(accountID string) *model.Wallet {
	return s.state.wallets[accountID]
}

func (s *memStore) holding(id string) *model.Holding {
	return s.state.holdings[id]
}

func (s *memStore) transactionsFor(userID string) []*model.Transaction {
	var out []*model.Transaction
	for _, id := range s.state.txOrder {
		if tr := s.state.transactions[id]; tr.UserID == userID {
			out = append(out, tr)
		}
	}
	return out
}

// Fakes for the remaining service collaborators.

type fakeAuth struct {
	admins map[string]bool
	owners map[string]string // mission or app id -> owner id
	err    error
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{admins: map[string]bool{}, owners: map[string]string{}}
}

func (a *fakeAuth) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return a.admins[userID], a.err
}

func (a *fakeAuth) IsMissionOwner(ctx context.Context, userID, missionID string) (bool, error) {
	return a.owners[missionID] == userID, a.err
}

type fakeBus struct {
	mu     sync.Mutex
	topics []string
	data   [][]byte
}

func (b *fakeBus) Publish(topic string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.data = append(b.data, data)
	return nil
}

func (b *fakeBus) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range b.topics {
		if t == topic {
			n++
		}
	}
	return n
}

type fakeCache struct {
	balances    map[string]int64
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{balances: map[string]int64{}}
}

func (c *fakeCache) Balance(ctx context.Context, accountID string) (int64, error) {
	b, ok := c.balances[accountID]
	if !ok {
		return 0, model.ErrNotFound
	}
	return b, nil
}

func (c *fakeCache) SetBalance(ctx context.Context, accountID string, balance int64) error {
	c.balances[accountID] = balance
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, accountIDs ...string) error {
	for _, id := range accountIDs {
		delete(c.balances, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}
