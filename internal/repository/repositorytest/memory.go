// Package repositorytest provides in-memory stores honouring the repository contracts,
// including the atomic find-or-create on the execution condition.
package repositorytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/wallet/internal/models"
)

type PaymentStore struct {
	mu          sync.Mutex
	byID        map[string]*models.Payment
	byCondition map[string]string
	byRequest   map[string]string
	writes      int

	// FailWrite, when set, is returned by CompletePending instead of writing.
	FailWrite error
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{
		byID:        make(map[string]*models.Payment),
		byCondition: make(map[string]string),
		byRequest:   make(map[string]string),
	}
}

func (s *PaymentStore) FindOrCreateByCondition(ctx context.Context, seed *models.Payment) (*models.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byCondition[seed.ExecutionCondition]; ok {
		return clone(s.byID[id]), false, nil
	}
	if _, ok := s.byID[seed.ID]; ok {
		return nil, false, models.ErrDuplicateRecord
	}
	s.insert(seed)
	return clone(s.byID[seed.ID]), true, nil
}

func (s *PaymentStore) Create(ctx context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[payment.ID]; ok {
		return models.ErrDuplicateRecord
	}
	if _, ok := s.byCondition[payment.ExecutionCondition]; ok {
		return models.ErrDuplicateRecord
	}
	s.insert(payment)
	payment.CreatedAt = s.byID[payment.ID].CreatedAt
	payment.UpdatedAt = s.byID[payment.ID].UpdatedAt
	return nil
}

func (s *PaymentStore) CompletePending(ctx context.Context, payment *models.Payment, requestID string) (*models.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrite != nil {
		return nil, false, s.FailWrite
	}
	existing, ok := s.byID[payment.ID]
	if !ok || existing.State != models.StatePending {
		return nil, false, nil
	}
	if existing.Transfer != "" && existing.Transfer != payment.Transfer {
		return nil, false, nil
	}

	stored := clone(payment)
	stored.ExecutionCondition = existing.ExecutionCondition
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	s.byID[payment.ID] = stored
	if requestID != "" && requestID != payment.ID {
		s.byRequest[requestID] = payment.ID
	}
	s.writes++
	return clone(stored), true, nil
}

func (s *PaymentStore) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		p, ok = s.byID[s.byRequest[id]]
	}
	if !ok {
		return nil, models.ErrPaymentNotFound
	}
	return clone(p), nil
}

func (s *PaymentStore) GetByCondition(ctx context.Context, condition string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCondition[condition]
	if !ok {
		return nil, models.ErrPaymentNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *PaymentStore) ListByUser(ctx context.Context, userID int64, page, limit int) ([]models.Payment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []models.Payment
	for _, p := range s.byID {
		if involves(p, userID) {
			all = append(all, *clone(p))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(all) {
		return []models.Payment{}, len(all), nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (s *PaymentStore) StatsByUser(ctx context.Context, userID int64) (*models.PaymentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats models.PaymentStats
	sent, received := decimal.Zero, decimal.Zero
	for _, p := range s.byID {
		switch {
		case p.SourceUser != nil && *p.SourceUser == userID && p.State == models.StateSuccess:
			stats.SentCount++
			sent = sent.Add(decimal.RequireFromString(p.SourceAmount))
		case p.DestinationUser != nil && *p.DestinationUser == userID && p.State == models.StateSuccess:
			stats.ReceivedCount++
			received = received.Add(decimal.RequireFromString(p.DestinationAmount))
		case p.DestinationUser != nil && *p.DestinationUser == userID && p.State == models.StatePending:
			stats.PendingReceived++
		}
	}
	stats.SentAmount = sent.String()
	stats.ReceivedAmount = received.String()
	return &stats, nil
}

// Len is the number of stored payments.
func (s *PaymentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Writes counts successful inserts and updates.
func (s *PaymentStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *PaymentStore) insert(p *models.Payment) {
	stored := clone(p)
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.byID[p.ID] = stored
	s.byCondition[p.ExecutionCondition] = p.ID
	s.writes++
}

func involves(p *models.Payment, userID int64) bool {
	return (p.SourceUser != nil && *p.SourceUser == userID) ||
		(p.DestinationUser != nil && *p.DestinationUser == userID)
}

func clone(p *models.Payment) *models.Payment {
	c := *p
	return &c
}

type UserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func NewUserStore(users ...*models.User) *UserStore {
	s := &UserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	c := *u
	return &c, nil
}
