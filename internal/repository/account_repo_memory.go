package repository

import (
	"context"
	"sync"

	"resume-match/internal/domain"
)

// MemoryAccountRepository es el account store del modo offline. Vive lo
// que vive el proceso y aplica las mismas reglas de unicidad que la base.
type MemoryAccountRepository struct {
	mu       sync.Mutex
	byID     map[string]domain.Account
	byEmail  map[string]string
	byStripe map[string]string
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:     make(map[string]domain.Account),
		byEmail:  make(map[string]string),
		byStripe: make(map[string]string),
	}
}

func (r *MemoryAccountRepository) GetByID(_ context.Context, id string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return account, nil
}

func (r *MemoryAccountRepository) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[email]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryAccountRepository) GetByStripeCustomerID(_ context.Context, customerID string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byStripe[customerID]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryAccountRepository) Create(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[account.ID]; exists {
		return domain.ErrDuplicateAccount
	}
	if _, exists := r.byEmail[account.Email]; exists {
		return domain.ErrDuplicateAccount
	}
	r.byID[account.ID] = account
	r.byEmail[account.Email] = account.ID
	if account.StripeCustomerID != "" {
		r.byStripe[account.StripeCustomerID] = account.ID
	}
	return nil
}

func (r *MemoryAccountRepository) UpdateRolePlan(_ context.Context, id, role, plan string) (domain.Account, error) {
	// Misma constraint que impone la base: valores validos y la
	// invariante recruiter => pro.
	if !domain.ValidRole(role) || !domain.ValidPlan(plan) || !domain.RolePlanConsistent(role, plan) {
		return domain.Account{}, domain.ErrInvalidRolePlan
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	account.Role = role
	account.Plan = plan
	r.byID[id] = account
	return account, nil
}

func (r *MemoryAccountRepository) SetStripeCustomerID(_ context.Context, id, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if account.StripeCustomerID != "" {
		delete(r.byStripe, account.StripeCustomerID)
	}
	account.StripeCustomerID = customerID
	r.byID[id] = account
	if customerID != "" {
		r.byStripe[customerID] = id
	}
	return nil
}

func (r *MemoryAccountRepository) SetEmailVerified(_ context.Context, id string, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	account.EmailVerified = &verified
	r.byID[id] = account
	return nil
}
