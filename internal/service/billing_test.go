package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"resume-match/internal/billing"
	"resume-match/internal/domain"
	"resume-match/internal/repository"
)

type mockBillingClient struct {
	subs map[string]billing.Subscription
	err  error
}

func (m *mockBillingClient) GetSubscription(_ context.Context, id string) (billing.Subscription, error) {
	if m.err != nil {
		return billing.Subscription{}, m.err
	}
	sub, ok := m.subs[id]
	if !ok {
		return billing.Subscription{}, errors.New("subscription not found")
	}
	return sub, nil
}

func seedBillingAccount(t *testing.T, accounts *repository.MemoryAccountRepository, customerID string) domain.Account {
	t.Helper()
	account := domain.Account{
		ID:        "u1",
		Email:     "a@x.com",
		Role:      domain.RoleCandidate,
		Plan:      domain.PlanFree,
		CreatedAt: time.Now().UTC(),
	}
	if err := accounts.Create(context.Background(), account); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if customerID != "" {
		if err := accounts.SetStripeCustomerID(context.Background(), account.ID, customerID); err != nil {
			t.Fatalf("set customer failed: %v", err)
		}
	}
	return account
}

func checkoutEvent(id, customer, subscription string) billing.Event {
	event := billing.Event{ID: id, Type: billing.EventCheckoutCompleted}
	raw := `{"id":"cs_1","customer":"` + customer + `","subscription":"` + subscription + `"}`
	event.Data.Object = []byte(raw)
	return event
}

func TestHandleCheckoutCompletedIsIdempotent(t *testing.T) {
	accounts := repository.NewMemoryAccountRepository()
	seedBillingAccount(t, accounts, "cus_123")
	svc := NewBillingService(zap.NewNop(), accounts, nil, nil)

	event := checkoutEvent("evt_1", "cus_123", "")
	for i := 0; i < 2; i++ {
		if err := svc.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("delivery %d failed: %v", i, err)
		}
	}

	account, err := accounts.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("account fetch failed: %v", err)
	}
	if account.Plan != domain.PlanPro || account.Role != domain.RoleRecruiter {
		t.Fatalf("expected pro/recruiter after replay, got %s/%s", account.Plan, account.Role)
	}
}

func TestHandleCheckoutFallsBackToSubscriptionLookup(t *testing.T) {
	accounts := repository.NewMemoryAccountRepository()
	seedBillingAccount(t, accounts, "cus_123")
	client := &mockBillingClient{subs: map[string]billing.Subscription{
		"sub_9": {ID: "sub_9", Customer: "cus_123", Status: "active"},
	}}
	svc := NewBillingService(zap.NewNop(), accounts, client, nil)

	if err := svc.HandleEvent(context.Background(), checkoutEvent("evt_2", "", "sub_9")); err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}
	account, _ := accounts.GetByID(context.Background(), "u1")
	if account.Plan != domain.PlanPro {
		t.Fatalf("expected plan pro via fallback, got %s", account.Plan)
	}
}

func TestHandleCheckoutFallbackLookupFailure(t *testing.T) {
	accounts := repository.NewMemoryAccountRepository()
	seedBillingAccount(t, accounts, "cus_123")
	client := &mockBillingClient{err: errors.New("api unavailable")}
	svc := NewBillingService(zap.NewNop(), accounts, client, nil)

	if err := svc.HandleEvent(context.Background(), checkoutEvent("evt_3", "", "sub_9")); err == nil {
		t.Fatalf("expected fallback lookup error to surface")
	}
	account, _ := accounts.GetByID(context.Background(), "u1")
	if account.Plan != domain.PlanFree {
		t.Fatalf("expected plan untouched on lookup failure, got %s", account.Plan)
	}
}

func TestHandleCheckoutWithoutCustomerReference(t *testing.T) {
	accounts := repository.NewMemoryAccountRepository()
	seedBillingAccount(t, accounts, "cus_123")
	svc := NewBillingService(zap.NewNop(), accounts, nil, nil)

	// Sin customer ni subscription: se loguea y se acepta.
	if err := svc.HandleEvent(context.Background(), checkoutEvent("evt_4", "", "")); err != nil {
		t.Fatalf("expected nil for unresolvable event, got %v", err)
	}
}

func TestHandleCheckoutUnmatchedCustomerIsNotFatal(t *testing.T) {
	accounts := repository.NewMemoryAccountRepository()
	svc := NewBillingService(zap.NewNop(), accounts, nil, nil)

	if err := svc.HandleEvent(context.Background(), checkoutEvent("evt_5", "cus_unknown", "")); err != nil {
		t.Fatalf("expected nil for unmatched customer, got %v", err)
	}
}

func TestHandleSubscriptionDeletedDowngrades(t *testing.T) {
	accounts := repository.NewMemoryAccountRepository()
	account := seedBillingAccount(t, accounts, "cus_123")
	if _, err := accounts.UpdateRolePlan(context.Background(), account.ID, domain.RoleRecruiter, domain.PlanPro); err != nil {
		t.Fatalf("upgrade seed failed: %v", err)
	}
	svc := NewBillingService(zap.NewNop(), accounts, nil, nil)

	event := billing.Event{ID: "evt_6", Type: billing.EventSubscriptionDeleted}
	event.Data.Object = []byte(`{"id":"sub_9","customer":"cus_123","status":"canceled"}`)
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("downgrade failed: %v", err)
	}

	got, _ := accounts.GetByID(context.Background(), account.ID)
	if got.Plan != domain.PlanFree || got.Role != domain.RoleCandidate {
		t.Fatalf("expected free/candidate after cancel, got %s/%s", got.Plan, got.Role)
	}
	if !domain.RolePlanConsistent(got.Role, got.Plan) {
		t.Fatalf("role/plan invariant broken: %s/%s", got.Role, got.Plan)
	}
}

func TestHandleEventIgnoresUnknownType(t *testing.T) {
	accounts := repository.NewMemoryAccountRepository()
	seedBillingAccount(t, accounts, "cus_123")
	svc := NewBillingService(zap.NewNop(), accounts, nil, nil)

	event := billing.Event{ID: "evt_7", Type: "invoice.paid"}
	event.Data.Object = []byte(`{}`)
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected unknown type ignored, got %v", err)
	}
	account, _ := accounts.GetByID(context.Background(), "u1")
	if account.Plan != domain.PlanFree {
		t.Fatalf("expected plan untouched, got %s", account.Plan)
	}
}
