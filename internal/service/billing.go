package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"resume-match/internal/billing"
	"resume-match/internal/domain"
	"resume-match/internal/repository"
)

// BillingService aplica eventos del proveedor de pagos sobre el account
// store. Es el unico escritor autorizado a otorgar o revocar "pro" del
// lado servidor, y solo toca plan/role, nunca email ni id.
type BillingService struct {
	logger   *zap.Logger
	accounts repository.AccountRepository
	client   billing.Client
	audit    *AuditLogger
}

func NewBillingService(logger *zap.Logger, accounts repository.AccountRepository, client billing.Client, audit *AuditLogger) *BillingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = NewAuditLogger(logger, nil, nil)
	}
	return &BillingService{
		logger:   logger,
		accounts: accounts,
		client:   client,
		audit:    audit,
	}
}

// HandleEvent procesa un evento ya verificado. Cuentas sin match y tipos
// desconocidos se loguean y se ignoran: reintentar la entrega no los va
// a resolver. Reaplicar el mismo evento es idempotente porque las
// escrituras son de estado absoluto.
func (s *BillingService) HandleEvent(ctx context.Context, event billing.Event) error {
	switch event.Type {
	case billing.EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case billing.EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	default:
		s.logger.Info("billing event ignored",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
		)
		return nil
	}
}

func (s *BillingService) handleCheckoutCompleted(ctx context.Context, event billing.Event) error {
	var session billing.CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return err
	}

	customerID := session.Customer
	if customerID == "" && session.Subscription != "" && s.client != nil {
		// Fallback: recuperar la referencia del cliente desde la
		// suscripcion antes de rendirse.
		sub, err := s.client.GetSubscription(ctx, session.Subscription)
		if err != nil {
			s.audit.RecordError("billing_webhook", "subscription fallback lookup failed", err)
			return err
		}
		customerID = sub.Customer
	}
	if customerID == "" {
		s.logger.Warn("checkout event without customer reference",
			zap.String("event_id", event.ID),
		)
		return nil
	}

	return s.applyPlanChange(ctx, event.ID, customerID, domain.PlanPro, domain.RoleRecruiter)
}

func (s *BillingService) handleSubscriptionDeleted(ctx context.Context, event billing.Event) error {
	var sub billing.Subscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return err
	}
	if sub.Customer == "" {
		s.logger.Warn("subscription event without customer reference",
			zap.String("event_id", event.ID),
		)
		return nil
	}
	// Downgrade atomico de ambos campos juntos: preserva recruiter => pro.
	return s.applyPlanChange(ctx, event.ID, sub.Customer, domain.PlanFree, domain.RoleCandidate)
}

func (s *BillingService) applyPlanChange(ctx context.Context, eventID, customerID, plan, role string) error {
	account, err := s.accounts.GetByStripeCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			// Sin cuenta para esta referencia de pago; la re-entrega del
			// evento no lo va a arreglar.
			s.logger.Warn("no account for billing customer",
				zap.String("event_id", eventID),
				zap.String("customer_id", customerID),
			)
			return nil
		}
		s.audit.RecordError("billing_webhook", "account lookup failed", err)
		return err
	}

	if _, err := s.accounts.UpdateRolePlan(ctx, account.ID, role, plan); err != nil {
		s.audit.RecordError("billing_webhook", "plan update failed", err)
		return err
	}
	s.logger.Info("plan updated from billing event",
		zap.String("event_id", eventID),
		zap.String("account_id", account.ID),
		zap.String("plan", plan),
		zap.String("role", role),
	)
	return nil
}
