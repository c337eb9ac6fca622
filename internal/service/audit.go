package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"resume-match/internal/domain"
	"resume-match/internal/repository"
)

const auditWriteTimeout = 2 * time.Second

// AuditLogger registra eventos de auth y errores de aplicacion.
// Todas las escrituras son fire-and-forget: se lanzan en goroutines con
// su propio timeout y un fallo de escritura jamas afecta al flujo que lo
// origino. Sin repositorios configurados degrada a solo-zap.
type AuditLogger struct {
	logger     *zap.Logger
	authEvents repository.AuthEventRepository
	appErrors  repository.AppErrorRepository
}

func NewAuditLogger(logger *zap.Logger, authEvents repository.AuthEventRepository, appErrors repository.AppErrorRepository) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{
		logger:     logger,
		authEvents: authEvents,
		appErrors:  appErrors,
	}
}

// RecordLogin registra un LOGIN. Nunca bloquea ni devuelve error.
func (a *AuditLogger) RecordLogin(accountID, email string) {
	a.recordAuth(domain.AuthEvent{
		AccountID: accountID,
		Email:     email,
		Action:    domain.AuthActionLogin,
		CreatedAt: time.Now().UTC(),
	})
}

// RecordLogout registra un LOGOUT. Nunca bloquea ni devuelve error.
func (a *AuditLogger) RecordLogout(accountID, email string) {
	a.recordAuth(domain.AuthEvent{
		AccountID: accountID,
		Email:     email,
		Action:    domain.AuthActionLogout,
		CreatedAt: time.Now().UTC(),
	})
}

// RecordError registra un error de aplicacion best-effort.
func (a *AuditLogger) RecordError(source, message string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	a.logger.Warn("app error",
		zap.String("source", source),
		zap.String("message", message),
		zap.String("detail", detail),
	)
	if a.appErrors == nil {
		return
	}
	entry := domain.AppError{
		Source:    source,
		Message:   message,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()
		if err := a.appErrors.Insert(ctx, entry); err != nil {
			a.logger.Warn("app error insert failed", zap.Error(err))
		}
	}()
}

func (a *AuditLogger) recordAuth(event domain.AuthEvent) {
	a.logger.Info("auth event",
		zap.String("action", event.Action),
		zap.String("account_id", event.AccountID),
		zap.String("email", event.Email),
	)
	if a.authEvents == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()
		if err := a.authEvents.Insert(ctx, event); err != nil {
			a.logger.Warn("auth event insert failed", zap.Error(err))
		}
	}()
}
