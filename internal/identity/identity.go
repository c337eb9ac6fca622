package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Eventos de transicion de sesion que empuja el backend.
const (
	EventSignedIn    = "SIGNED_IN"
	EventUserUpdated = "USER_UPDATED"
	EventSignedOut   = "SIGNED_OUT"
)

// ProviderEmail es el provider de credenciales propias (password).
const ProviderEmail = "email"

var (
	ErrNetwork           = errors.New("identity backend unreachable")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrWeakCredential    = errors.New("credential too weak")
)

// LinkedIdentity es una identidad federada asociada al usuario.
type LinkedIdentity struct {
	Provider string `json:"provider"`
}

// AuthIdentity es la representacion efimera de quien esta autenticado.
// Es propiedad del backend: el reconciliador la lee y nunca la persiste.
type AuthIdentity struct {
	ID               string           `json:"id"`
	Email            string           `json:"email"`
	Provider         string           `json:"provider,omitempty"`
	AppProvider      string           `json:"app_provider,omitempty"`
	Identities       []LinkedIdentity `json:"identities,omitempty"`
	EmailConfirmedAt *time.Time       `json:"email_confirmed_at,omitempty"`
	Name             string           `json:"name,omitempty"`
}

// ResolveProvider determina el provider efectivo con prioridad fija:
// app metadata, luego la primera identidad federada, luego el campo
// top-level. Devuelve "" cuando no se puede determinar.
func (i *AuthIdentity) ResolveProvider() string {
	if i == nil {
		return ""
	}
	if p := strings.TrimSpace(i.AppProvider); p != "" {
		return strings.ToLower(p)
	}
	if len(i.Identities) > 0 {
		if p := strings.TrimSpace(i.Identities[0].Provider); p != "" {
			return strings.ToLower(p)
		}
	}
	if p := strings.TrimSpace(i.Provider); p != "" {
		return strings.ToLower(p)
	}
	return ""
}

// Session es la sesion emitida por el backend tras autenticar.
type Session struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	Identity     AuthIdentity `json:"user"`
}

// ChangeHandler recibe transiciones de estado de sesion.
type ChangeHandler func(event string, session *Session)

// Backend es el contrato del adaptador de identidad. El backend remoto y
// el fallback offline lo implementan igual, asi el reconciliador no
// distingue entre ambos.
type Backend interface {
	// CurrentIdentity devuelve nil sin error cuando no hay sesion.
	CurrentIdentity(ctx context.Context, accessToken string) (*AuthIdentity, error)
	SignUp(ctx context.Context, email, password string) (string, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	// SignOut es no-op cuando no existe sesion.
	SignOut(ctx context.Context, accessToken string) error
	ResendVerification(ctx context.Context, email string) error
	OnAuthStateChange(handler ChangeHandler)
}

// notifier difunde transiciones de sesion a los handlers registrados.
// El registro nunca falla; la entrega es asincronica.
type notifier struct {
	mu       sync.Mutex
	handlers []ChangeHandler
}

func (n *notifier) subscribe(handler ChangeHandler) {
	if handler == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, handler)
}

func (n *notifier) emit(event string, session *Session) {
	n.mu.Lock()
	handlers := make([]ChangeHandler, len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.Unlock()
	for _, h := range handlers {
		go h(event, session)
	}
}
