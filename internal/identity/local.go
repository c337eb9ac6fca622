package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"resume-match/internal/email"
)

const localMinPasswordLen = 8

// LocalBackend es el fallback offline cuando no hay backend remoto
// configurado. Implementa el mismo contrato, con credenciales en memoria
// y sesiones emitidas por TokenService. Vive lo que vive el proceso; es
// un modo de desarrollo, no de produccion.
type LocalBackend struct {
	mu      sync.Mutex
	byEmail map[string]*localCredential
	byID    map[string]string

	tokens    *TokenService
	sender    email.Sender
	verifyURL string
	logger    *zap.Logger
	events    notifier
}

type localCredential struct {
	id           string
	email        string
	name         string
	passwordHash []byte
	confirmedAt  *time.Time
	createdAt    time.Time
}

func NewLocalBackend(tokens *TokenService, sender email.Sender, verifyURL string, logger *zap.Logger) *LocalBackend {
	if sender == nil {
		sender = email.NewDisabledSender("email sender not configured")
	}
	return &LocalBackend{
		byEmail:   make(map[string]*localCredential),
		byID:      make(map[string]string),
		tokens:    tokens,
		sender:    sender,
		verifyURL: verifyURL,
		logger:    logger,
	}
}

func (b *LocalBackend) SignUp(ctx context.Context, emailAddr, password string) (string, error) {
	emailAddr = normalizeEmail(emailAddr)
	password = strings.TrimSpace(password)
	if emailAddr == "" || password == "" {
		return "", ErrInvalidCredential
	}
	if len(password) < localMinPasswordLen {
		return "", ErrWeakCredential
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	if _, exists := b.byEmail[emailAddr]; exists {
		b.mu.Unlock()
		return "", ErrDuplicateEmail
	}
	cred := &localCredential{
		id:           uuid.NewString(),
		email:        emailAddr,
		passwordHash: hash,
		createdAt:    time.Now().UTC(),
	}
	b.byEmail[emailAddr] = cred
	b.byID[cred.id] = emailAddr
	ident := b.identityOf(cred)
	b.mu.Unlock()

	// La confirmacion es asincronica: el alta no depende del correo.
	if err := b.sendVerification(ctx, ident); err != nil && b.logger != nil {
		b.logger.Warn("send verification link failed", zap.Error(err), zap.String("email", emailAddr))
	}
	return ident.ID, nil
}

func (b *LocalBackend) SignInWithPassword(ctx context.Context, emailAddr, password string) (*Session, error) {
	emailAddr = normalizeEmail(emailAddr)
	password = strings.TrimSpace(password)
	if emailAddr == "" || password == "" {
		return nil, ErrInvalidCredential
	}

	b.mu.Lock()
	cred, ok := b.byEmail[emailAddr]
	if !ok || len(cred.passwordHash) == 0 {
		b.mu.Unlock()
		return nil, ErrInvalidCredential
	}
	hash := cred.passwordHash
	b.mu.Unlock()
	// bcrypt es caro; se compara fuera del lock sobre el hash inmutable.
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	b.mu.Lock()
	ident := b.identityOf(cred)
	b.mu.Unlock()
	pair, err := b.tokens.GeneratePair(ident)
	if err != nil {
		return nil, err
	}
	session := &Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		Identity:     ident,
	}
	b.events.emit(EventSignedIn, session)
	return session, nil
}

// CurrentIdentity relee la credencial en cada consulta: un token valido
// de una credencial borrada no es una sesion.
func (b *LocalBackend) CurrentIdentity(_ context.Context, accessToken string) (*AuthIdentity, error) {
	claims, err := b.tokens.ParseAccessToken(accessToken)
	if err != nil {
		return nil, nil
	}
	b.mu.Lock()
	emailAddr, ok := b.byID[claims.UserID]
	cred := b.byEmail[emailAddr]
	if !ok || cred == nil {
		b.mu.Unlock()
		return nil, nil
	}
	ident := b.identityOf(cred)
	b.mu.Unlock()
	return &ident, nil
}

func (b *LocalBackend) RefreshSession(_ context.Context, refreshToken string) (*Session, error) {
	pair, claims, err := b.tokens.RefreshPair(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	b.mu.Lock()
	emailAddr, ok := b.byID[claims.UserID]
	cred := b.byEmail[emailAddr]
	if !ok || cred == nil {
		b.mu.Unlock()
		return nil, ErrInvalidCredential
	}
	ident := b.identityOf(cred)
	b.mu.Unlock()
	session := &Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		Identity:     ident,
	}
	b.events.emit(EventUserUpdated, session)
	return session, nil
}

func (b *LocalBackend) SignOut(_ context.Context, accessToken string) error {
	// Callable sin sesion: los tokens locales expiran solos, aca solo se
	// difunde la transicion.
	if strings.TrimSpace(accessToken) != "" {
		b.events.emit(EventSignedOut, nil)
	}
	return nil
}

// RevokeRefresh invalida el refresh token entregado en el logout.
func (b *LocalBackend) RevokeRefresh(refreshToken string) error {
	return b.tokens.RevokeRefresh(refreshToken)
}

// ResendVerification reenvia el link de confirmacion. Un email
// desconocido no es un error observable (evita enumeracion de cuentas).
func (b *LocalBackend) ResendVerification(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	b.mu.Lock()
	cred, ok := b.byEmail[emailAddr]
	if !ok || cred.confirmedAt != nil {
		b.mu.Unlock()
		return nil
	}
	ident := b.identityOf(cred)
	b.mu.Unlock()
	return b.sendVerification(ctx, ident)
}

// ConfirmVerification marca la credencial como verificada a partir del
// token del link de confirmacion.
func (b *LocalBackend) ConfirmVerification(_ context.Context, token string) (AuthIdentity, error) {
	claims, err := b.tokens.ParseVerifyToken(token)
	if err != nil {
		return AuthIdentity{}, ErrInvalidCredential
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	emailAddr, ok := b.byID[claims.UserID]
	cred := b.byEmail[emailAddr]
	if !ok || cred == nil {
		return AuthIdentity{}, ErrInvalidCredential
	}
	if cred.confirmedAt == nil {
		now := time.Now().UTC()
		cred.confirmedAt = &now
	}
	return b.identityOf(cred), nil
}

// HasPassword indica si existe una credencial local con password para el
// email dado. Lo usa la politica de cambio de password.
func (b *LocalBackend) HasPassword(_ context.Context, emailAddr string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cred, ok := b.byEmail[normalizeEmail(emailAddr)]
	return ok && len(cred.passwordHash) > 0, nil
}

func (b *LocalBackend) OnAuthStateChange(handler ChangeHandler) {
	b.events.subscribe(handler)
}

// identityOf arma el snapshot de identidad de una credencial. El caller
// debe tener tomado b.mu: confirmedAt cambia con la confirmacion.
func (b *LocalBackend) identityOf(cred *localCredential) AuthIdentity {
	return AuthIdentity{
		ID:               cred.id,
		Email:            cred.email,
		Provider:         ProviderEmail,
		EmailConfirmedAt: cred.confirmedAt,
		Name:             cred.name,
	}
}

func (b *LocalBackend) sendVerification(ctx context.Context, ident AuthIdentity) error {
	token, err := b.tokens.IssueVerifyToken(ident)
	if err != nil {
		return err
	}
	link := b.verifyURL + "?token=" + token
	return b.sender.SendVerificationLink(ctx, ident.Email, link)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
