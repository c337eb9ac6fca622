package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPBackend implementa Backend contra un servicio de auth hosteado
// estilo GoTrue. Los timeouts de transporte son responsabilidad de este
// adaptador; el reconciliador no agrega los suyos.
type HTTPBackend struct {
	baseURL string
	anonKey string
	client  *http.Client
	logger  *zap.Logger
	events  notifier
}

// NewHTTPBackend construye el adaptador remoto de identidad.
func NewHTTPBackend(baseURL, anonKey string, logger *zap.Logger) *HTTPBackend {
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// remoteUser es el shape del usuario que devuelve la API remota.
type remoteUser struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	AppMetadata      struct {
		Provider string `json:"provider"`
	} `json:"app_metadata"`
	UserMetadata struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
	Identities []LinkedIdentity `json:"identities"`
}

func (u *remoteUser) toIdentity() *AuthIdentity {
	name := u.UserMetadata.Name
	if name == "" {
		name = u.UserMetadata.FullName
	}
	return &AuthIdentity{
		ID:               u.ID,
		Email:            u.Email,
		AppProvider:      u.AppMetadata.Provider,
		Identities:       u.Identities,
		EmailConfirmedAt: u.EmailConfirmedAt,
		Name:             name,
	}
}

type remoteSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int64      `json:"expires_in"`
	User         remoteUser `json:"user"`
}

type remoteError struct {
	Message   string `json:"msg"`
	ErrorText string `json:"error"`
	ErrorDesc string `json:"error_description"`
}

func (e remoteError) text() string {
	for _, s := range []string{e.Message, e.ErrorDesc, e.ErrorText} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (b *HTTPBackend) CurrentIdentity(ctx context.Context, accessToken string) (*AuthIdentity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, nil
	}
	status, body, err := b.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		// Token vencido o revocado: no hay sesion, no es un error de red.
		return nil, nil
	}
	if status >= 400 {
		return nil, fmt.Errorf("%w: user status %d", ErrNetwork, status)
	}
	var u remoteUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("%w: decode user: %v", ErrNetwork, err)
	}
	if u.ID == "" {
		return nil, nil
	}
	return u.toIdentity(), nil
}

func (b *HTTPBackend) SignUp(ctx context.Context, email, password string) (string, error) {
	payload := map[string]string{"email": email, "password": password}
	status, body, err := b.do(ctx, http.MethodPost, "/auth/v1/signup", "", payload)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", b.mapAuthError(status, body)
	}
	// El id puede venir top-level o anidado segun la version de la API.
	var envelope struct {
		ID   string     `json:"id"`
		User remoteUser `json:"user"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("%w: decode signup: %v", ErrNetwork, err)
	}
	if envelope.ID != "" {
		return envelope.ID, nil
	}
	if envelope.User.ID != "" {
		return envelope.User.ID, nil
	}
	return "", fmt.Errorf("%w: signup response missing id", ErrNetwork)
}

func (b *HTTPBackend) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	payload := map[string]string{"email": email, "password": password}
	status, body, err := b.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return nil, ErrInvalidCredential
	}
	if status >= 400 {
		return nil, fmt.Errorf("%w: token status %d", ErrNetwork, status)
	}
	session, err := decodeSession(body)
	if err != nil {
		return nil, err
	}
	b.events.emit(EventSignedIn, session)
	return session, nil
}

func (b *HTTPBackend) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	payload := map[string]string{"refresh_token": refreshToken}
	status, body, err := b.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return nil, ErrInvalidCredential
	}
	if status >= 400 {
		return nil, fmt.Errorf("%w: refresh status %d", ErrNetwork, status)
	}
	session, err := decodeSession(body)
	if err != nil {
		return nil, err
	}
	b.events.emit(EventUserUpdated, session)
	return session, nil
}

func (b *HTTPBackend) SignOut(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return nil
	}
	status, _, err := b.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil)
	if err != nil {
		return err
	}
	// 401 significa que la sesion ya no existia; cerrar sesion debe poder
	// llamarse igual sin fallar.
	if status >= 400 && status != http.StatusUnauthorized && status != http.StatusNotFound {
		return fmt.Errorf("%w: logout status %d", ErrNetwork, status)
	}
	b.events.emit(EventSignedOut, nil)
	return nil
}

func (b *HTTPBackend) ResendVerification(ctx context.Context, email string) error {
	payload := map[string]string{"type": "signup", "email": email}
	status, body, err := b.do(ctx, http.MethodPost, "/auth/v1/resend", "", payload)
	if err != nil {
		return err
	}
	if status >= 400 {
		return b.mapAuthError(status, body)
	}
	return nil
}

func (b *HTTPBackend) OnAuthStateChange(handler ChangeHandler) {
	b.events.subscribe(handler)
}

func (b *HTTPBackend) do(ctx context.Context, method, path, bearer string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", b.anonKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		req.Header.Set("Authorization", "Bearer "+b.anonKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}
	if resp.StatusCode >= 500 && b.logger != nil {
		b.logger.Warn("auth backend error",
			zap.Int("status", resp.StatusCode),
			zap.String("path", path),
		)
	}
	return resp.StatusCode, body, nil
}

func (b *HTTPBackend) mapAuthError(status int, body []byte) error {
	var re remoteError
	_ = json.Unmarshal(body, &re)
	msg := strings.ToLower(re.text())
	switch {
	case strings.Contains(msg, "already registered"), strings.Contains(msg, "already exists"):
		return ErrDuplicateEmail
	case strings.Contains(msg, "password"), strings.Contains(msg, "weak"):
		return ErrWeakCredential
	case status == http.StatusUnprocessableEntity, status == http.StatusBadRequest:
		return ErrInvalidCredential
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, status)
	}
}

func decodeSession(body []byte) (*Session, error) {
	var rs remoteSession
	if err := json.Unmarshal(body, &rs); err != nil {
		return nil, fmt.Errorf("%w: decode session: %v", ErrNetwork, err)
	}
	if rs.AccessToken == "" {
		return nil, fmt.Errorf("%w: session missing access token", ErrNetwork)
	}
	return &Session{
		AccessToken:  rs.AccessToken,
		RefreshToken: rs.RefreshToken,
		ExpiresIn:    rs.ExpiresIn,
		Identity:     *rs.User.toIdentity(),
	}, nil
}
