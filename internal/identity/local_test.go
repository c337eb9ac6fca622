package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	links []string
	err   error
}

func (s *recordingSender) SendVerificationLink(_ context.Context, toEmail, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, toEmail)
	s.links = append(s.links, link)
	return nil
}

func (s *recordingSender) lastLink(t *testing.T) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.links) == 0 {
		t.Fatalf("expected a verification link sent")
	}
	return s.links[len(s.links)-1]
}

func newTestLocalBackend(sender *recordingSender) *LocalBackend {
	tokens := NewTokenService("test-secret", 15*time.Minute, time.Hour)
	return NewLocalBackend(tokens, sender, "http://localhost/verify", zap.NewNop())
}

func TestLocalSignUpAndSignIn(t *testing.T) {
	sender := &recordingSender{}
	backend := newTestLocalBackend(sender)

	id, err := backend.SignUp(context.Background(), "  A@X.com ", "Secr3t!pass")
	if err != nil {
		t.Fatalf("expected signup success, got %v", err)
	}
	if id == "" {
		t.Fatalf("expected non-empty identity id")
	}
	if len(sender.sent) != 1 || sender.sent[0] != "a@x.com" {
		t.Fatalf("expected verification email to normalized address, got %v", sender.sent)
	}

	session, err := backend.SignInWithPassword(context.Background(), "a@x.com", "Secr3t!pass")
	if err != nil {
		t.Fatalf("expected sign in success, got %v", err)
	}
	if session.Identity.ID != id || session.Identity.Provider != ProviderEmail {
		t.Fatalf("unexpected session identity: %+v", session.Identity)
	}
	if session.Identity.EmailConfirmedAt != nil {
		t.Fatalf("expected unconfirmed identity after fresh signup")
	}

	ident, err := backend.CurrentIdentity(context.Background(), session.AccessToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident == nil || ident.ID != id {
		t.Fatalf("expected current identity for valid token, got %+v", ident)
	}
}

func TestLocalSignUpRejections(t *testing.T) {
	backend := newTestLocalBackend(&recordingSender{})

	if _, err := backend.SignUp(context.Background(), "a@x.com", "short"); !errors.Is(err, ErrWeakCredential) {
		t.Fatalf("expected ErrWeakCredential, got %v", err)
	}
	if _, err := backend.SignUp(context.Background(), "", "Secr3t!pass"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}

	if _, err := backend.SignUp(context.Background(), "a@x.com", "Secr3t!pass"); err != nil {
		t.Fatalf("expected first signup success, got %v", err)
	}
	if _, err := backend.SignUp(context.Background(), "a@x.com", "Other3t!pass"); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestLocalSignInWrongPassword(t *testing.T) {
	backend := newTestLocalBackend(&recordingSender{})
	if _, err := backend.SignUp(context.Background(), "a@x.com", "Secr3t!pass"); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	if _, err := backend.SignInWithPassword(context.Background(), "a@x.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if _, err := backend.SignInWithPassword(context.Background(), "nadie@x.com", "Secr3t!pass"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for unknown email, got %v", err)
	}
}

func TestLocalCurrentIdentityInvalidToken(t *testing.T) {
	backend := newTestLocalBackend(&recordingSender{})

	ident, err := backend.CurrentIdentity(context.Background(), "garbage")
	if err != nil {
		t.Fatalf("expected nil error for invalid token, got %v", err)
	}
	if ident != nil {
		t.Fatalf("expected nil identity for invalid token, got %+v", ident)
	}
}

func TestLocalRefreshRotates(t *testing.T) {
	backend := newTestLocalBackend(&recordingSender{})
	if _, err := backend.SignUp(context.Background(), "a@x.com", "Secr3t!pass"); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	session, err := backend.SignInWithPassword(context.Background(), "a@x.com", "Secr3t!pass")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	renewed, err := backend.RefreshSession(context.Background(), session.RefreshToken)
	if err != nil {
		t.Fatalf("expected refresh success, got %v", err)
	}
	if renewed.RefreshToken == session.RefreshToken {
		t.Fatalf("expected a rotated refresh token")
	}

	// El refresh viejo quedo revocado por la rotacion.
	if _, err := backend.RefreshSession(context.Background(), session.RefreshToken); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected old refresh rejected, got %v", err)
	}
}

func TestLocalConfirmVerificationFlow(t *testing.T) {
	sender := &recordingSender{}
	backend := newTestLocalBackend(sender)
	id, err := backend.SignUp(context.Background(), "a@x.com", "Secr3t!pass")
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	link := sender.lastLink(t)
	token := strings.TrimPrefix(link, "http://localhost/verify?token=")
	if token == link {
		t.Fatalf("unexpected link shape: %s", link)
	}

	ident, err := backend.ConfirmVerification(context.Background(), token)
	if err != nil {
		t.Fatalf("expected confirmation success, got %v", err)
	}
	if ident.ID != id || ident.EmailConfirmedAt == nil {
		t.Fatalf("expected confirmed identity, got %+v", ident)
	}

	// Reconfirmar es idempotente y conserva el primer timestamp.
	again, err := backend.ConfirmVerification(context.Background(), token)
	if err != nil {
		t.Fatalf("expected idempotent confirmation, got %v", err)
	}
	if !again.EmailConfirmedAt.Equal(*ident.EmailConfirmedAt) {
		t.Fatalf("expected confirmation timestamp preserved")
	}

	if _, err := backend.ConfirmVerification(context.Background(), "garbage"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for bad token, got %v", err)
	}
}

func TestLocalResendVerification(t *testing.T) {
	sender := &recordingSender{}
	backend := newTestLocalBackend(sender)
	if _, err := backend.SignUp(context.Background(), "a@x.com", "Secr3t!pass"); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	if err := backend.ResendVerification(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("expected resend success, got %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 emails (signup + resend), got %d", len(sender.sent))
	}

	// Email desconocido: silencio, no enumeracion.
	if err := backend.ResendVerification(context.Background(), "nadie@x.com"); err != nil {
		t.Fatalf("expected unknown email swallowed, got %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected no extra email for unknown address")
	}

	// Ya confirmada: no se reenvia.
	token := strings.TrimPrefix(sender.lastLink(t), "http://localhost/verify?token=")
	if _, err := backend.ConfirmVerification(context.Background(), token); err != nil {
		t.Fatalf("confirmation failed: %v", err)
	}
	if err := backend.ResendVerification(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("expected confirmed resend swallowed, got %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected no email after confirmation")
	}
}

// La confirmacion escribe la credencial mientras otras goroutines la
// leen; el estado verificado debe poder leerse en cualquier momento sin
// carreras (el detector de carreras cubre este test).
func TestLocalConcurrentConfirmAndReads(t *testing.T) {
	sender := &recordingSender{}
	backend := newTestLocalBackend(sender)

	for i := 0; i < 5; i++ {
		emailAddr := fmt.Sprintf("u%d@x.com", i)
		if _, err := backend.SignUp(context.Background(), emailAddr, "Secr3t!pass"); err != nil {
			t.Fatalf("signup failed: %v", err)
		}
		session, err := backend.SignInWithPassword(context.Background(), emailAddr, "Secr3t!pass")
		if err != nil {
			t.Fatalf("sign in failed: %v", err)
		}
		link := sender.lastLink(t)
		token := strings.TrimPrefix(link, "http://localhost/verify?token=")

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := backend.CurrentIdentity(context.Background(), session.AccessToken); err != nil {
					t.Errorf("current identity failed: %v", err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = backend.ResendVerification(context.Background(), emailAddr)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := backend.ConfirmVerification(context.Background(), token); err != nil {
				t.Errorf("confirmation failed: %v", err)
			}
		}()
		wg.Wait()

		ident, err := backend.CurrentIdentity(context.Background(), session.AccessToken)
		if err != nil || ident == nil {
			t.Fatalf("expected identity after confirmation, got %+v/%v", ident, err)
		}
		if ident.EmailConfirmedAt == nil {
			t.Fatalf("expected confirmed identity for %s", emailAddr)
		}
	}
}

func TestLocalHasPassword(t *testing.T) {
	backend := newTestLocalBackend(&recordingSender{})
	if _, err := backend.SignUp(context.Background(), "a@x.com", "Secr3t!pass"); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	has, err := backend.HasPassword(context.Background(), "A@X.com")
	if err != nil || !has {
		t.Fatalf("expected stored password, got %v/%v", has, err)
	}
	has, err = backend.HasPassword(context.Background(), "nadie@x.com")
	if err != nil || has {
		t.Fatalf("expected no password for unknown email, got %v/%v", has, err)
	}
}

func TestLocalSignOutEmitsEvent(t *testing.T) {
	backend := newTestLocalBackend(&recordingSender{})

	events := make(chan string, 4)
	backend.OnAuthStateChange(func(event string, _ *Session) {
		events <- event
	})

	if err := backend.SignOut(context.Background(), "some-token"); err != nil {
		t.Fatalf("expected sign out success, got %v", err)
	}
	select {
	case event := <-events:
		if event != EventSignedOut {
			t.Fatalf("expected SIGNED_OUT, got %s", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected sign out event emitted")
	}

	// Sin token no hay sesion que cerrar ni evento que emitir.
	if err := backend.SignOut(context.Background(), ""); err != nil {
		t.Fatalf("expected empty token tolerated, got %v", err)
	}
}
