package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"resume-match/internal/domain"
	"resume-match/internal/identity"
	"resume-match/internal/repository"
)

// Reconciler media entre la identidad del backend de auth y el account
// store canonico: garantiza que una identidad autenticada mapea a
// exactamente una cuenta, deriva los flags de entitlement y aplica la
// politica de role/plan. No guarda estado entre llamadas; todo se relee
// de los dos stores.
type Reconciler struct {
	logger   *zap.Logger
	backend  identity.Backend
	accounts repository.AccountRepository
	audit    *AuditLogger
	limiter  RateLimiter

	// remoteConfigured distingue backend hosteado de fallback offline;
	// varias politicas (upgrade, cambio de password) dependen de esto.
	remoteConfigured bool
}

var (
	ErrMissingIdentityFields = errors.New("identity missing id or email")
	ErrIdentityEmailMismatch = errors.New("identity email mismatch")
	ErrEmailAlreadyInUse     = errors.New("email already in use")
	ErrStoreFailure          = errors.New("account store failure")
	ErrEmailExists           = errors.New("email already registered")
	ErrWeakPassword          = errors.New("password too weak")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccessDenied          = errors.New("access denied")
	ErrInvalidRole           = errors.New("invalid role")
	ErrUpgradeRequired       = errors.New("upgrade required")
	ErrRateLimited           = errors.New("rate limited")
	ErrVerifyUnsupported     = errors.New("email verification handled by auth provider")
)

// Razones de inelegibilidad para upgrade, en orden de prioridad.
const (
	ReasonBackendNotConfigured = "backend_not_configured"
	ReasonUserNotFound         = "user_not_found"
	ReasonEmailNotVerified     = "email_not_verified"
	ReasonOK                   = "ok"
)

// Eligibility es el resultado estructurado del chequeo previo a un pago.
type Eligibility struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

const resendWindow = 10 * time.Minute

func NewReconciler(logger *zap.Logger, backend identity.Backend, accounts repository.AccountRepository, audit *AuditLogger, limiter RateLimiter, remoteConfigured bool) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = NewAuditLogger(logger, nil, nil)
	}
	if limiter == nil {
		limiter = NewSlidingWindowLimiter(resendWindow, 3)
	}
	return &Reconciler{
		logger:           logger,
		backend:          backend,
		accounts:         accounts,
		audit:            audit,
		limiter:          limiter,
		remoteConfigured: remoteConfigured,
	}
}

// Start registra el listener de transiciones de sesion. Las transiciones
// empujadas por el backend y las llamadas directas convergen en
// EnsureAccountForIdentity: un solo camino, dos disparadores.
func (r *Reconciler) Start() {
	if r.backend == nil {
		return
	}
	r.backend.OnAuthStateChange(func(event string, session *identity.Session) {
		if session == nil {
			return
		}
		switch event {
		case identity.EventSignedIn, identity.EventUserUpdated:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := r.EnsureAccountForIdentity(ctx, session.Identity, session.AccessToken); err != nil {
				r.audit.RecordError("auth_state_listener", "reconcile on auth change failed", err)
			}
		}
	})
}

// EnsureAccountForIdentity garantiza la cuenta canonica para una
// identidad autenticada. Es idempotente y segura ante llamadas
// concurrentes para la misma identidad: la unicidad del store es el
// arbitro final y un insert perdedor se trata como "ya existe".
// Todo fallo fuerza el cierre de la sesion (fail closed).
func (r *Reconciler) EnsureAccountForIdentity(ctx context.Context, ident identity.AuthIdentity, accessToken string) (domain.Account, error) {
	if strings.TrimSpace(ident.ID) == "" || strings.TrimSpace(ident.Email) == "" {
		r.forceSignOut(accessToken, "missing identity fields")
		return domain.Account{}, ErrMissingIdentityFields
	}

	account, err := r.accounts.GetByID(ctx, ident.ID)
	switch {
	case err == nil:
		if account.Email != ident.Email {
			// El mismo id con dos emails distintos: el store canonico y
			// el proveedor divergieron. Nunca se acepta en silencio.
			r.forceSignOut(accessToken, "identity email mismatch")
			return domain.Account{}, ErrIdentityEmailMismatch
		}
		r.audit.RecordLogin(account.ID, account.Email)
		return account, nil
	case !errors.Is(err, domain.ErrAccountNotFound):
		r.forceSignOut(accessToken, "account lookup failed")
		return domain.Account{}, r.storeFailure("ensure_account", err)
	}

	_, err = r.accounts.GetByEmail(ctx, ident.Email)
	switch {
	case err == nil:
		// Otro id ya es dueno de este email. Fusionar cuentas de forma
		// automatica no es seguro; lo resuelve un humano.
		r.forceSignOut(accessToken, "email owned by another account")
		return domain.Account{}, ErrEmailAlreadyInUse
	case !errors.Is(err, domain.ErrAccountNotFound):
		r.forceSignOut(accessToken, "account lookup failed")
		return domain.Account{}, r.storeFailure("ensure_account", err)
	}

	account = domain.Account{
		ID:        ident.ID,
		Email:     ident.Email,
		Name:      ident.Name,
		Role:      domain.RoleCandidate,
		Plan:      domain.PlanFree,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrDuplicateAccount) {
			// Perdimos la carrera contra otra reconciliacion de la misma
			// identidad; releer y validar en lugar de fallar.
			existing, getErr := r.accounts.GetByID(ctx, ident.ID)
			if getErr == nil && existing.Email == ident.Email {
				r.audit.RecordLogin(existing.ID, existing.Email)
				return existing, nil
			}
			r.forceSignOut(accessToken, "duplicate account conflict")
			return domain.Account{}, ErrEmailAlreadyInUse
		}
		r.forceSignOut(accessToken, "account create failed")
		return domain.Account{}, r.storeFailure("ensure_account", err)
	}

	r.audit.RecordLogin(account.ID, account.Email)
	return account, nil
}

// SignUp registra credenciales nuevas. El email se chequea primero en el
// account store para dar un error limpio en vez de dejar una identidad
// upstream huerfana. La cuenta nace candidate/free sin verificar; el
// role deseado se aplica despues via UpdateRole, donde rige la politica.
func (r *Reconciler) SignUp(ctx context.Context, emailAddr, password, name string) (domain.Account, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if emailAddr == "" || strings.TrimSpace(password) == "" {
		return domain.Account{}, ErrInvalidCredentials
	}

	if _, err := r.accounts.GetByEmail(ctx, emailAddr); err == nil {
		return domain.Account{}, ErrEmailExists
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Account{}, r.storeFailure("sign_up", err)
	}

	identityID, err := r.backend.SignUp(ctx, emailAddr, password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrDuplicateEmail):
			return domain.Account{}, ErrEmailExists
		case errors.Is(err, identity.ErrWeakCredential):
			return domain.Account{}, ErrWeakPassword
		case errors.Is(err, identity.ErrInvalidCredential):
			return domain.Account{}, ErrInvalidCredentials
		default:
			return domain.Account{}, r.storeFailure("sign_up", err)
		}
	}

	verified := false
	account := domain.Account{
		ID:            identityID,
		Email:         emailAddr,
		Name:          strings.TrimSpace(name),
		Role:          domain.RoleCandidate,
		Plan:          domain.PlanFree,
		EmailVerified: &verified,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrDuplicateAccount) {
			return domain.Account{}, ErrEmailExists
		}
		return domain.Account{}, r.storeFailure("sign_up", err)
	}
	return account, nil
}

// SignIn autentica contra el backend y exige que la cuenta canonica ya
// exista: una sesion autenticada sin cuenta registrada se cierra de
// inmediato y el caller recibe acceso denegado.
func (r *Reconciler) SignIn(ctx context.Context, emailAddr, password string) (*identity.Session, domain.Account, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	session, err := r.backend.SignInWithPassword(ctx, emailAddr, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredential) {
			return nil, domain.Account{}, ErrInvalidCredentials
		}
		return nil, domain.Account{}, r.storeFailure("sign_in", err)
	}

	if _, err := r.accounts.GetByEmail(ctx, emailAddr); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			r.forceSignOut(session.AccessToken, "authenticated without account row")
			return nil, domain.Account{}, ErrAccessDenied
		}
		r.forceSignOut(session.AccessToken, "account lookup failed")
		return nil, domain.Account{}, r.storeFailure("sign_in", err)
	}

	account, err := r.EnsureAccountForIdentity(ctx, session.Identity, session.AccessToken)
	if err != nil {
		return nil, domain.Account{}, err
	}
	return session, account, nil
}

// SignOut cierra la sesion actual y registra el LOGOUT.
func (r *Reconciler) SignOut(ctx context.Context, accessToken, refreshToken string) error {
	if ident, err := r.backend.CurrentIdentity(ctx, accessToken); err == nil && ident != nil {
		r.audit.RecordLogout(ident.ID, ident.Email)
	}
	if refreshToken != "" {
		if revoker, ok := r.backend.(interface{ RevokeRefresh(string) error }); ok {
			_ = revoker.RevokeRefresh(refreshToken)
		}
	}
	return r.backend.SignOut(ctx, accessToken)
}

// Refresh renueva la sesion con el backend.
func (r *Reconciler) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	session, err := r.backend.RefreshSession(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredential) {
			return nil, ErrInvalidCredentials
		}
		return nil, r.storeFailure("refresh", err)
	}
	return session, nil
}

// CurrentAccount resuelve la identidad de la sesion y la reconcilia
// contra el store. Sin sesion devuelve ErrAccessDenied.
func (r *Reconciler) CurrentAccount(ctx context.Context, accessToken string) (domain.Account, error) {
	ident, err := r.backend.CurrentIdentity(ctx, accessToken)
	if err != nil {
		return domain.Account{}, r.storeFailure("current_account", err)
	}
	if ident == nil {
		return domain.Account{}, ErrAccessDenied
	}
	return r.EnsureAccountForIdentity(ctx, *ident, accessToken)
}

// DeriveEntitlementStatus computa los flags de entitlement de la sesion
// actual. Es total: cualquier fallo degrada a guest y se loguea.
func (r *Reconciler) DeriveEntitlementStatus(ctx context.Context, accessToken string) domain.EntitlementStatus {
	if r.backend == nil {
		return domain.GuestEntitlements()
	}
	ident, err := r.backend.CurrentIdentity(ctx, accessToken)
	if err != nil {
		r.audit.RecordError("entitlements", "current identity fetch failed", err)
		return domain.GuestEntitlements()
	}
	if ident == nil {
		return domain.GuestEntitlements()
	}

	provider := ident.ResolveProvider()
	isOAuth := provider != "" && provider != identity.ProviderEmail
	// Sin provider determinable se asume password: el sistema fue
	// historicamente de email/password.
	isEmail := provider == "" || provider == identity.ProviderEmail
	return domain.EntitlementStatus{
		IsGuest:     false,
		IsEmailUser: isEmail,
		IsOAuthUser: isOAuth,
		// Las identidades OAuth vienen pre-verificadas por el proveedor.
		IsEmailVerified: ident.EmailConfirmedAt != nil || isOAuth,
	}
}

// CanChangePassword decide si se ofrece el cambio de password. Ante
// cualquier ambiguedad resuelve false: ofrecer set-password a una cuenta
// que podria ser solo-OAuth es un foot-gun de seguridad.
func (r *Reconciler) CanChangePassword(ctx context.Context, accessToken string) bool {
	if r.backend == nil {
		return false
	}
	ident, err := r.backend.CurrentIdentity(ctx, accessToken)
	if err != nil || ident == nil {
		return false
	}
	if !r.remoteConfigured {
		store, ok := r.backend.(interface {
			HasPassword(ctx context.Context, email string) (bool, error)
		})
		if !ok {
			return false
		}
		has, err := store.HasPassword(ctx, ident.Email)
		return err == nil && has
	}
	return ident.ResolveProvider() == identity.ProviderEmail
}

// UpdateRole aplica un cambio de rol con la politica recruiter => pro.
// La politica se rechaza aca aunque el store tambien la imponga, porque
// el caller necesita una razon estructurada y no una violacion cruda de
// constraint.
func (r *Reconciler) UpdateRole(ctx context.Context, accountID, newRole string) (domain.Account, error) {
	if !domain.ValidRole(newRole) {
		return domain.Account{}, ErrInvalidRole
	}
	account, err := r.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, r.storeFailure("update_role", err)
	}
	if newRole == domain.RoleRecruiter && account.Plan != domain.PlanPro {
		return domain.Account{}, ErrUpgradeRequired
	}
	updated, err := r.accounts.UpdateRolePlan(ctx, accountID, newRole, account.Plan)
	if err != nil {
		return domain.Account{}, r.storeFailure("update_role", err)
	}
	return updated, nil
}

// VerifyEligibleForUpgrade chequea si la sesion actual puede iniciar un
// upgrade pago. Cuentas de password sin verificar quedan bloqueadas
// (reduce fraude de direcciones descartables); OAuth nunca se bloquea.
func (r *Reconciler) VerifyEligibleForUpgrade(ctx context.Context, accessToken string) Eligibility {
	if !r.remoteConfigured {
		return Eligibility{OK: false, Reason: ReasonBackendNotConfigured}
	}
	ident, err := r.backend.CurrentIdentity(ctx, accessToken)
	if err != nil || ident == nil {
		return Eligibility{OK: false, Reason: ReasonUserNotFound}
	}
	account, err := r.accounts.GetByID(ctx, ident.ID)
	if err != nil {
		return Eligibility{OK: false, Reason: ReasonUserNotFound}
	}

	// El valor almacenado manda cuando existe; si la columna viene vacia
	// se cae al chequeo vivo contra la identidad. OAuth siempre cuenta
	// como verificado, sin importar lo almacenado.
	provider := ident.ResolveProvider()
	isOAuth := provider != "" && provider != identity.ProviderEmail
	verified := isOAuth
	if !verified {
		if account.EmailVerified != nil {
			verified = *account.EmailVerified
		} else {
			verified = ident.EmailConfirmedAt != nil
		}
	}
	if !verified {
		return Eligibility{OK: false, Reason: ReasonEmailNotVerified}
	}
	return Eligibility{OK: true, Reason: ReasonOK}
}

// ResendVerification reenvia el correo de confirmacion, con rate limit
// por email.
func (r *Reconciler) ResendVerification(ctx context.Context, emailAddr string) error {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if emailAddr == "" {
		return ErrInvalidCredentials
	}
	if r.limiter != nil && !r.limiter.Allow(emailAddr) {
		return ErrRateLimited
	}
	if err := r.backend.ResendVerification(ctx, emailAddr); err != nil {
		return r.storeFailure("resend_verification", err)
	}
	return nil
}

// ConfirmEmail procesa el token del link de confirmacion (solo modo
// offline; el backend remoto confirma del lado del proveedor) y refleja
// el resultado en la columna email_verified de la cuenta.
func (r *Reconciler) ConfirmEmail(ctx context.Context, token string) error {
	verifier, ok := r.backend.(interface {
		ConfirmVerification(ctx context.Context, token string) (identity.AuthIdentity, error)
	})
	if !ok {
		return ErrVerifyUnsupported
	}
	ident, err := verifier.ConfirmVerification(ctx, token)
	if err != nil {
		return ErrInvalidCredentials
	}
	if err := r.accounts.SetEmailVerified(ctx, ident.ID, true); err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return r.storeFailure("confirm_email", err)
	}
	return nil
}

// forceSignOut cierra la sesion en segundo plano. Siempre se intenta,
// nunca bloquea la devolucion del error al caller.
func (r *Reconciler) forceSignOut(accessToken, reason string) {
	if r.backend == nil || strings.TrimSpace(accessToken) == "" {
		return
	}
	backend := r.backend
	logger := r.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := backend.SignOut(ctx, accessToken); err != nil {
			logger.Warn("forced sign out failed",
				zap.String("reason", reason),
				zap.Error(err),
			)
		}
	}()
}

func (r *Reconciler) storeFailure(source string, err error) error {
	r.audit.RecordError(source, "store operation failed", err)
	return errors.Join(ErrStoreFailure, err)
}
