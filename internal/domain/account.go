package domain

import (
	"errors"
	"time"
)

// Role y Plan son los valores permitidos para cuentas.
const (
	RoleCandidate = "candidate"
	RoleRecruiter = "recruiter"

	PlanFree = "free"
	PlanPro  = "pro"
)

// Account es el registro canonico de identidad. El id es inmutable y,
// para usuarios autenticados, siempre coincide con el id de la identidad
// del backend de auth.
type Account struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name,omitempty"`
	Role             string    `json:"role"`
	Plan             string    `json:"plan"`
	StripeCustomerID string    `json:"-"`
	EmailVerified    *bool     `json:"email_verified,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrDuplicateAccount = errors.New("account already exists")
	ErrInvalidRolePlan  = errors.New("invalid role/plan combination")
)

// ValidRole indica si role es un valor aceptado.
func ValidRole(role string) bool {
	return role == RoleCandidate || role == RoleRecruiter
}

// ValidPlan indica si plan es un valor aceptado.
func ValidPlan(plan string) bool {
	return plan == PlanFree || plan == PlanPro
}

// RolePlanConsistent valida la invariante recruiter => pro.
func RolePlanConsistent(role, plan string) bool {
	if role == RoleRecruiter {
		return plan == PlanPro
	}
	return true
}

// EntitlementStatus se deriva en cada consulta; nunca se persiste porque
// la sesion subyacente puede cambiar en cualquier momento.
type EntitlementStatus struct {
	IsGuest         bool `json:"is_guest"`
	IsEmailUser     bool `json:"is_email_user"`
	IsOAuthUser     bool `json:"is_oauth_user"`
	IsEmailVerified bool `json:"is_email_verified"`
}

// GuestEntitlements es el estado por defecto ante cualquier fallo.
func GuestEntitlements() EntitlementStatus {
	return EntitlementStatus{IsGuest: true}
}
