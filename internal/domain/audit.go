package domain

import "time"

// Acciones registradas en el log de auth.
const (
	AuthActionLogin  = "LOGIN"
	AuthActionLogout = "LOGOUT"
)

// AuthEvent es una entrada append-only de observabilidad. Nunca se lee
// desde el reconciliador.
type AuthEvent struct {
	AccountID string    `json:"account_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// AppError es una entrada de diagnostico best-effort.
type AppError struct {
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
