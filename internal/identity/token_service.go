package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenService emite y valida los tokens de sesion del backend local.
// El backend remoto administra sus propios tokens; este servicio solo
// existe para el modo offline.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	store      RefreshTokenStore
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Claims struct {
	UserID        string `json:"uid"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	Provider      string `json:"provider,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	TokenType     string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

const verifyTokenTTL = 24 * time.Hour

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "resume-match",
		store:      NewMemoryRefreshTokenStore(),
	}
}

func NewTokenServiceWithStore(secret string, accessTTL, refreshTTL time.Duration, store RefreshTokenStore) *TokenService {
	svc := NewTokenService(secret, accessTTL, refreshTTL)
	if store != nil {
		svc.store = store
	}
	return svc
}

// GeneratePair emite un par access/refresh para la identidad dada.
func (s *TokenService) GeneratePair(ident AuthIdentity) (TokenPair, error) {
	if len(s.secret) == 0 {
		return TokenPair{}, ErrTokenInvalid
	}
	now := time.Now().UTC()
	access, err := s.signToken(ident, now, s.accessTTL, "access", "")
	if err != nil {
		return TokenPair{}, err
	}
	jti := uuid.NewString()
	refresh, err := s.signToken(ident, now, s.refreshTTL, "refresh", jti)
	if err != nil {
		return TokenPair{}, err
	}
	if s.store != nil {
		if err := s.store.Store(jti, ident.ID, s.refreshTTL); err != nil {
			return TokenPair{}, err
		}
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// RefreshPair rota el refresh token y emite un par nuevo.
func (s *TokenService) RefreshPair(refreshToken string) (TokenPair, Claims, error) {
	claims, err := s.parseTyped(refreshToken, "refresh")
	if err != nil {
		return TokenPair{}, Claims{}, err
	}
	if claims.ID == "" || s.store == nil {
		return TokenPair{}, Claims{}, ErrTokenInvalid
	}
	ok, err := s.store.Exists(claims.ID)
	if err != nil || !ok {
		return TokenPair{}, Claims{}, ErrTokenInvalid
	}
	if err := s.store.Revoke(claims.ID); err != nil {
		return TokenPair{}, Claims{}, ErrTokenInvalid
	}

	ident := AuthIdentity{
		ID:       claims.UserID,
		Email:    claims.Email,
		Name:     claims.Name,
		Provider: claims.Provider,
	}
	if claims.EmailVerified {
		now := time.Now().UTC()
		ident.EmailConfirmedAt = &now
	}
	pair, err := s.GeneratePair(ident)
	return pair, claims, err
}

// RevokeRefresh invalida un refresh token emitido.
func (s *TokenService) RevokeRefresh(refreshToken string) error {
	claims, err := s.parseTyped(refreshToken, "refresh")
	if err != nil {
		return err
	}
	if claims.ID == "" || s.store == nil {
		return ErrTokenInvalid
	}
	return s.store.Revoke(claims.ID)
}

// ParseAccessToken valida un access token y devuelve sus claims.
func (s *TokenService) ParseAccessToken(accessToken string) (Claims, error) {
	return s.parseTyped(accessToken, "access")
}

// IssueVerifyToken emite un token de confirmacion de email (modo offline).
func (s *TokenService) IssueVerifyToken(ident AuthIdentity) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrTokenInvalid
	}
	return s.signToken(ident, time.Now().UTC(), verifyTokenTTL, "verify", "")
}

// ParseVerifyToken valida un token de confirmacion de email.
func (s *TokenService) ParseVerifyToken(token string) (Claims, error) {
	return s.parseTyped(token, "verify")
}

func (s *TokenService) signToken(ident AuthIdentity, now time.Time, ttl time.Duration, tokenType, jti string) (string, error) {
	claims := Claims{
		UserID:        ident.ID,
		Email:         ident.Email,
		Name:          ident.Name,
		Provider:      ident.ResolveProvider(),
		EmailVerified: ident.EmailConfirmedAt != nil,
		TokenType:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   ident.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenService) parseTyped(tokenString, tokenType string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrTokenInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrTokenInvalid
	}
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if claims.TokenType != tokenType {
		return Claims{}, ErrTokenInvalid
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *TokenService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
