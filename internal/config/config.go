package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración del servicio. Las credenciales del
// backend de auth y de la base son opcionales: sin ellas el servicio
// degrada a modo offline en lugar de fallar al arrancar.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	AuthBaseURL string `env:"AUTH_BASE_URL"`
	AuthAnonKey string `env:"AUTH_ANON_KEY"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	ScorerAPIKey  string `env:"SCORER_API_KEY"`
	ScorerBaseURL string `env:"SCORER_BASE_URL" envDefault:"https://api.openai.com/v1"`
	ScorerModel   string `env:"SCORER_MODEL" envDefault:"gpt-5.1"`

	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser      string `env:"SMTP_USER"`
	SMTPPass      string `env:"SMTP_PASS"`
	SMTPFrom      string `env:"SMTP_FROM"`
	SMTPFromName  string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS    bool   `env:"SMTP_USE_TLS" envDefault:"false"`
	VerifyLinkURL string `env:"VERIFY_LINK_URL" envDefault:"http://localhost:8080/auth/verify"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AuthConfigured indica si hay backend remoto de identidad disponible.
func (c *Config) AuthConfigured() bool {
	return c.AuthBaseURL != "" && c.AuthAnonKey != ""
}

// StoreConfigured indica si hay base de datos canonica disponible.
func (c *Config) StoreConfigured() bool {
	return c.DatabaseURL != ""
}

// BillingConfigured indica si el webhook de pagos puede operar.
func (c *Config) BillingConfigured() bool {
	return c.StripeSecretKey != "" && c.StripeWebhookSecret != ""
}
