package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Token verification (PASETO v4.public). The gateway refuses realtime
	// handshakes when no verifier is configured.
	TokenPublicKeyHex string
	TokenIssuer       string
	TokenSkew         time.Duration

	// If true, startup fails when no usable token public key is configured.
	RequireTokenVerifier bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("LOOM_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("LOOM_LOG_LEVEL", "info"),
		LogFormat: EnvString("LOOM_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("LOOM_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("LOOM_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("LOOM_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("LOOM_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("LOOM_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("LOOM_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("LOOM_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("LOOM_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("LOOM_READINESS_REQUIRE_DB", false),

		TokenPublicKeyHex: EnvString("LOOM_TOKEN_PUBLIC_KEY", ""),
		TokenIssuer:       EnvString("LOOM_TOKEN_ISSUER", "loom"),
		TokenSkew:         EnvDuration("LOOM_TOKEN_SKEW", 30*time.Second),

		RequireTokenVerifier: EnvBool("LOOM_REQUIRE_TOKEN_VERIFIER", false),

		CORSAllowedOrigins:   EnvCSV("LOOM_CORS_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1"),
		CORSAllowCredentials: EnvBool("LOOM_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("LOOM_CORS_MAX_AGE_SECONDS", 600),
	}
}
