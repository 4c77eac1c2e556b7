package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Stream reconnect policies.
const (
	ReconnectReplace = "replace"
	ReconnectReject  = "reject"
)

type Config struct {
	Environment    string // ENV: production, development, etc.
	Port           string
	Host           string   // Raw HOST env (e.g. https://api.sparklink.app)
	AllowedHost    string   // Hostname only for strict host check (production only)
	FrontendURL    string
	AllowedOrigins []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL
	TrustProxy     bool

	MongoURI    string
	PostgresURI string // empty keeps jobs in memory (development only)
	RedisURI    string // empty disables Redis-backed rate limiting and live fan-out

	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	ClerkSecretKey     string
	ClerkAPIURL        string
	ClerkJWTKey        string // PEM public key used to verify RS256 session tokens
	AuthJWTSecret      string // HS256 secret, development only
	ClerkWebhookSecret string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SenderEmail  string

	StreamRequireAuth     bool
	StreamReconnectPolicy string

	WorkerEnabled      bool
	WorkerPollInterval time.Duration

	LogLevel string
	LogDev   bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("HOST", "http://localhost:8080")
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017/sparklink")
	v.SetDefault("POSTGRES_URI", "")
	v.SetDefault("REDIS_URI", "")
	v.SetDefault("CLOUDINARY_CLOUD_NAME", "")
	v.SetDefault("CLOUDINARY_API_KEY", "")
	v.SetDefault("CLOUDINARY_API_SECRET", "")
	v.SetDefault("CLERK_SECRET_KEY", "")
	v.SetDefault("CLERK_API_URL", "https://api.clerk.com")
	v.SetDefault("CLERK_JWT_KEY", "")
	v.SetDefault("AUTH_JWT_SECRET", "")
	v.SetDefault("CLERK_WEBHOOK_SECRET", "")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SENDER_EMAIL", "")
	v.SetDefault("STREAM_REQUIRE_AUTH", false)
	v.SetDefault("STREAM_RECONNECT_POLICY", ReconnectReplace)
	v.SetDefault("WORKER_ENABLED", true)
	v.SetDefault("WORKER_POLL_INTERVAL", 2*time.Second)
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("LOG_DEV", false)
}

// Load reads configuration from the environment. Call godotenv.Load first so a
// local .env file is visible here.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	env := strings.ToLower(strings.TrimSpace(v.GetString("ENV")))
	host := v.GetString("HOST")

	// AllowedHost is only set in production; host check is skipped in development
	var allowedHost string
	if env == "production" {
		allowedHost = hostname(host)
	}

	allowedOrigins := parseOrigins(v.GetString("ALLOWED_ORIGINS"))
	if len(allowedOrigins) == 0 {
		if u := strings.TrimSpace(v.GetString("FRONTEND_URL")); u != "" {
			allowedOrigins = append(allowedOrigins, u)
		}
	}

	policy := strings.ToLower(strings.TrimSpace(v.GetString("STREAM_RECONNECT_POLICY")))
	if policy != ReconnectReject {
		policy = ReconnectReplace
	}

	return &Config{
		Environment:           env,
		Port:                  v.GetString("PORT"),
		Host:                  host,
		AllowedHost:           allowedHost,
		FrontendURL:           v.GetString("FRONTEND_URL"),
		AllowedOrigins:        allowedOrigins,
		TrustProxy:            v.GetBool("TRUST_PROXY"),
		MongoURI:              v.GetString("MONGODB_URI"),
		PostgresURI:           v.GetString("POSTGRES_URI"),
		RedisURI:              v.GetString("REDIS_URI"),
		CloudinaryName:        v.GetString("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:      v.GetString("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret:   v.GetString("CLOUDINARY_API_SECRET"),
		ClerkSecretKey:        v.GetString("CLERK_SECRET_KEY"),
		ClerkAPIURL:           strings.TrimRight(v.GetString("CLERK_API_URL"), "/"),
		ClerkJWTKey:           v.GetString("CLERK_JWT_KEY"),
		AuthJWTSecret:         v.GetString("AUTH_JWT_SECRET"),
		ClerkWebhookSecret:    v.GetString("CLERK_WEBHOOK_SECRET"),
		SMTPHost:              v.GetString("SMTP_HOST"),
		SMTPPort:              v.GetInt("SMTP_PORT"),
		SMTPUser:              v.GetString("SMTP_USER"),
		SMTPPassword:          v.GetString("SMTP_PASSWORD"),
		SenderEmail:           v.GetString("SENDER_EMAIL"),
		StreamRequireAuth:     v.GetBool("STREAM_REQUIRE_AUTH"),
		StreamReconnectPolicy: policy,
		WorkerEnabled:         v.GetBool("WORKER_ENABLED"),
		WorkerPollInterval:    v.GetDuration("WORKER_POLL_INTERVAL"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogDev:                v.GetBool("LOG_DEV"),
	}
}

// hostname strips scheme, path and port from a URL-ish HOST value.
func hostname(host string) string {
	for _, prefix := range []string{"https://", "http://"} {
		host = strings.TrimPrefix(host, prefix)
	}
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return strings.TrimSpace(host)
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

// CloudinaryConfigured reports whether all Cloudinary credentials are present.
func (c *Config) CloudinaryConfigured() bool {
	return c.CloudinaryName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// SMTPConfigured reports whether outbound mail can be sent.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SenderEmail != ""
}
