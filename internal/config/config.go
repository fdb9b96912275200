package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Session   SessionConfig
	Schwab    SchwabConfig
	Market    MarketConfig
	Gradient  GradientConfig
	Redis     RedisConfig
	MongoDB   MongoDBConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ClientAppURL string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type SessionConfig struct {
	CookieName   string
	Secret       string
	TTL          time.Duration
	SecureCookie bool
}

type SchwabConfig struct {
	ClientID          string
	ClientSecret      string
	RedirectURI       string
	Scope             string
	AuthorizeURL      string
	TokenURL          string
	TraderBaseURL     string
	MarketDataBaseURL string
	MaxOrderQty       float64
	DryRun            bool
	Timeout           time.Duration
}

type MarketConfig struct {
	StooqBaseURL string
	NewsBaseURL  string
	Timeout      time.Duration
}

type GradientConfig struct {
	Endpoint string
	Key      string
	Model    string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("CLIENT_APP_URL", "/")
	viper.SetDefault("SESSION_COOKIE_NAME", "bo_session")
	viper.SetDefault("SESSION_TTL_MS", 7*24*60*60*1000)
	viper.SetDefault("SCHWAB_OAUTH_AUTHORIZE_URL", "https://api.schwabapi.com/v1/oauth/authorize")
	viper.SetDefault("SCHWAB_OAUTH_TOKEN_URL", "https://api.schwabapi.com/v1/oauth/token")
	viper.SetDefault("SCHWAB_TRADER_BASE_URL", "https://api.schwabapi.com/trader/v1")
	viper.SetDefault("SCHWAB_MARKETDATA_BASE_URL", "https://api.schwabapi.com/marketdata/v1")
	viper.SetDefault("SCHWAB_MAX_ORDER_QTY", 1000)
	viper.SetDefault("SCHWAB_TIMEOUT_SECONDS", 25)
	viper.SetDefault("STOOQ_BASE_URL", "https://stooq.com")
	viper.SetDefault("MARKET_NEWS_BASE_URL", "https://news.google.com")
	viper.SetDefault("MARKET_TIMEOUT_SECONDS", 15)
	viper.SetDefault("GRADIENT_MODEL", "openai-gpt-oss-120b")
	viper.SetDefault("GRADIENT_TIMEOUT_SECONDS", 25)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("RATE_LIMIT_RPS", 10)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ClientAppURL: viper.GetString("CLIENT_APP_URL"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			CookieName:   viper.GetString("SESSION_COOKIE_NAME"),
			Secret:       os.Getenv("SESSION_SECRET"),
			TTL:          time.Duration(viper.GetInt64("SESSION_TTL_MS")) * time.Millisecond,
			SecureCookie: viper.GetString("SERVER_ENVIRONMENT") == "production" || viper.GetBool("FORCE_SECURE_COOKIE"),
		},
		Schwab: SchwabConfig{
			ClientID:          os.Getenv("SCHWAB_CLIENT_ID"),
			ClientSecret:      os.Getenv("SCHWAB_CLIENT_SECRET"),
			RedirectURI:       os.Getenv("SCHWAB_REDIRECT_URI"),
			Scope:             os.Getenv("SCHWAB_OAUTH_SCOPE"),
			AuthorizeURL:      viper.GetString("SCHWAB_OAUTH_AUTHORIZE_URL"),
			TokenURL:          viper.GetString("SCHWAB_OAUTH_TOKEN_URL"),
			TraderBaseURL:     viper.GetString("SCHWAB_TRADER_BASE_URL"),
			MarketDataBaseURL: viper.GetString("SCHWAB_MARKETDATA_BASE_URL"),
			MaxOrderQty:       viper.GetFloat64("SCHWAB_MAX_ORDER_QTY"),
			DryRun:            viper.GetBool("SCHWAB_DRY_RUN"),
			Timeout:           time.Duration(viper.GetInt("SCHWAB_TIMEOUT_SECONDS")) * time.Second,
		},
		Market: MarketConfig{
			StooqBaseURL: viper.GetString("STOOQ_BASE_URL"),
			NewsBaseURL:  viper.GetString("MARKET_NEWS_BASE_URL"),
			Timeout:      time.Duration(viper.GetInt("MARKET_TIMEOUT_SECONDS")) * time.Second,
		},
		Gradient: GradientConfig{
			Endpoint: os.Getenv("GRADIENT_AGENT_ENDPOINT"),
			Key:      os.Getenv("GRADIENT_AGENT_KEY"),
			Model:    viper.GetString("GRADIENT_MODEL"),
			Timeout:  time.Duration(viper.GetInt("GRADIENT_TIMEOUT_SECONDS")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// A missing secret would invalidate every cookie on restart anyway, so
	// generate an ephemeral one and warn instead of refusing to start.
	if cfg.Session.Secret == "" {
		cfg.Session.Secret = randomSecret()
		log.Println("WARNING: SESSION_SECRET is not set; generated an ephemeral secret (sessions will not survive restarts)")
	}

	return cfg, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("failed to generate session secret: %v", err)
	}
	return hex.EncodeToString(b)
}
