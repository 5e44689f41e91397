package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/outbox"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `usage:"Redis URL for the cart cache (SHOP_REDIS_URL or REDIS_URL); empty disables caching" flag:"redis-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images" flag:"image-base-url"`
	Migrate      bool   `default:"true" usage:"Apply embedded migrations on start"`
	Auth         AuthConfig
	Checkout     CheckoutConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// AuthConfig controls bearer token decoding.
type AuthConfig struct {
	Secret        string   `usage:"HS256 secret; empty decodes tokens without verification" flag:"auth-secret"`
	Issuer        string   `usage:"Expected iss claim" flag:"auth-issuer"`
	Audience      string   `usage:"Expected aud claim" flag:"auth-audience"`
	SubjectClaims []string `usage:"Claims tried for the user id, in order" flag:"auth-subject-claims"`
}

// CheckoutConfig selects checkout policies.
type CheckoutConfig struct {
	InventoryPolicy string `default:"reject" usage:"reject or allow_negative" flag:"inventory-policy"`
	ClearCart       bool   `default:"true" usage:"Empty the cart on checkout" flag:"clear-cart"`
	AllowEmpty      bool   `default:"true" usage:"Allow checkout of an empty cart" flag:"allow-empty"`
}

// OutboxConfig controls the event relay. No brokers disables it.
type OutboxConfig struct {
	Brokers   []string      `usage:"Kafka brokers" flag:"outbox-brokers"`
	Topic     string        `default:"orders" usage:"Kafka topic for order events" flag:"outbox-topic"`
	Interval  time.Duration `default:"1s" usage:"Relay poll interval" flag:"outbox-interval"`
	BatchSize int           `default:"100" usage:"Events per relay batch" flag:"outbox-batch-size"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from the environment, flags and YAML files.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	switch order.InventoryPolicy(c.Checkout.InventoryPolicy) {
	case order.InventoryReject, order.InventoryAllowNegative:
	default:
		return errors.Errorf("unknown inventory policy %q", c.Checkout.InventoryPolicy)
	}
	return nil
}

// applyPlatformDefaults maps DATABASE_URL, REDIS_URL and PORT as set by
// hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) resolverConfig() auth.ResolverConfig {
	return auth.ResolverConfig{
		Secret:        []byte(c.Auth.Secret),
		Issuer:        c.Auth.Issuer,
		Audience:      c.Auth.Audience,
		SubjectClaims: c.Auth.SubjectClaims,
	}
}

func (c *Config) checkoutConfig() order.CheckoutConfig {
	return order.CheckoutConfig{
		Inventory:  order.InventoryPolicy(c.Checkout.InventoryPolicy),
		ClearCart:  c.Checkout.ClearCart,
		AllowEmpty: c.Checkout.AllowEmpty,
	}
}

func (c *Config) relayConfig() outbox.RelayConfig {
	return outbox.RelayConfig{
		Interval:  c.Outbox.Interval,
		BatchSize: c.Outbox.BatchSize,
	}
}
