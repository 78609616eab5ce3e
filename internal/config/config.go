package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port         string `yaml:"port"`
	PublicHost   string `yaml:"public_host"`
	DatabaseURL  string `yaml:"database_url"`
	RedisURL     string `yaml:"redis_url"`
	KafkaBrokers string `yaml:"kafka_brokers"`
	KafkaTopic   string `yaml:"kafka_topic"`
	NatsURL      string `yaml:"nats_url"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	JWTSecret    string `yaml:"jwt_secret"`

	// Reload funds new ledger accounts with a starting balance.
	Reload bool `yaml:"reload"`

	Ledger    LedgerConfig    `yaml:"ledger"`
	Connector ConnectorConfig `yaml:"connector"`
	Receiver  ReceiverConfig  `yaml:"receiver"`
	Cache     CacheConfig     `yaml:"cache"`
}

type LedgerConfig struct {
	URI            string        `yaml:"uri"`
	PublicURI      string        `yaml:"public_uri"`
	Prefix         string        `yaml:"prefix"`
	AdminUser      string        `yaml:"admin_user"`
	AdminPass      string        `yaml:"admin_pass"`
	CurrencyCode   string        `yaml:"currency_code"`
	CurrencySymbol string        `yaml:"currency_symbol"`
	Scale          int32         `yaml:"scale"`
	Timeout        time.Duration `yaml:"timeout"`
}

type ConnectorConfig struct {
	URI     string        `yaml:"uri"`
	Timeout time.Duration `yaml:"timeout"`
}

type ReceiverConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	ConditionSecret string        `yaml:"condition_secret"`
}

type CacheConfig struct {
	DestinationTTL time.Duration `yaml:"destination_ttl"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	PaymentLockTTL time.Duration `yaml:"payment_lock_ttl"`
}

func Default() *Config {
	return &Config{
		Port:       "8081",
		PublicHost: "wallet.example",
		KafkaTopic: "wallet.payments",
		Ledger: LedgerConfig{
			URI:            "http://localhost:3001",
			CurrencyCode:   "USD",
			CurrencySymbol: "$",
			Scale:          2,
			Timeout:        10 * time.Second,
		},
		Connector: ConnectorConfig{
			Timeout: 30 * time.Second,
		},
		Receiver: ReceiverConfig{
			TTL: 5 * time.Minute,
		},
		Cache: CacheConfig{
			DestinationTTL: time.Minute,
			IdempotencyTTL: 24 * time.Hour,
			PaymentLockTTL: 30 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment,
// in that order, and validates the result.
func Load(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		f, err := os.Open(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		if err := MergeYAML(cfg, f); err != nil {
			return nil, err
		}
	}

	if err := MergeEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.Ledger.PublicURI == "" {
		cfg.Ledger.PublicURI = cfg.Ledger.URI
	}
	if cfg.Connector.URI == "" {
		cfg.Connector.URI = cfg.Ledger.URI
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MergeYAML expands ${VAR} and ${VAR:-default} references before decoding into cfg.
func MergeYAML(cfg *Config, src io.Reader) error {
	raw, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var missing []string
	expanded := os.Expand(string(raw), func(key string) string {
		if i := strings.Index(key, ":-"); i != -1 {
			if val, ok := os.LookupEnv(key[:i]); ok {
				return val
			}
			return key[i+2:]
		}
		val, ok := os.LookupEnv(key)
		if !ok {
			missing = append(missing, key)
		}
		return val
	})
	if len(missing) > 0 {
		return fmt.Errorf("config file expects environment variables %v", missing)
	}

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	return nil
}

func MergeEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.PublicHost, "PUBLIC_HOST")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.KafkaBrokers, "KAFKA_BROKERS")
	setString(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setString(&cfg.NatsURL, "NATS_URL")
	setString(&cfg.OTLPEndpoint, "OTLP_ENDPOINT")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.Ledger.URI, "LEDGER_URI")
	setString(&cfg.Ledger.PublicURI, "LEDGER_PUBLIC_URI")
	setString(&cfg.Ledger.Prefix, "LEDGER_PREFIX")
	setString(&cfg.Ledger.AdminUser, "LEDGER_ADMIN_USER")
	setString(&cfg.Ledger.AdminPass, "LEDGER_ADMIN_PASS")
	setString(&cfg.Ledger.CurrencyCode, "LEDGER_CURRENCY_CODE")
	setString(&cfg.Ledger.CurrencySymbol, "LEDGER_CURRENCY_SYMBOL")
	setString(&cfg.Connector.URI, "CONNECTOR_URI")
	setString(&cfg.Receiver.ConditionSecret, "CONDITION_SECRET")

	var errs error
	if v, ok := os.LookupEnv("RELOAD"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("RELOAD: %w", err))
		}
		cfg.Reload = b
	}
	if v, ok := os.LookupEnv("RECEIVER_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("RECEIVER_TTL: %w", err))
		}
		cfg.Receiver.TTL = d
	}
	if v, ok := os.LookupEnv("LEDGER_SCALE"); ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("LEDGER_SCALE: %w", err))
		}
		cfg.Ledger.Scale = int32(n)
	}
	return errs
}

func (c *Config) Validate() error {
	var errs error
	if c.Ledger.URI == "" {
		errs = errors.Join(errs, errors.New("ledger uri is required"))
	}
	if c.Ledger.Scale < 0 {
		errs = errors.Join(errs, errors.New("ledger scale must not be negative"))
	}
	if c.Receiver.TTL <= 0 {
		errs = errors.Join(errs, errors.New("receiver ttl must be positive"))
	}
	if c.Receiver.ConditionSecret == "" {
		errs = errors.Join(errs, errors.New("condition secret is required"))
	}
	if c.JWTSecret == "" {
		errs = errors.Join(errs, errors.New("jwt secret is required"))
	}
	return errs
}

func setString(tgt *string, key string) {
	if v := os.Getenv(key); v != "" {
		*tgt = v
	}
}
