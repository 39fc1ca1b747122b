package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Storage backends accepted in STORAGE_BACKEND.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageDynamoDB = "dynamodb"
	StorageNone     = "none"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Shiprocket
	ShiprocketEmail    string        `envconfig:"SHIPROCKET_EMAIL"`
	ShiprocketPassword string        `envconfig:"SHIPROCKET_PASSWORD"`
	ShiprocketBaseURL  string        `envconfig:"SHIPROCKET_BASE_URL" default:"https://apiv2.shiprocket.in/v1/external"`
	DryRun             bool          `envconfig:"SHIPROCKET_DRY_RUN" default:"true"`
	GatewayTimeout     time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
	GatewayMaxAttempts int           `envconfig:"GATEWAY_MAX_ATTEMPTS" default:"3"`

	// Shipment defaults
	PickupLocation      string  `envconfig:"PICKUP_LOCATION" default:"Primary"`
	ChannelID           string  `envconfig:"SHIPROCKET_CHANNEL_ID"`
	DefaultItemWeightKG float64 `envconfig:"DEFAULT_ITEM_WEIGHT_KG" default:"0.5"`
	SchedulePickup      bool    `envconfig:"SCHEDULE_PICKUP" default:"true"`

	// Idempotency
	StorageBackend   string        `envconfig:"STORAGE_BACKEND" default:"memory"`
	DatabaseURL      string        `envconfig:"DATABASE_URL"`
	DynamoDBTable    string        `envconfig:"DYNAMODB_TABLE" default:"deliveries"`
	DynamoDBEndpoint string        `envconfig:"DYNAMODB_ENDPOINT"`
	AWSRegion        string        `envconfig:"AWS_REGION"`
	ProcessCacheSize int           `envconfig:"PROCESS_CACHE_SIZE" default:"10000"`
	WaitTimeout      time.Duration `envconfig:"WAIT_TIMEOUT" default:"30s"`
	WaitPollInterval time.Duration `envconfig:"WAIT_POLL_INTERVAL" default:"500ms"`
	// ReservationLease defaults to GATEWAY_TIMEOUT plus 30s when unset or too short.
	ReservationLease time.Duration `envconfig:"RESERVATION_LEASE"`

	// Notifications and alerts
	TwilioAccountSID   string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken    string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioWhatsAppFrom string `envconfig:"TWILIO_WHATSAPP_FROM"`
	AlertFile          string `envconfig:"ALERT_FILE"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"spinhouse-delivery"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks combinations envconfig cannot express.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory, StorageNone:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the %s backend", c.StorageBackend)
		}
	case StorageDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("config: DYNAMODB_TABLE is required for the %s backend", c.StorageBackend)
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.GatewayMaxAttempts < 1 {
		return fmt.Errorf("config: GATEWAY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// WhatsAppEnabled reports whether Twilio credentials are configured.
func (c *Config) WhatsAppEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioWhatsAppFrom != ""
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.Bool("shiprocket.dry_run", c.DryRun),
		attribute.String("delivery.storage_backend", c.StorageBackend),
	}
}
