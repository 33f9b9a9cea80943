package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the overall application configuration.
type Config struct {
	DatabaseURL       string `envconfig:"DATABASE_URL"`
	LogLevel          string `envconfig:"LOG_LEVEL"           default:"info"`
	CarrierConfigPath string `envconfig:"CARRIER_CONFIG_PATH" default:"carrier_configs.json"`
	ContentDir        string `envconfig:"CONTENT_DIR"         default:"/var/lib/mmsgate/content"`

	API         APIConfig
	Scheduler   SchedulerConfig
	Network     NetworkConfig
	Transport   TransportConfig
	Delegate    DelegateConfig
	Maintenance MaintenanceConfig
	Telephony   TelephonyConfig
}

// APIConfig holds the HTTP API frontend configuration.
type APIConfig struct {
	Addr         string        `envconfig:"API_ADDR"          default:":8080"`
	ReadTimeout  time.Duration `envconfig:"API_READ_TIMEOUT"  default:"10s"`
	WriteTimeout time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout  time.Duration `envconfig:"API_IDLE_TIMEOUT"  default:"60s"`
}

// SchedulerConfig holds admission control and retry configuration.
type SchedulerConfig struct {
	SendWorkers     int           `envconfig:"SCHED_SEND_WORKERS"     default:"4"`
	DownloadWorkers int           `envconfig:"SCHED_DOWNLOAD_WORKERS" default:"4"`
	MaxAttempts     int           `envconfig:"SCHED_MAX_ATTEMPTS"     default:"3"`
	RetryBackoff    time.Duration `envconfig:"SCHED_RETRY_BACKOFF"    default:"2s"`
}

// NetworkConfig holds network lease acquisition configuration.
type NetworkConfig struct {
	// PlatformRequestTimeout is how long the underlying platform is given
	// to produce a network. The blocking acquire waits this plus
	// AcquireExtraTimeout so a genuine platform timeout is observed by the
	// caller rather than silently dropped.
	PlatformRequestTimeout time.Duration `envconfig:"NET_PLATFORM_REQUEST_TIMEOUT" default:"60s"`
	AcquireExtraTimeout    time.Duration `envconfig:"NET_ACQUIRE_EXTRA_TIMEOUT"    default:"5s"`
}

// TransportConfig holds MMSC HTTP exchange configuration.
type TransportConfig struct {
	IPv4WaitAttempts int           `envconfig:"TRANSPORT_IPV4_WAIT_ATTEMPTS" default:"15"`
	IPv4WaitDelay    time.Duration `envconfig:"TRANSPORT_IPV4_WAIT_DELAY"    default:"1s"`

	// RetryPermanent4xx marks 4xx MMSC statuses terminal instead of
	// retryable.
	RetryPermanent4xx bool `envconfig:"HTTP_RETRY_PERMANENT_4XX" default:"false"`

	BreakerEnabled          bool          `envconfig:"TRANSPORT_BREAKER_ENABLED"           default:"false"`
	BreakerFailureThreshold int           `envconfig:"TRANSPORT_BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerSuccessThreshold int           `envconfig:"TRANSPORT_BREAKER_SUCCESS_THRESHOLD" default:"3"`
	BreakerTimeout          time.Duration `envconfig:"TRANSPORT_BREAKER_TIMEOUT"           default:"30s"`

	ThrottleEnabled bool    `envconfig:"TRANSPORT_THROTTLE_ENABLED" default:"false"`
	ThrottleRate    float64 `envconfig:"TRANSPORT_THROTTLE_RATE"    default:"10"`
	ThrottleBurst   float64 `envconfig:"TRANSPORT_THROTTLE_BURST"   default:"20"`
}

// DelegateConfig holds carrier app delegation configuration.
type DelegateConfig struct {
	Timeout time.Duration `envconfig:"DELEGATE_TIMEOUT" default:"30s"`
}

// TelephonyConfig maps subscriptions to the subscriber identity values
// substituted into carrier header macros. Format: "subID:value,subID:value",
// e.g. TEL_LINE1_NUMBERS="1:+15551230001,2:+15551230002".
type TelephonyConfig struct {
	Line1Numbers map[int]string `envconfig:"TEL_LINE1_NUMBERS"`
	NAIs         map[int]string `envconfig:"TEL_NAIS"`
}

// MaintenanceConfig holds retention windows for the background sweeps.
type MaintenanceConfig struct {
	SweepInterval   time.Duration `envconfig:"MAINT_SWEEP_INTERVAL"   default:"5m"`
	StatusRetention time.Duration `envconfig:"MAINT_STATUS_RETENTION" default:"1h"`
	RecordRetention time.Duration `envconfig:"MAINT_RECORD_RETENTION" default:"720h"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	log.Println("Loading configuration from environment variables...")

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, skipping: %v", err)
	} else {
		log.Println(".env loaded")
	}

	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Configuration loaded successfully (API Addr: %s)", cfg.API.Addr)
	return &cfg, nil
}
