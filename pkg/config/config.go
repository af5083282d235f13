package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" validate:"required"`
	Logging     struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Cache struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		Backend         string        `yaml:"backend" default:"layered" validate:"oneof=memory disk redis layered"`
		DBPath          string        `yaml:"db_path" default:"data/cache"`
		MemoryMaxSize   int           `yaml:"memory_max_size" default:"2000"`
		CleanupInterval time.Duration `yaml:"cleanup_interval" default:"5m"`
		Redis           struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Orchestrator struct {
		FastTimeout   time.Duration `yaml:"fast_timeout" default:"3s"`
		MediumTimeout time.Duration `yaml:"medium_timeout" default:"10s"`
		SlowTimeout   time.Duration `yaml:"slow_timeout" default:"30s"`
		CycleInterval time.Duration `yaml:"cycle_interval" default:"1m"`
	} `yaml:"orchestrator"`
	Providers struct {
		Exchange struct {
			BaseURL  string        `yaml:"base_url"`
			CacheTTL time.Duration `yaml:"cache_ttl" default:"5s"`
		} `yaml:"exchange"`
		OnChain struct {
			BaseURL  string        `yaml:"base_url"`
			CacheTTL time.Duration `yaml:"cache_ttl" default:"2m"`
		} `yaml:"onchain"`
		ExtMarket struct {
			BaseURL  string        `yaml:"base_url"`
			CacheTTL time.Duration `yaml:"cache_ttl" default:"1m"`
		} `yaml:"extmarket"`
		Sentiment struct {
			BaseURL  string        `yaml:"base_url"`
			CacheTTL time.Duration `yaml:"cache_ttl" default:"5m"`
		} `yaml:"sentiment"`
		Computed struct {
			WindowSize int           `yaml:"window_size" default:"600"`
			CacheTTL   time.Duration `yaml:"cache_ttl" default:"1s"`
		} `yaml:"computed"`
		Breaker struct {
			FailureThreshold int           `yaml:"failure_threshold" default:"5" validate:"gt=0"`
			Cooldown         time.Duration `yaml:"cooldown" default:"30s"`
		} `yaml:"breaker"`
		Retry struct {
			MaxAttempts   int           `yaml:"max_attempts" default:"3" validate:"gt=0"`
			InitialDelay  time.Duration `yaml:"initial_delay" default:"200ms"`
			BackoffFactor float64       `yaml:"backoff_factor" default:"2.0" validate:"gte=1"`
			MaxDelay      time.Duration `yaml:"max_delay" default:"5s"`
		} `yaml:"retry"`
		RateLimit struct {
			Capacity     float64 `yaml:"capacity" default:"10"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"2"`
		} `yaml:"ratelimit"`
	} `yaml:"providers"`
	Classifier struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout" default:"15s"`
	} `yaml:"classifier"`
	Regime struct {
		ConfirmationCycles int     `yaml:"confirmation_cycles" default:"3" validate:"gt=0"`
		EnterThreshold     float64 `yaml:"hysteresis_enter_threshold" default:"0.7" validate:"gt=0,lte=1"`
		ExitThreshold      float64 `yaml:"hysteresis_exit_threshold" default:"0.4" validate:"gte=0,lt=1"`
		// MinThresholdGap is the required margin between exit and enter.
		MinThresholdGap float64       `yaml:"min_threshold_gap" default:"0.1"`
		HistorySize     int           `yaml:"history_size" default:"64" validate:"gt=0"`
		EventLockLead   time.Duration `yaml:"event_lock_lead" default:"2h"`
		EventLockLag    time.Duration `yaml:"event_lock_lag" default:"1h"`
	} `yaml:"regime"`
	Governor struct {
		CooldownAfterChange time.Duration `yaml:"cooldown_after_change" default:"45m"`
		MinimumDwell        time.Duration `yaml:"minimum_dwell" default:"2h"`
		MinAdvantageBps     float64       `yaml:"minimum_advantage_over_cost_bps" default:"50"`
		PartialRotationPct  float64       `yaml:"partial_rotation_pct_per_cycle" default:"0.25" validate:"gt=0,lte=1"`
		StatePath           string        `yaml:"state_path" default:"data/governor"`
	} `yaml:"governor"`
	Tripwire struct {
		MinMarginRatio       float64       `yaml:"min_margin_ratio" default:"0.1" validate:"gt=0"`
		LiqProximityPct      float64       `yaml:"liquidation_proximity_pct" default:"0.15"`
		DailyLossLimitPct    float64       `yaml:"daily_loss_limit_pct" default:"0.05" validate:"gt=0"`
		MaxDataStaleness     time.Duration `yaml:"max_data_staleness" default:"90s"`
		MaxAPIFailureCount   int           `yaml:"max_api_failure_count" default:"5" validate:"gt=0"`
		PlanInvalidation     bool          `yaml:"plan_invalidation" default:"true"`
		JournalSize          int           `yaml:"journal_size" default:"256"`
	} `yaml:"tripwire"`
	Stream struct {
		Enabled        bool          `yaml:"enabled"`
		URL            string        `yaml:"url"`
		APIKey         string        `yaml:"api_key"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
		MaxRPS         int           `yaml:"max_rps" default:"50"`
		BufferSize     int           `yaml:"buffer_size" default:"2000"`
	} `yaml:"stream"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		AuditTopic   string   `yaml:"audit_topic" default:"perphelm.audit"`
		EventsTopic  string   `yaml:"events_topic" default:"perphelm.macro_events"`
		LogsTopic    string   `yaml:"logs_topic" default:"perphelm.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"500ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"perphelm-events"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"250ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"perphelm"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file. Any validation failure
// is fatal: a misconfigured governance core must not start.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("CLASSIFIER_URL"); v != "" {
		c.Classifier.BaseURL = v
	}
	if v := os.Getenv("STREAM_API_KEY"); v != "" {
		c.Stream.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Stream.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CACHE_DB_PATH"); v != "" {
		c.Cache.DBPath = v
	}
	return c, nil
}

// Validate checks structural constraints and the cross-field invariants the
// tag validators cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Regime.ExitThreshold >= c.Regime.EnterThreshold {
		return fmt.Errorf("regime: hysteresis_exit_threshold (%.2f) must be below hysteresis_enter_threshold (%.2f)",
			c.Regime.ExitThreshold, c.Regime.EnterThreshold)
	}
	if gap := c.Regime.EnterThreshold - c.Regime.ExitThreshold; gap < c.Regime.MinThresholdGap {
		return fmt.Errorf("regime: threshold gap %.2f below configured margin %.2f", gap, c.Regime.MinThresholdGap)
	}
	if c.Orchestrator.FastTimeout <= 0 || c.Orchestrator.MediumTimeout <= 0 || c.Orchestrator.SlowTimeout <= 0 {
		return fmt.Errorf("orchestrator: all timescale timeouts must be positive")
	}
	if c.Governor.MinAdvantageBps < 0 {
		return fmt.Errorf("governor: minimum_advantage_over_cost_bps must not be negative")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka: brokers required when enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse: host required when enabled")
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache: redis backend requires addr")
	}
	return nil
}
