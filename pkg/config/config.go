package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"TrendScan/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`
	Logging     struct {
		Level   string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format  string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output  string `yaml:"output" default:"stdout"`
		Collect struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"trailstop.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100" validate:"gt=0"`
		} `yaml:"collect"`
	} `yaml:"logging"`
	Server struct {
		Enabled         bool          `yaml:"enabled"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"500ms"`
		RateLimit       struct {
			Capacity     float64 `yaml:"capacity" default:"20" validate:"gt=0"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"5" validate:"gt=0"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	TrailStop struct {
		FastLength     int           `yaml:"fast_length" default:"5" validate:"gt=0"`
		FastMultiplier float64       `yaml:"fast_multiplier" default:"0.5" validate:"gt=0"`
		SlowLength     int           `yaml:"slow_length" default:"10" validate:"gt=0"`
		SlowMultiplier float64       `yaml:"slow_multiplier" default:"3.0" validate:"gt=0"`
		Workers        int           `yaml:"workers" validate:"gte=0"`
		HistoryWeeks   int           `yaml:"history_weeks" default:"520" validate:"gt=0"`
		Timeout        time.Duration `yaml:"timeout" default:"15m"`
		AsOf           string        `yaml:"as_of"`
	} `yaml:"trailstop"`
	Universe struct {
		Symbols []string `yaml:"symbols"`
	} `yaml:"universe"`
	Schedule struct {
		Enabled  bool          `yaml:"enabled"`
		Cron     string        `yaml:"cron" default:"0 6 * * 6"`
		Timezone string        `yaml:"timezone" default:"America/New_York"`
		LockTTL  time.Duration `yaml:"lock_ttl" default:"2h"`
	} `yaml:"schedule"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"trendscan"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"60s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"60s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"120s"`
		PricesTable      string        `yaml:"prices_table" default:"prices_daily"`
		ResultsTable     string        `yaml:"results_table" default:"trailstop_weekly"`
		RunsTable        string        `yaml:"runs_table" default:"trailstop_runs"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers" validate:"required_if=Enabled true"`
		SignalTopic  string   `yaml:"signal_topic" default:"trailstop.signals"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"500"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"6379"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		Prefix      string        `yaml:"prefix" default:"trendscan"`
		PoolSize    int           `yaml:"pool_size" default:"10" validate:"gt=0"`
		MinIdle     int           `yaml:"min_idle" default:"2" validate:"gte=0"`
		PoolTimeout time.Duration `yaml:"pool_timeout" default:"30s"`
		SnapshotTTL time.Duration `yaml:"snapshot_ttl" default:"336h"`
	} `yaml:"redis"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers" default:"1" validate:"gt=0"`
		RetryLimit int           `yaml:"retry_limit" default:"2" validate:"gte=0"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"1m"`
		Prefix     string        `yaml:"prefix" default:"trendscan:queue"`
	} `yaml:"queue"`
}

var validate = validator.New()

// Default returns a config populated only from struct defaults.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Parse decodes YAML over the struct defaults without validating.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	c.ApplyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// ApplyEnv overrides fields from environment variables looked up via getenv.
// Unparseable numeric values leave the field unchanged.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	c.TrailStop.FastLength = util.ParseIntDefault(getenv("TRAILSTOP_FAST_LENGTH"), c.TrailStop.FastLength)
	c.TrailStop.FastMultiplier = util.ParseFloatDefault(getenv("TRAILSTOP_FAST_MULT"), c.TrailStop.FastMultiplier)
	c.TrailStop.SlowLength = util.ParseIntDefault(getenv("TRAILSTOP_SLOW_LENGTH"), c.TrailStop.SlowLength)
	c.TrailStop.SlowMultiplier = util.ParseFloatDefault(getenv("TRAILSTOP_SLOW_MULT"), c.TrailStop.SlowMultiplier)
	c.TrailStop.Workers = util.ParseIntDefault(getenv("TRAILSTOP_WORKERS"), c.TrailStop.Workers)
	if v := getenv("TRAILSTOP_AS_OF"); v != "" {
		c.TrailStop.AsOf = v
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Universe.Symbols = util.SplitList(v)
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
			}
			return fmt.Errorf("%s", strings.Join(msgs, "; "))
		}
		return err
	}
	if c.Logging.Collect.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("logging.collect requires kafka.enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue requires redis.enabled")
	}
	if c.TrailStop.AsOf != "" {
		if _, ok := util.ParseTime(c.TrailStop.AsOf); !ok {
			return fmt.Errorf("trailstop.as_of: cannot parse %q", c.TrailStop.AsOf)
		}
	}
	return nil
}

// AsOf returns the configured reference date of the history window, or the
// zero time when batches run up to the current week.
func (c *Config) AsOf() time.Time {
	t, _ := util.ParseTime(c.TrailStop.AsOf)
	return t
}
