package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ben-moore/lokad-cloud/pkg/models"
)

// ErrInvalid marks settings that cannot produce a runnable node.
var ErrInvalid = errors.New("invalid node configuration")

// Storage driver names accepted by the store factory.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Settings holds the node-level configuration supplied at boundary
// creation. A copy is bound into every hosted run as a fixed value.
type Settings struct {
	WorkerName   string `mapstructure:"worker_name"`
	CellName     string `mapstructure:"cell_name"`
	SolutionName string `mapstructure:"solution_name"`

	StorageDriver string `mapstructure:"storage_driver"`
	StorageDSN    string `mapstructure:"storage_dsn"`
	RedisAddr     string `mapstructure:"redis_addr"`

	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`
	LogJSON    bool   `mapstructure:"log_json"`

	// IdleDelay is how long the processing loop sleeps when every task
	// reported Skipped on a full pass.
	IdleDelay time.Duration `mapstructure:"idle_delay"`
}

// Identity returns the identity triple for this node.
func (s Settings) Identity() models.HostIdentity {
	return models.HostIdentity{
		WorkerName:   s.WorkerName,
		CellName:     s.CellName,
		SolutionName: s.SolutionName,
	}
}

// Load reads settings from the given config file (optional) and
// CLOUDHOST_* environment variables.
func Load(cfgFile string) (Settings, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/cloudhost")
		v.SetConfigName("cloudhost")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CLOUDHOST")
	v.AutomaticEnv()
	v.BindEnv("storage_dsn", "CLOUDHOST_STORAGE_DSN")
	v.BindEnv("redis_addr", "CLOUDHOST_REDIS_ADDR")

	v.SetDefault("worker_name", models.DefaultWorkerName())
	v.SetDefault("cell_name", "default")
	v.SetDefault("solution_name", "cloudhost")
	v.SetDefault("storage_driver", DriverMemory)
	v.SetDefault("listen_addr", ":8744")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("idle_delay", 10*time.Second)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults and env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			return Settings{}, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks settings for values the host cannot run with.
func (s Settings) Validate() error {
	switch s.StorageDriver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalid, s.StorageDriver)
	}
	if s.StorageDriver != DriverMemory && s.StorageDSN == "" {
		return fmt.Errorf("%w: storage driver %q requires a DSN", ErrInvalid, s.StorageDriver)
	}
	if s.WorkerName == "" {
		return fmt.Errorf("%w: worker name must not be empty", ErrInvalid)
	}
	if s.IdleDelay <= 0 {
		return fmt.Errorf("%w: idle delay must be positive", ErrInvalid)
	}
	return nil
}
