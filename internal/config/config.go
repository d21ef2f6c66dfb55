// Package config loads the city tuning from YAML and applies environment overrides.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/tilecity/internal/city"
)

//go:embed default.yaml
var defaultYAML []byte

// Config is the full process configuration.
type Config struct {
	GridSize       int `yaml:"grid_size"`
	StartMoney     int `yaml:"start_money"`
	DecayRate      int `yaml:"decay_rate"`
	NewsLimit      int `yaml:"news_limit"`
	DemolitionCost int `yaml:"demolition_cost"`

	TickIntervalMs  int `yaml:"tick_interval_ms"`
	FrameRateHz     int `yaml:"frame_rate_hz"`
	GoalRetrySec    int `yaml:"goal_retry_sec"`
	NewsIntervalSec int `yaml:"news_interval_sec"`
	LLMTimeoutSec   int `yaml:"llm_timeout_sec"`

	Buildings map[string]city.BuildingConfig `yaml:"buildings"`

	Agents Agents `yaml:"agents"`
	Server Server `yaml:"server"`
	LLM    LLM    `yaml:"llm"`

	LogLevel string `yaml:"log_level"`
}

// Agents caps the visual traffic.
type Agents struct {
	MaxVehicles            int `yaml:"max_vehicles"`
	MaxPedestrians         int `yaml:"max_pedestrians"`
	BasePedestrians        int `yaml:"base_pedestrians"`
	ResidentsPerPedestrian int `yaml:"residents_per_pedestrian"`
}

// Server holds the HTTP and storage settings.
type Server struct {
	Port        int    `yaml:"port"`
	DBPath      string `yaml:"db_path"`
	SnapshotDir string `yaml:"snapshot_dir"`
	FramePushHz int    `yaml:"frame_push_hz"`
	AdminKey    string `yaml:"-"` // env only
}

// LLM configures the text-generation collaborator.
type LLM struct {
	Model     string `yaml:"model"`
	URL       string `yaml:"url"`
	MaxPerMin int    `yaml:"max_per_min"`
	APIKey    string `yaml:"-"` // env only
}

// Default returns the embedded reference configuration.
func Default() Config {
	var c Config
	if err := yaml.Unmarshal(defaultYAML, &c); err != nil {
		panic(fmt.Sprintf("default.yaml: %v", err))
	}
	return c
}

// Load reads the defaults, overlays the file at path (if any) and the environment.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return c, fmt.Errorf("%s: %w", path, err)
		}
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	c.LLM.APIKey = getenv("ANTHROPIC_API_KEY")
	c.Server.AdminKey = getenv("CITYSIM_ADMIN_KEY")
	c.Server.Port = envIntOrDefault(getenv, "CITYSIM_PORT", c.Server.Port)
	c.Server.DBPath = envOrDefault(getenv, "CITYSIM_DB", c.Server.DBPath)
	c.LogLevel = envOrDefault(getenv, "CITYSIM_LOG_LEVEL", c.LogLevel)
}

// Validate checks ranges that would otherwise break the simulation.
func (c Config) Validate() error {
	if c.GridSize < 2 {
		return fmt.Errorf("grid_size %d must be at least 2", c.GridSize)
	}
	if c.StartMoney < 0 || c.DecayRate < 0 {
		return fmt.Errorf("start_money and decay_rate must be non-negative")
	}
	if c.NewsLimit < 1 {
		return fmt.Errorf("news_limit %d must be positive", c.NewsLimit)
	}
	if c.TickIntervalMs <= 0 || c.FrameRateHz <= 0 {
		return fmt.Errorf("tick_interval_ms and frame_rate_hz must be positive")
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}

// Catalog builds the read-only building table.
func (c Config) Catalog() (*city.Catalog, error) {
	configs := make(map[city.BuildingType]city.BuildingConfig, len(c.Buildings))
	for name, bc := range c.Buildings {
		b, err := city.ParseBuildingType(name)
		if err != nil {
			return nil, fmt.Errorf("buildings: %w", err)
		}
		configs[b] = bc
	}
	return city.NewCatalog(configs, c.DemolitionCost)
}

// TickInterval is the economy tick period.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// FrameInterval is the agent frame period.
func (c Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FrameRateHz)
}

// GoalRetry is how often a missing goal is requested again.
func (c Config) GoalRetry() time.Duration {
	return time.Duration(c.GoalRetrySec) * time.Second
}

// NewsInterval is how often a headline is requested.
func (c Config) NewsInterval() time.Duration {
	return time.Duration(c.NewsIntervalSec) * time.Second
}

// LLMTimeout bounds a single generation call.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

// SlogLevel maps log_level to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(getenv func(string) string, key, defaultVal string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(getenv func(string) string, key string, defaultVal int) int {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
