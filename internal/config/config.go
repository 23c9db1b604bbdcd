package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Session   SessionConfig   `mapstructure:"session"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Host      HostConfig      `mapstructure:"host"`
	Refiner   RefinerConfig   `mapstructure:"refiner"`
	Delays    DelayConfig     `mapstructure:"delays"`
	MCP       MCPConfig       `mapstructure:"mcp"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type StorageConfig struct {
	Type           string        `mapstructure:"type"`
	DataDir        string        `mapstructure:"data_dir"`
	CacheSize      int           `mapstructure:"cache_size"`
	BackupInterval time.Duration `mapstructure:"backup_interval"`
	SyncInterval   time.Duration `mapstructure:"sync_interval"`
}

// GeneratorConfig locates the persisted generator settings.
type GeneratorConfig struct {
	SettingsFile string        `mapstructure:"settings_file"`
	SaveDebounce time.Duration `mapstructure:"save_debounce"`
	// Executor is "local" (built-in /imagine runner) or "host" (post to Host.CommandEndpoint).
	Executor string `mapstructure:"executor"`
	// RestoreParallelism bounds concurrent message restores on chat switch.
	RestoreParallelism int `mapstructure:"restore_parallelism"`
}

type ProviderConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Mock              bool          `mapstructure:"mock"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	DebugRequest      bool          `mapstructure:"debug_request"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout"`
	// SettleProbe polls the Stage 1 URL until readable instead of sleeping a fixed delay.
	SettleProbe bool `mapstructure:"settle_probe"`
}

type HostConfig struct {
	CommandEndpoint string        `mapstructure:"command_endpoint"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type RefinerConfig struct {
	// Provider is "", "ark", "qwen" or "openai". Empty disables refinement.
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// MCPConfig starts an external MCP server over stdio whose tools join the tool registry.
type MCPConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Env     []string      `mapstructure:"env"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DelayConfig struct {
	Settle        time.Duration `mapstructure:"settle"`
	Event         time.Duration `mapstructure:"event"`
	Restore       time.Duration `mapstructure:"restore"`
	ChatChanged   time.Duration `mapstructure:"chat_changed"`
	FailureRevert time.Duration `mapstructure:"failure_revert"`
	StateTTL      time.Duration `mapstructure:"state_ttl"`
}

var cfg *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.max_header_bytes", 1<<20)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept", "Authorization"})
	v.SetDefault("cors.max_age", 43200)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_minute", 120)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.cleanup_interval", time.Hour)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.cache_size", 100)
	v.SetDefault("storage.backup_interval", time.Hour)

	v.SetDefault("generator.settings_file", "./data/settings.json")
	v.SetDefault("generator.save_debounce", time.Second)
	v.SetDefault("generator.executor", "local")
	v.SetDefault("generator.restore_parallelism", 4)

	v.SetDefault("provider.timeout", 5*time.Minute)
	v.SetDefault("provider.mock", true)
	v.SetDefault("provider.requests_per_second", 2)
	v.SetDefault("provider.poll_interval", 3*time.Second)
	v.SetDefault("provider.poll_timeout", 5*time.Minute)

	v.SetDefault("host.timeout", 5*time.Minute)

	v.SetDefault("refiner.temperature", 0.7)
	v.SetDefault("refiner.timeout", time.Minute)

	v.SetDefault("mcp.enabled", false)
	v.SetDefault("mcp.timeout", 30*time.Second)

	v.SetDefault("delays.settle", 2*time.Second)
	v.SetDefault("delays.event", 100*time.Millisecond)
	v.SetDefault("delays.restore", 100*time.Millisecond)
	v.SetDefault("delays.chat_changed", 500*time.Millisecond)
	v.SetDefault("delays.failure_revert", 3*time.Second)
	v.SetDefault("delays.state_ttl", 24*time.Hour)
}

// Load reads configPath. A missing file is not an error; defaults and MEDIA_*
// environment variables still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("MEDIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, err
	}

	// 配置文件优先，如果配置文件中没有设置，则使用环境变量
	if c.Refiner.APIKey == "" {
		switch c.Refiner.Provider {
		case "ark":
			c.Refiner.APIKey = os.Getenv("ARK_API_KEY")
		case "qwen":
			c.Refiner.APIKey = os.Getenv("DASHSCOPE_API_KEY")
		case "openai":
			c.Refiner.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	cfg = c
	return c, nil
}

func Get() *Config {
	return cfg
}
