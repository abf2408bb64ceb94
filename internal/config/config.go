package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Rcon holds connection parameters for the game's RCON port.
type Rcon struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
}

// Addr returns the host:port dial address.
func (r Rcon) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Bridge holds all configuration for the bridge binary.
type Bridge struct {
	Rcon Rcon `yaml:"rcon"`

	// Discord
	Token      string `yaml:"token"`
	ChannelID  int64  `yaml:"channel_id"`
	GuildID    int64  `yaml:"guild_id"`
	WebhookURL string `yaml:"webhook_url"`
	ServerName string `yaml:"server_name"`

	// Intervals are in seconds.
	TopicUpdateInterval int `yaml:"topic_update_interval"`
	StatsCheckInterval  int `yaml:"stats_check_interval"`
	MaxMessageLength    int `yaml:"max_message_length"`

	// Optional postgres discord_events source.
	DatabaseURL string `yaml:"database_url"`

	MetricsAddr string `yaml:"metrics_addr"`
	Debug       bool   `yaml:"debug"`
}

// Votifier holds all configuration for the vote gateway binary.
type Votifier struct {
	Rcon Rcon `yaml:"rcon"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	KeysPath string `yaml:"keys_path"`

	MetricsAddr string `yaml:"metrics_addr"`
	Debug       bool   `yaml:"debug"`
}

// Addr returns the gateway listen address.
func (v Votifier) Addr() string {
	return fmt.Sprintf("%s:%d", v.Host, v.Port)
}

// DefaultBridge returns Bridge config with documented defaults.
func DefaultBridge() Bridge {
	return Bridge{
		Rcon:                defaultRcon(),
		ServerName:          "Minecraft Server",
		TopicUpdateInterval: 60,
		StatsCheckInterval:  5,
		MaxMessageLength:    256,
	}
}

// DefaultVotifier returns Votifier config with documented defaults.
func DefaultVotifier() Votifier {
	return Votifier{
		Rcon:     defaultRcon(),
		Host:     "0.0.0.0",
		Port:     8192,
		KeysPath: "keys",
	}
}

func defaultRcon() Rcon {
	return Rcon{
		Host: "localhost",
		Port: 25575,
	}
}

// LoadBridge builds the bridge configuration: defaults, then the optional
// YAML file at path, then .env, then real environment variables.
// An empty path skips the file layer.
func LoadBridge(path string) (Bridge, error) {
	cfg := DefaultBridge()

	if err := loadFile(path, &cfg); err != nil {
		return cfg, err
	}
	loadDotenv()

	var err error
	cfg.Rcon = rconFromEnv(cfg.Rcon, &err)
	cfg.Token = envStr("DISCORD_TOKEN", cfg.Token)
	cfg.ChannelID = envInt64("DISCORD_CHANNEL_ID", cfg.ChannelID, &err)
	cfg.GuildID = envInt64("DISCORD_GUILD_ID", cfg.GuildID, &err)
	cfg.WebhookURL = envStr("DISCORD_WEBHOOK_URL", cfg.WebhookURL)
	cfg.ServerName = envStr("SERVER_NAME", cfg.ServerName)
	cfg.TopicUpdateInterval = envInt("TOPIC_UPDATE_INTERVAL", cfg.TopicUpdateInterval, &err)
	cfg.StatsCheckInterval = envInt("STATS_CHECK_INTERVAL", cfg.StatsCheckInterval, &err)
	cfg.MaxMessageLength = envInt("MAX_MESSAGE_LENGTH", cfg.MaxMessageLength, &err)
	cfg.DatabaseURL = envStr("DATABASE_URL", cfg.DatabaseURL)
	cfg.MetricsAddr = envStr("METRICS_ADDR", cfg.MetricsAddr)
	cfg.Debug = envBool("DEBUG", cfg.Debug)
	if err != nil {
		return cfg, err
	}

	if cfg.Rcon.Password == "" {
		return cfg, fmt.Errorf("RCON_PASSWORD is required")
	}
	if cfg.Token == "" {
		return cfg, fmt.Errorf("DISCORD_TOKEN is required")
	}
	if cfg.ChannelID == 0 {
		return cfg, fmt.Errorf("DISCORD_CHANNEL_ID is required")
	}
	return cfg, nil
}

// LoadVotifier builds the vote gateway configuration with the same
// layering as LoadBridge.
func LoadVotifier(path string) (Votifier, error) {
	cfg := DefaultVotifier()

	if err := loadFile(path, &cfg); err != nil {
		return cfg, err
	}
	loadDotenv()

	var err error
	cfg.Rcon = rconFromEnv(cfg.Rcon, &err)
	cfg.Host = envStr("VOTIFIER_HOST", cfg.Host)
	cfg.Port = envInt("VOTIFIER_PORT", cfg.Port, &err)
	cfg.KeysPath = envStr("KEYS_PATH", cfg.KeysPath)
	cfg.MetricsAddr = envStr("METRICS_ADDR", cfg.MetricsAddr)
	cfg.Debug = envBool("DEBUG", cfg.Debug)
	if err != nil {
		return cfg, err
	}

	if cfg.Rcon.Password == "" {
		return cfg, fmt.Errorf("RCON_PASSWORD is required")
	}
	return cfg, nil
}

func rconFromEnv(base Rcon, err *error) Rcon {
	base.Host = envStr("RCON_HOST", base.Host)
	base.Port = envInt("RCON_PORT", base.Port, err)
	base.Password = envStr("RCON_PASSWORD", base.Password)
	return base
}

// loadFile unmarshals the YAML file at path over cfg.
// A missing file is not an error.
func loadFile(path string, cfg any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// loadDotenv loads a .env file into the environment if present.
// Already-set variables keep their values.
func loadDotenv() {
	_ = godotenv.Load()
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int, outErr *error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		if *outErr == nil {
			*outErr = fmt.Errorf("%s must be an integer, got %q", key, v)
		}
		return def
	}
	return n
}

func envInt64(key string, def int64, outErr *error) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		if *outErr == nil {
			*outErr = fmt.Errorf("%s must be an integer, got %q", key, v)
		}
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
