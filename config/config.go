package config

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Backend     string // sqlite or postgres
	DBPath      string
	PostgresURL string
	LogLevel    string
	LogPath     string
	Stats       StatsConfig
	Sources     map[string]*SourceConfig
}

type StatsConfig struct {
	Cron     string
	Interval time.Duration
}

// SourceConfig describes one scrape source known to the bot. The registry
// lives in config/sources/*.yaml; ingestion rejects sources that are not
// listed when any file is present.
type SourceConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	BaseURL     string `yaml:"base_url"`
	RateLimitMS int    `yaml:"rate_limit_ms"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Backend:     getEnv("BACKEND", "sqlite"),
		DBPath:      getEnv("DB_PATH", "dataBD/real_estate_data.db"),
		PostgresURL: os.Getenv("POSTGRES_URL"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPath:     getEnv("LOG_PATH", "databd.log"),
		Stats: StatsConfig{
			Cron: os.Getenv("STATS_CRON"),
		},
		Sources: make(map[string]*SourceConfig),
	}

	if interval := os.Getenv("STATS_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Stats.Interval = d
		}
	}

	if err := cfg.loadSourceConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSourceConfigs() error {
	configDir := "config/sources"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var source SourceConfig
		if err := yaml.Unmarshal(data, &source); err != nil {
			return err
		}

		c.Sources[source.ID] = &source
	}

	return nil
}

// SourceIDs returns the registered source ids in stable order.
func (c *Config) SourceIDs() []string {
	ids := make([]string, 0, len(c.Sources))
	for id := range c.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
