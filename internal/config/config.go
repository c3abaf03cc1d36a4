package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings for a warpgraph process.
type Config struct {
	// Graph identifies which graph this process operates on (the <graph>
	// segment of refs/<graph>/writers/<writer_id>).
	Graph GraphConfig `yaml:"graph"`

	// Store configures the content-addressed object store backend.
	Store StoreConfig `yaml:"store"`

	// Index configures the materialized bitmap view's reader caches and
	// verification behavior.
	Index IndexConfig `yaml:"index"`

	// Writer identifies this process as a patch author.
	Writer WriterConfig `yaml:"writer"`

	// Logging mirrors internal/logging.Config.
	Logging LoggingConfig `yaml:"logging"`
}

type GraphConfig struct {
	Name string `yaml:"name"`
}

type StoreConfig struct {
	// Path is the bbolt database file backing internal/objectstore.
	Path string `yaml:"path"`
}

type IndexConfig struct {
	// ShardCacheSize bounds the per-shard-kind LRU in LogicalIndexReader.
	ShardCacheSize int `yaml:"shard_cache_size"`
	// VerifySampleRate is the default fraction of alive nodes
	// MaterializedViewService.VerifyIndex samples when not overridden.
	VerifySampleRate float64 `yaml:"verify_sample_rate"`
	// DeleteWithDataPolicy is the default patchbuilder.DeleteWithDataPolicy
	// ("reject", "cascade", or "warn").
	DeleteWithDataPolicy string `yaml:"delete_with_data_policy"`
}

type WriterConfig struct {
	ID string `yaml:"id"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	JSONFormat bool   `yaml:"json_format"`
	AddSource  bool   `yaml:"add_source"`
}

// Default returns default configuration, with store.path chosen for the
// detected deployment mode (internal/config/mode.go).
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Graph: GraphConfig{Name: "default"},
		Store: StoreConfig{
			Path: RecommendedStorePath(DetectMode()),
		},
		Index: IndexConfig{
			ShardCacheSize:       64,
			VerifySampleRate:     0.01,
			DeleteWithDataPolicy: "reject",
		},
		Writer: WriterConfig{},
		Logging: LoggingConfig{
			Level:      "info",
			OutputFile: filepath.Join(homeDir, ".warpgraph", "logs"),
		},
	}
}

// Load loads configuration from file and environment, in that ascending
// order of precedence (file < env). .env files are loaded into the process
// environment first, but godotenv never overrides a variable that is
// already set, so a .env value only fills in a variable the real
// environment leaves unset.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("graph", cfg.Graph)
	v.SetDefault("store", cfg.Store)
	v.SetDefault("index", cfg.Index)
	v.SetDefault("writer", cfg.Writer)
	v.SetDefault("logging", cfg.Logging)

	v.SetEnvPrefix("WARPGRAPH")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".warpgraph")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".warpgraph"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence.
func loadEnvFiles() {
	envFiles := []string{".env.local", ".env", ".env.example"}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			if err := godotenv.Load(file); err == nil {
				continue
			}
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".warpgraph", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if name := os.Getenv("WARPGRAPH_GRAPH_NAME"); name != "" {
		cfg.Graph.Name = name
	}

	if path := os.Getenv("WARPGRAPH_STORE_PATH"); path != "" {
		cfg.Store.Path = expandPath(path)
	}

	if id := os.Getenv("WARPGRAPH_WRITER_ID"); id != "" {
		cfg.Writer.ID = id
	}

	if size := os.Getenv("WARPGRAPH_INDEX_SHARD_CACHE_SIZE"); size != "" {
		if sizeInt, err := strconv.Atoi(size); err == nil {
			cfg.Index.ShardCacheSize = sizeInt
		}
	}
	if rate := os.Getenv("WARPGRAPH_INDEX_VERIFY_SAMPLE_RATE"); rate != "" {
		if f, err := strconv.ParseFloat(rate, 64); err == nil {
			cfg.Index.VerifySampleRate = f
		}
	}
	if policy := os.Getenv("WARPGRAPH_INDEX_DELETE_WITH_DATA_POLICY"); policy != "" {
		cfg.Index.DeleteWithDataPolicy = policy
	}

	if level := os.Getenv("WARPGRAPH_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if file := os.Getenv("WARPGRAPH_LOG_FILE"); file != "" {
		cfg.Logging.OutputFile = expandPath(file)
	}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("graph", c.Graph)
	v.Set("store", c.Store)
	v.Set("index", c.Index)
	v.Set("writer", c.Writer)
	v.Set("logging", c.Logging)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
