// config.go - Service configuration management
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type ConfigPaths struct {
	Root     string `toml:"root"`     // shared library root holding the two table files
	Libs     string `toml:"libs"`     // canonical library layout under root
	Incoming string `toml:"incoming"` // uploaded archives
	Work     string `toml:"work"`     // per-job extracted trees
	Backup   string `toml:"backup"`   // table backup snapshots
	Logs     string `toml:"logs"`
	Data     string `toml:"data"` // job store and database files
}

type ConfigLimits struct {
	MaxUploadBytes  int64 `toml:"maxUploadBytes"`
	MaxExtractBytes int64 `toml:"maxExtractBytes"`
	MaxExtractFiles int   `toml:"maxExtractFiles"`
	MaxFileBytes    int64 `toml:"maxFileBytes"`
}

// ConfigScoring fixes every scoring magnitude; the advisory backend never
// controls these.
type ConfigScoring struct {
	HeuristicWeight    float64 `toml:"heuristicWeight"`
	AdvisoryWeight     float64 `toml:"advisoryWeight"`
	ConsistencyBonus   float64 `toml:"consistencyBonus"`
	ConsistencyPenalty float64 `toml:"consistencyPenalty"`
	FeedbackStep       float64 `toml:"feedbackStep"`
	FeedbackCap        float64 `toml:"feedbackCap"`
}

type ConfigAdvisory struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"baseUrl"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeoutSeconds"`
	MaxRetries     int    `toml:"maxRetries"`
	Workers        int    `toml:"workers"`
}

type ConfigApply struct {
	// RenameSelections renames placed files to the component key for
	// consistency across kinds.
	RenameSelections bool   `toml:"renameSelections"`
	LibraryPrefix    string `toml:"libraryPrefix"`
	Actor            string `toml:"actor"`
}

// AppConfig is built once at startup and passed by value.
type AppConfig struct {
	Paths    ConfigPaths    `toml:"paths"`
	Limits   ConfigLimits   `toml:"limits"`
	Scoring  ConfigScoring  `toml:"scoring"`
	Advisory ConfigAdvisory `toml:"advisory"`
	Apply    ConfigApply    `toml:"apply"`
}

var DefaultConfigPaths = ConfigPaths{
	Root:     "./kicad",
	Libs:     "./kicad/libs",
	Incoming: "./kicad/incoming",
	Work:     "./kicad/work",
	Backup:   "./kicad/backup",
	Logs:     "./kicad/logs",
	Data:     "./kicad/data",
}

var DefaultConfigLimits = ConfigLimits{
	MaxUploadBytes:  256 * 1024 * 1024,      // 256MB per upload
	MaxExtractBytes: 2 * 1024 * 1024 * 1024, // 2GB uncompressed
	MaxExtractFiles: 20000,
	MaxFileBytes:    512 * 1024 * 1024, // 512MB per extracted file
}

var DefaultConfigScoring = ConfigScoring{
	HeuristicWeight:    0.6,
	AdvisoryWeight:     0.3,
	ConsistencyBonus:   0.10,
	ConsistencyPenalty: 0.05,
	FeedbackStep:       0.02,
	FeedbackCap:        0.2,
}

var DefaultConfigAdvisory = ConfigAdvisory{
	Enabled:        false,
	BaseURL:        "http://localhost:11434",
	Model:          "",
	TimeoutSeconds: 8,
	MaxRetries:     2,
	Workers:        4,
}

var DefaultConfigApply = ConfigApply{
	RenameSelections: false,
	LibraryPrefix:    "KiComport",
	Actor:            "system",
}

var DefaultAppConfig = AppConfig{
	Paths:    DefaultConfigPaths,
	Limits:   DefaultConfigLimits,
	Scoring:  DefaultConfigScoring,
	Advisory: DefaultConfigAdvisory,
	Apply:    DefaultConfigApply,
}

// LoadAppConfig reads a TOML configuration file over the defaults. A missing
// file is not an error; the defaults apply unchanged.
func LoadAppConfig(configPath string) (AppConfig, error) {
	cfg := DefaultAppConfig

	if configPath == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validate(cfg AppConfig) error {
	if cfg.Limits.MaxExtractFiles <= 0 {
		return fmt.Errorf("invalid limits.maxExtractFiles: %d", cfg.Limits.MaxExtractFiles)
	}
	if cfg.Limits.MaxExtractBytes <= 0 || cfg.Limits.MaxFileBytes <= 0 {
		return fmt.Errorf("extraction byte limits must be positive")
	}
	if cfg.Scoring.HeuristicWeight <= 0 {
		return fmt.Errorf("invalid scoring.heuristicWeight: %f", cfg.Scoring.HeuristicWeight)
	}
	if cfg.Advisory.Enabled && cfg.Advisory.Model == "" {
		return fmt.Errorf("advisory enabled without a model")
	}
	return nil
}
