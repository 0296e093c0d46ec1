// Package config loads pipeline settings from a YAML file, an optional .env
// file and GICA_* environment variables. Command line flags are applied on top
// by the binaries.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the pipeline configuration loaded from YAML
type Config struct {
	// Workers is the number of concurrent per-volume warps and compute workers
	Workers int `yaml:"workers"`

	// LogLevel is a logrus level name
	LogLevel string `yaml:"logLevel"`

	// Color enables severity colored console output
	Color bool `yaml:"color"`

	Register struct {
		Template            string `yaml:"template"`
		OutputDir           string `yaml:"outputDir"` // registered_<input dir> when empty
		ANTsBinDir          string `yaml:"antsBinDir"`
		TempDir             string `yaml:"tempDir"`
		UseRegisteredAffine bool   `yaml:"useRegisteredAffine"`
		FailureLog          string `yaml:"failureLog"`
	} `yaml:"register"`

	Mask struct {
		GroupICADir string `yaml:"groupICADir"`
		OutMaskDir  string `yaml:"outMaskDir"`
		MaskFile    string `yaml:"maskFile"`
	} `yaml:"mask"`

	Extract struct {
		GroupICADir  string `yaml:"groupICADir"`
		OutDir       string `yaml:"outDir"`
		MaskFile     string `yaml:"maskFile"`
		RSDataDir    string `yaml:"rsDataDir"`
		RSOutputFile string `yaml:"rsOutputFile"`
		StartIdx     int    `yaml:"startIdx"`
		Standardize  string `yaml:"standardize"` // voxel or timepoint
		Trim         []int  `yaml:"trim"`
		Netmat       bool   `yaml:"netmat"`
		CSV          bool   `yaml:"csv"`
		FailureLog   string `yaml:"failureLog"`
	} `yaml:"extract"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Workers = runtime.NumCPU()
	cfg.LogLevel = "info"
	cfg.Color = true

	cfg.Register.FailureLog = "failed_registration.txt"

	cfg.Mask.GroupICADir = "registered_input"
	cfg.Mask.OutMaskDir = "metadata"
	cfg.Mask.MaskFile = "metadata/mask_ga_40.nii.gz"

	cfg.Extract.GroupICADir = "registered_input"
	cfg.Extract.OutDir = "out-features"
	cfg.Extract.MaskFile = "metadata/mask_IC.nii.gz"
	cfg.Extract.RSDataDir = "rs_data"
	cfg.Extract.RSOutputFile = "features_42_comps"
	cfg.Extract.Standardize = "voxel"
	cfg.Extract.FailureLog = "corrupted_files.txt"

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Load reads the YAML file, then the .env file at envPath (skipped when
// missing), then applies the environment. Later sources win.
func Load(configPath, envPath string) (*Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading env file: %w", err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with GICA_* variables. DATA and RESULT are honoured
// for the resting state data dir and the feature output dir when the GICA_
// names are unset.
func ApplyEnv(cfg *Config) error {
	str := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := os.LookupEnv(key); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	num := func(dst *int, key string) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	flag := func(dst *bool, key string) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	if err := num(&cfg.Workers, "GICA_WORKERS"); err != nil {
		return err
	}
	str(&cfg.LogLevel, "GICA_LOG_LEVEL")
	if err := flag(&cfg.Color, "GICA_COLOR"); err != nil {
		return err
	}

	str(&cfg.Register.Template, "GICA_TEMPLATE")
	str(&cfg.Register.ANTsBinDir, "GICA_ANTS_PATH", "ANTSPATH")
	str(&cfg.Register.TempDir, "GICA_TMPDIR")

	str(&cfg.Mask.GroupICADir, "GICA_GROUP_ICA_DIR")
	str(&cfg.Extract.GroupICADir, "GICA_GROUP_ICA_DIR")
	str(&cfg.Mask.OutMaskDir, "GICA_OUT_MASK_DIR")

	str(&cfg.Extract.MaskFile, "GICA_MASK_FILE")
	str(&cfg.Extract.RSDataDir, "GICA_RS_DATA_DIR", "DATA")
	str(&cfg.Extract.OutDir, "GICA_OUT_DIR", "RESULT")
	str(&cfg.Extract.RSOutputFile, "GICA_RS_OUTPUT_FILE")
	str(&cfg.Extract.Standardize, "GICA_STANDARDIZE")
	if err := num(&cfg.Extract.StartIdx, "GICA_START_IDX"); err != nil {
		return err
	}

	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	return nil
}
