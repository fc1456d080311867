// Package config loads pdfmerge.yml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wudi/pdfmerge/merge"
	"github.com/wudi/pdfmerge/security"
)

// Config holds settings loaded from pdfmerge.yml. Zero values mean defaults.
type Config struct {
	Output        string        `yaml:"output,omitempty"`
	FailurePolicy string        `yaml:"failurePolicy,omitempty"`
	Compress      bool          `yaml:"compress,omitempty"`
	Deterministic bool          `yaml:"deterministic,omitempty"`
	Verify        bool          `yaml:"verify,omitempty"`
	Strict        bool          `yaml:"strict,omitempty"`
	DownloadTTL   time.Duration `yaml:"downloadTTL,omitempty"`
	PreviewTTL    time.Duration `yaml:"previewTTL,omitempty"`
	Preview       Preview       `yaml:"preview,omitempty"`
	Inbox         string        `yaml:"inbox,omitempty"`
	LogLevel      string        `yaml:"logLevel,omitempty"`
	Limits        Limits        `yaml:"limits,omitempty"`
}

type Preview struct {
	Listen   string `yaml:"listen,omitempty"`
	MaxConns int    `yaml:"maxConns,omitempty"`
}

type Limits struct {
	MaxStreamLength     int64 `yaml:"maxStreamLength,omitempty"`
	MaxDecompressedSize int64 `yaml:"maxDecompressedSize,omitempty"`
	MaxPages            int   `yaml:"maxPages,omitempty"`
}

var fileNames = []string{"pdfmerge.yml", "pdfmerge.yaml"}

// Load reads pdfmerge.yml or pdfmerge.yaml from dir. A missing file yields a
// zero-value config, not an error.
func Load(dir string) (*Config, error) {
	for _, name := range fileNames {
		cfg, err := LoadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return &Config{}, nil
}

// LoadFile reads one config file. Unlike Load it reports a missing file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := merge.ParseFailurePolicy(c.FailurePolicy); err != nil {
		return err
	}
	if c.DownloadTTL < 0 || c.PreviewTTL < 0 {
		return errors.New("handle TTLs must not be negative")
	}
	if c.Preview.MaxConns < 0 {
		return errors.New("preview.maxConns must not be negative")
	}
	if c.Limits.MaxStreamLength < 0 || c.Limits.MaxDecompressedSize < 0 || c.Limits.MaxPages < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}

// Policy returns the parsed failure policy. Validate has already accepted it.
func (c *Config) Policy() merge.FailurePolicy {
	p, _ := merge.ParseFailurePolicy(c.FailurePolicy)
	return p
}

// SecurityLimits merges the configured limits over the parser defaults.
func (c *Config) SecurityLimits() security.Limits {
	return security.Limits{
		MaxStreamLength:     c.Limits.MaxStreamLength,
		MaxDecompressedSize: c.Limits.MaxDecompressedSize,
		MaxPages:            c.Limits.MaxPages,
	}.WithDefaults()
}
