// Package config holds trackalign settings read from a YAML or JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/planbiir/trackalign/internal/align"
	"github.com/planbiir/trackalign/internal/anomaly"
	"github.com/planbiir/trackalign/internal/crs"
	"github.com/planbiir/trackalign/internal/geom"
	"github.com/planbiir/trackalign/internal/simplify"
	"github.com/planbiir/trackalign/internal/track"
)

// ZoneFromLocation makes naive timestamps resolve in the zone at each
// point's position.
const ZoneFromLocation = "location"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config holds every tunable of the tool.
type Config struct {
	TimestampField    string  `yaml:"timestamp_field" json:"timestamp_field"`
	GroupField        string  `yaml:"group_field" json:"group_field"`
	DomainRange       float64 `yaml:"domain_range" json:"domain_range"`
	BufferSegments    int     `yaml:"buffer_segments" json:"buffer_segments"`
	SimplifyTolerance float64 `yaml:"simplify_tolerance" json:"simplify_tolerance"`
	AnomalyTolerance  float64 `yaml:"anomaly_tolerance" json:"anomaly_tolerance"`
	Interpolation     string  `yaml:"interpolation" json:"interpolation"`
	CRS               string  `yaml:"crs" json:"crs"`
	NaiveTimezone     string  `yaml:"naive_timezone" json:"naive_timezone"`
	Database          string  `yaml:"database" json:"database"`
	LogLevel          string  `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() Config {
	return Config{
		TimestampField:    track.DefaultTimestampField,
		GroupField:        track.DefaultGroupField,
		DomainRange:       0, // nothing is aligned until a range is set
		BufferSegments:    geom.DefaultSegments,
		SimplifyTolerance: simplify.DefaultTolerance,
		AnomalyTolerance:  anomaly.DefaultTolerance,
		Interpolation:     align.ModeFirstSegment.String(),
		CRS:               string(crs.WGS84),
		NaiveTimezone:     "UTC",
		Database:          "trackalign.db",
		LogLevel:          "info",
	}
}

// Load reads path over the defaults and validates the result. Fields
// missing from the file keep their default value.
func Load(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".yaml" && ext != ".yml" && ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .yaml, .yml or .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values for consistency.
func (c Config) Validate() error {
	if c.TimestampField == "" {
		return fmt.Errorf("timestamp_field must not be empty")
	}
	if c.GroupField == "" {
		return fmt.Errorf("group_field must not be empty")
	}
	if c.DomainRange < 0 {
		return fmt.Errorf("domain_range must be >= 0, got %v", c.DomainRange)
	}
	if c.BufferSegments < 1 {
		return fmt.Errorf("buffer_segments must be >= 1, got %d", c.BufferSegments)
	}
	if c.SimplifyTolerance < simplify.MinTolerance {
		return fmt.Errorf("simplify_tolerance must be >= %v, got %v", simplify.MinTolerance, c.SimplifyTolerance)
	}
	if c.AnomalyTolerance < 0 {
		return fmt.Errorf("anomaly_tolerance must be >= 0, got %v", c.AnomalyTolerance)
	}
	if _, err := align.ParseMode(c.Interpolation); err != nil {
		return err
	}
	if _, err := crs.Parse(c.CRS); err != nil {
		return err
	}
	if c.NaiveTimezone != ZoneFromLocation {
		if _, err := track.NewFixedZone(c.NaiveTimezone); err != nil {
			return err
		}
	}
	return nil
}

// Zone returns the resolver for naive timestamps.
func (c Config) Zone() (track.ZoneResolver, error) {
	if c.NaiveTimezone == ZoneFromLocation {
		return track.NewPointZone()
	}
	return track.NewFixedZone(c.NaiveTimezone)
}

// Schema returns the typed field accessors for this configuration.
func (c Config) Schema() (track.Schema, error) {
	zone, err := c.Zone()
	if err != nil {
		return track.Schema{}, err
	}
	return track.NewSchema(c.TimestampField, c.GroupField, zone), nil
}

// AlignOptions returns aligner options for this configuration.
func (c Config) AlignOptions(schema track.Schema) (align.Options, error) {
	mode, err := align.ParseMode(c.Interpolation)
	if err != nil {
		return align.Options{}, err
	}
	opts := align.DefaultOptions()
	opts.Timestamp = schema.Timestamp
	opts.DomainRange = c.DomainRange
	opts.Segments = c.BufferSegments
	opts.Mode = mode
	return opts, nil
}
