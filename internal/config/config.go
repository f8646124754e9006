// Package config binds the "communes" section of the configuration.
package config

import (
	"fmt"

	"github.com/tigerroll/communes/internal/geocoding"
	"github.com/tigerroll/communes/pkg/batch/component/step/writer"
	coreconfig "github.com/tigerroll/communes/pkg/batch/core/config"
	configbinder "github.com/tigerroll/communes/pkg/batch/support/util/configbinder"
)

// StepConfig holds the chunk size and fault tolerance of one chunk-oriented step.
type StepConfig struct {
	ChunkSize int                        `yaml:"chunk_size"`
	PageSize  int                        `yaml:"page_size"`
	Retry     coreconfig.ItemRetryConfig `yaml:"retry"`
	Skip      coreconfig.ItemSkipConfig  `yaml:"skip"`
}

// ImportConfig describes the communes file and the import step.
type ImportConfig struct {
	// Storage names a connection of surfin.storage to download the file from. The file is read
	// from the local file system when empty.
	Storage     string     `yaml:"storage"`
	Bucket      string     `yaml:"bucket"`
	InputFile   string     `yaml:"input_file"`
	Delimiter   string     `yaml:"delimiter"`
	LinesToSkip int        `yaml:"lines_to_skip"`
	Step        StepConfig `yaml:"step"`
}

// EnrichmentConfig describes the step filling in missing coordinates.
type EnrichmentConfig struct {
	Step     StepConfig                `yaml:"step"`
	Geocoder geocoding.NominatimConfig `yaml:"geocoder"`
}

// ExportConfig describes the report and the optional Parquet snapshot.
type ExportConfig struct {
	Storage string     `yaml:"storage"`
	Bucket  string     `yaml:"bucket"`
	Report  string     `yaml:"report"`
	Step    StepConfig `yaml:"step"`
	// Snapshot adds a Parquet export of the communes when its object name is set.
	Snapshot writer.ParquetConfig `yaml:"snapshot"`
}

// AppConfig is the typed "communes" section.
type AppConfig struct {
	// Database names the connection of surfin.database holding the commune table.
	Database   string           `yaml:"database"`
	Import     ImportConfig     `yaml:"import"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Export     ExportConfig     `yaml:"export"`
}

// Default returns the communes settings used when the section is empty.
func Default() AppConfig {
	return AppConfig{
		Database: "workload",
		Import: ImportConfig{
			InputFile:   "resources/laposte_hexasmal.csv",
			Delimiter:   ";",
			LinesToSkip: 1,
			Step: StepConfig{
				ChunkSize: 10,
				Retry:     coreconfig.ItemRetryConfig{MaxAttempts: 1},
				Skip: coreconfig.ItemSkipConfig{
					SkipLimit:           -1,
					SkippableExceptions: []string{"ValidationError", "ParseError"},
				},
			},
		},
		Enrichment: EnrichmentConfig{
			Step: StepConfig{
				ChunkSize: 10,
				PageSize:  10,
				Retry: coreconfig.ItemRetryConfig{
					MaxAttempts:         5,
					InitialInterval:     2000,
					RetryableExceptions: []string{"TransientNetworkError"},
				},
				Skip: coreconfig.ItemSkipConfig{
					SkipLimit:           -1,
					SkippableExceptions: []string{"TransientNetworkError"},
				},
			},
			Geocoder: geocoding.NominatimConfig{
				BaseURL:   geocoding.DefaultBaseURL,
				UserAgent: geocoding.DefaultUserAgent,
				Timeout:   geocoding.DefaultTimeout,
			},
		},
		Export: ExportConfig{
			Storage: "reports",
			Report:  "communes.txt",
			Step: StepConfig{
				ChunkSize: 10,
				PageSize:  40,
				Retry: coreconfig.ItemRetryConfig{
					MaxAttempts:         3,
					RetryableExceptions: []string{"CommitError", "driver.ErrBadConn"},
				},
				Skip: coreconfig.ItemSkipConfig{
					SkipLimit:           10,
					SkippableExceptions: []string{"ParseError"},
				},
			},
		},
	}
}

// Load binds cfg.App over the defaults and validates the configured exception names.
// The engine-wide chunk size applies to steps without their own.
func Load(cfg *coreconfig.Config) (AppConfig, error) {
	app := Default()
	if err := configbinder.BindProperties(cfg.App, &app); err != nil {
		return app, fmt.Errorf("invalid communes configuration: %w", err)
	}

	steps := map[string]*StepConfig{
		"communes.import.step":     &app.Import.Step,
		"communes.enrichment.step": &app.Enrichment.Step,
		"communes.export.step":     &app.Export.Step,
	}
	for where, step := range steps {
		if step.ChunkSize < 1 {
			step.ChunkSize = cfg.Surfin.Batch.ChunkSize
		}
		if err := coreconfig.ValidateExceptionNames(step.Retry.RetryableExceptions, where+".retry"); err != nil {
			return app, err
		}
		if err := coreconfig.ValidateExceptionNames(step.Skip.SkippableExceptions, where+".skip"); err != nil {
			return app, err
		}
	}

	if app.Import.InputFile == "" {
		return app, fmt.Errorf("communes.import.input_file is required")
	}
	if len([]rune(app.Import.Delimiter)) != 1 {
		return app, fmt.Errorf("communes.import.delimiter must be a single character, got %q", app.Import.Delimiter)
	}
	return app, nil
}

// DelimiterRune returns the delimiter as a rune.
func (c ImportConfig) DelimiterRune() rune {
	return []rune(c.Delimiter)[0]
}
