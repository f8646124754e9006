// Package config holds the engine configuration tree and its loader.
package config

// EmbeddedConfig holds the content of the application.yaml compiled into the binary.
type EmbeddedConfig []byte

// ItemRetryConfig holds item-level retry defaults.
type ItemRetryConfig struct {
	MaxAttempts         int      `yaml:"max_attempts"`         // attempts per item, including the first one
	InitialInterval     int      `yaml:"initial_interval"`     // fixed backoff in milliseconds
	RetryableExceptions []string `yaml:"retryable_exceptions"` // registered error kind names
}

// ItemSkipConfig holds item-level skip defaults.
type ItemSkipConfig struct {
	SkipLimit           int      `yaml:"skip_limit"`           // -1 unlimited, 0 none, n at most n
	SkippableExceptions []string `yaml:"skippable_exceptions"` // registered error kind names
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedParameterKeys lists JobParameters keys whose values are masked in logs and in the
	// job-run table.
	MaskedParameterKeys []string `yaml:"masked_parameter_keys"`
}

// BatchConfig holds settings of the batch engine.
type BatchConfig struct {
	// JobName is the job launched by the binary. SURFIN_BATCH_JOB_NAME overrides it.
	JobName string `yaml:"job_name"`
	// ChunkSize is the default chunk size for chunk-oriented steps.
	ChunkSize int             `yaml:"chunk_size"`
	ItemRetry ItemRetryConfig `yaml:"item_retry"`
	ItemSkip  ItemSkipConfig  `yaml:"item_skip"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level ("DEBUG", "INFO", "WARN", "ERROR").
	Level string `yaml:"level"`
	// SQLLevel is the level gorm statements are logged at ("silent", "error", "warn", "info").
	SQLLevel string `yaml:"sql_level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// InfrastructureConfig names the connections used by the engine itself.
type InfrastructureConfig struct {
	// JobRepositoryDBRef is the surfin.database connection holding the batch_job_run table.
	JobRepositoryDBRef string `yaml:"job_repository_db_ref"`
}

// TelemetryConfig selects the metrics and tracing backends.
type TelemetryConfig struct {
	// ServiceName is reported as the OpenTelemetry resource service.name.
	ServiceName string `yaml:"service_name"`
	// Endpoint is the OTLP collector address. Tracing and OTel metrics are disabled when empty.
	Endpoint string `yaml:"endpoint"`
	// Protocol is "grpc" or "http".
	Protocol string `yaml:"protocol"`
	Insecure bool   `yaml:"insecure"`
	// PushgatewayURL enables pushing the Prometheus registry at the end of a job.
	PushgatewayURL string `yaml:"pushgateway_url"`
	// MetricsAsyncBufferSize is the queue size of the asynchronous metric recorder (default 100).
	MetricsAsyncBufferSize int `yaml:"metrics_async_buffer_size"`
}

// SurfinConfig holds everything under the "surfin" top-level key.
type SurfinConfig struct {
	Batch     BatchConfig     `yaml:"batch"`
	System    SystemConfig    `yaml:"system"`
	Security  SecurityConfig  `yaml:"security"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	// AdaptorConfigs holds the named database connections. Each entry is decoded by the
	// database adaptor.
	AdaptorConfigs map[string]interface{} `yaml:"database"`
	// StorageConfigs holds the named storage connections (local directory or GCS bucket).
	StorageConfigs map[string]interface{} `yaml:"storage"`
}

// Config is the root of the configuration.
type Config struct {
	Surfin SurfinConfig `yaml:"surfin"`
	// App is the raw application section. Applications bind it to their own typed struct.
	App map[string]interface{} `yaml:"communes"`
	// EmbeddedConfig is the raw YAML the configuration was loaded from.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Surfin: SurfinConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", SQLLevel: "warn"},
			},
			Batch: BatchConfig{
				ChunkSize: 10,
				ItemRetry: ItemRetryConfig{
					MaxAttempts:     1,
					InitialInterval: 0,
				},
				ItemSkip: ItemSkipConfig{
					SkipLimit: 0,
				},
			},
			Security: SecurityConfig{
				MaskedParameterKeys: []string{"password", "api_key", "secret"},
			},
			Telemetry: TelemetryConfig{
				ServiceName:            "communes-batch",
				Protocol:               "grpc",
				MetricsAsyncBufferSize: 100,
			},
			Infrastructure: InfrastructureConfig{
				JobRepositoryDBRef: "metadata",
			},
			AdaptorConfigs: map[string]interface{}{},
			StorageConfigs: map[string]interface{}{},
		},
		App: map[string]interface{}{},
	}
}

// MaskParameters returns a copy of params in which the values of the configured masked keys are
// replaced by "********".
func (c *Config) MaskParameters(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	for _, key := range c.Surfin.Security.MaskedParameterKeys {
		if _, ok := out[key]; ok {
			out[key] = "********"
		}
	}
	return out
}
