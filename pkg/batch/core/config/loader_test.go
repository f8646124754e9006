package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
surfin:
  batch:
    job_name: importCommunes
    chunk_size: 100
    item_skip:
      skip_limit: -1
  system:
    logging:
      level: DEBUG
  database:
    metadata:
      type: sqlite
      database: ${COMMUNES_TEST_DB_FILE}
  storage:
    reports:
      type: local
      base_dir: /tmp/reports
communes:
  import:
    input_file: communes.csv
`

func TestLoadConfig_LayersDefaultsYAMLAndEnv(t *testing.T) {
	t.Setenv("COMMUNES_TEST_DB_FILE", "/tmp/communes.db")
	t.Setenv("SURFIN_BATCH_JOB_NAME", "exportCommunes")
	t.Setenv("SURFIN_DATABASE_METADATA_MAX_OPEN_CONNS", "4")

	cfg, err := LoadConfig("testdata/does-not-exist.env", EmbeddedConfig(testYAML))
	require.NoError(t, err)

	assert.Equal(t, "exportCommunes", cfg.Surfin.Batch.JobName, "env wins over yaml")
	assert.Equal(t, 100, cfg.Surfin.Batch.ChunkSize)
	assert.Equal(t, -1, cfg.Surfin.Batch.ItemSkip.SkipLimit)
	assert.Equal(t, 1, cfg.Surfin.Batch.ItemRetry.MaxAttempts, "default kept")
	assert.Equal(t, "DEBUG", cfg.Surfin.System.Logging.Level)
	assert.Equal(t, "UTC", cfg.Surfin.System.Timezone)

	db, ok := cfg.Surfin.AdaptorConfigs["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "sqlite", db["type"])
	assert.Equal(t, "/tmp/communes.db", db["database"])
	assert.Equal(t, "4", db["max_open_conns"])

	assert.Contains(t, cfg.Surfin.StorageConfigs, "reports")
	assert.Contains(t, cfg.App, "import")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig("", EmbeddedConfig("surfin: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal embedded config")
}

func TestValidateExceptionNames(t *testing.T) {
	assert.NoError(t, ValidateExceptionNames([]string{"CommitError", "SkipLimitExceeded"}, "ItemSkip"))

	err := ValidateExceptionNames([]string{"CommitError", "NoSuchError"}, "ItemRetry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'NoSuchError'")
}

func TestLoadStructFromEnv(t *testing.T) {
	type section struct {
		InputFile string   `yaml:"input_file"`
		ChunkSize int      `yaml:"chunk_size"`
		Enabled   bool     `yaml:"enabled"`
		Kinds     []string `yaml:"kinds"`
	}
	t.Setenv("APP_INPUT_FILE", "other.csv")
	t.Setenv("APP_CHUNK_SIZE", "25")
	t.Setenv("APP_ENABLED", "true")
	t.Setenv("APP_KINDS", "ParseError, ValidationError")

	s := section{InputFile: "communes.csv", ChunkSize: 10}
	require.NoError(t, LoadStructFromEnv(&s, "APP_"))
	assert.Equal(t, section{InputFile: "other.csv", ChunkSize: 25, Enabled: true, Kinds: []string{"ParseError", "ValidationError"}}, s)

	t.Setenv("APP_CHUNK_SIZE", "many")
	assert.Error(t, LoadStructFromEnv(&s, "APP_"))
	assert.Error(t, LoadStructFromEnv(s, "APP_"))
}

func TestMaskParameters(t *testing.T) {
	cfg := NewConfig()
	masked := cfg.MaskParameters(map[string]interface{}{"password": "x", "file": "a.csv"})
	assert.Equal(t, "********", masked["password"])
	assert.Equal(t, "a.csv", masked["file"])
}
