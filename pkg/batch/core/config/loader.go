package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/communes/pkg/batch/support/util/exception"
	"github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// LoadConfig builds the configuration in four layers: defaults from NewConfig, the embedded
// YAML (after ${VAR} expansion), then environment variables named after the yaml tags
// (SURFIN_BATCH_JOB_NAME, SURFIN_DATABASE_METADATA_HOST, ...). A .env file is loaded first when
// present.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	cfg := NewConfig()
	cfg.EmbeddedConfig = embeddedConfig

	expanded, err := NewOsEnvironmentExpander().Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment placeholders", err, false, false)
	}

	var yamlConfig Config
	if err := yaml.Unmarshal(expanded, &yamlConfig); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}
	mergeConfig(cfg, &yamlConfig)

	if err := LoadStructFromEnv(&cfg.Surfin, "SURFIN_"); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	return cfg, nil
}

// NewConfigProvider is the fx provider for *Config. It also applies the configured log level
// and checks that every configured error kind is registered.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Surfin.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Surfin.System.Logging.Level)

	if err := ValidateExceptionNames(cfg.Surfin.Batch.ItemRetry.RetryableExceptions, "ItemRetry"); err != nil {
		return nil, err
	}
	if err := ValidateExceptionNames(cfg.Surfin.Batch.ItemSkip.SkippableExceptions, "ItemSkip"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateExceptionNames fails on the first name that is not a registered error kind.
// where names the configuration block in the error message.
func ValidateExceptionNames(names []string, where string) error {
	for _, name := range names {
		if !exception.IsErrorTypeRegistered(name) {
			return exception.NewBatchErrorf(moduleName, "%s configuration references unknown exception class: '%s'", where, name)
		}
	}
	return nil
}

func mergeConfig(dest, source *Config) {
	mergeSurfinConfig(&dest.Surfin, &source.Surfin)
	for k, v := range source.App {
		dest.App[k] = v
	}
}

// mergeSurfinConfig copies every non-zero value of source into dest.
func mergeSurfinConfig(dest, source *SurfinConfig) {
	if source.Batch.JobName != "" {
		dest.Batch.JobName = source.Batch.JobName
	}
	if source.Batch.ChunkSize != 0 {
		dest.Batch.ChunkSize = source.Batch.ChunkSize
	}
	if source.Batch.ItemRetry.MaxAttempts != 0 {
		dest.Batch.ItemRetry.MaxAttempts = source.Batch.ItemRetry.MaxAttempts
	}
	if source.Batch.ItemRetry.InitialInterval != 0 {
		dest.Batch.ItemRetry.InitialInterval = source.Batch.ItemRetry.InitialInterval
	}
	if source.Batch.ItemRetry.RetryableExceptions != nil {
		dest.Batch.ItemRetry.RetryableExceptions = source.Batch.ItemRetry.RetryableExceptions
	}
	if source.Batch.ItemSkip.SkipLimit != 0 {
		dest.Batch.ItemSkip.SkipLimit = source.Batch.ItemSkip.SkipLimit
	}
	if source.Batch.ItemSkip.SkippableExceptions != nil {
		dest.Batch.ItemSkip.SkippableExceptions = source.Batch.ItemSkip.SkippableExceptions
	}

	if source.System.Timezone != "" {
		dest.System.Timezone = source.System.Timezone
	}
	if source.System.Logging.Level != "" {
		dest.System.Logging.Level = source.System.Logging.Level
	}
	if source.System.Logging.SQLLevel != "" {
		dest.System.Logging.SQLLevel = source.System.Logging.SQLLevel
	}

	if source.Security.MaskedParameterKeys != nil {
		dest.Security.MaskedParameterKeys = source.Security.MaskedParameterKeys
	}

	if source.Telemetry.ServiceName != "" {
		dest.Telemetry.ServiceName = source.Telemetry.ServiceName
	}
	if source.Telemetry.Endpoint != "" {
		dest.Telemetry.Endpoint = source.Telemetry.Endpoint
	}
	if source.Telemetry.Protocol != "" {
		dest.Telemetry.Protocol = source.Telemetry.Protocol
	}
	if source.Telemetry.Insecure {
		dest.Telemetry.Insecure = true
	}
	if source.Telemetry.PushgatewayURL != "" {
		dest.Telemetry.PushgatewayURL = source.Telemetry.PushgatewayURL
	}

	if source.Infrastructure.JobRepositoryDBRef != "" {
		dest.Infrastructure.JobRepositoryDBRef = source.Infrastructure.JobRepositoryDBRef
	}

	for k, v := range source.AdaptorConfigs {
		dest.AdaptorConfigs[k] = v
	}
	for k, v := range source.StorageConfigs {
		dest.StorageConfigs[k] = v
	}
}

// LoadStructFromEnv overrides the fields of the struct pointed to by target from environment
// variables. The variable name is prefix followed by the upper-cased yaml tags of the field path,
// joined by "_". Maps of type map[string]interface{} hold named entries: for the map tagged
// "database", SURFIN_DATABASE_METADATA_HOST sets key "host" of entry "metadata".
func LoadStructFromEnv(target interface{}, prefix string) error {
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a pointer to a struct, got %T", target)
	}
	return loadStructFromEnv(val.Elem(), prefix)
}

func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch field.Kind() {
		case reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case reflect.Map:
			if field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.Interface {
				loadNamedEntriesFromEnv(field, envVarName+"_")
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadNamedEntriesFromEnv sets PREFIX_<NAME>_<KEY>=value as entry[name][key] = value. The
// entry name is the first segment after the prefix; the rest of the variable is the key.
func loadNamedEntriesFromEnv(mapField reflect.Value, prefix string) {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(parts) != 2 {
			continue
		}
		nameAndKey := strings.SplitN(parts[0], "_", 2)
		if len(nameAndKey) != 2 || nameAndKey[0] == "" || nameAndKey[1] == "" {
			continue
		}
		name := strings.ToLower(nameAndKey[0])
		key := strings.ToLower(nameAndKey[1])

		entry := map[string]interface{}{}
		if existing := mapField.MapIndex(reflect.ValueOf(name)); existing.IsValid() {
			if m, ok := existing.Interface().(map[string]interface{}); ok {
				entry = m
			}
		}
		entry[key] = parts[1]
		mapField.SetMapIndex(reflect.ValueOf(name), reflect.ValueOf(entry))
	}
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			items := strings.Split(value, ",")
			for i := range items {
				items[i] = strings.TrimSpace(items[i])
			}
			field.Set(reflect.ValueOf(items))
		}
	}
	return nil
}
