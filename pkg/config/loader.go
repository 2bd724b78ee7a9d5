package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nimburion/adapter-registry/pkg/observability/logger"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "ADAPTER_REGISTRY")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithFlags binds the command line flags listed in FlagKeys. A flag set on
// the command line takes precedence over every other source.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	if l == nil {
		return l
	}
	l.flags = flags
	return l
}

// FlagKeys maps command line flag names to configuration keys.
var FlagKeys = map[string]string{
	"log-level":  "observability.log_level",
	"log-format": "observability.log_format",
	"region":     "aws.region",
	"endpoint":   "aws.endpoint",
	"bucket":     "s3.bucket",
	"table":      "dynamodb.table",
	"port":       "http.port",
	"queue-url":  "sqs.queue_url",
}

// Load loads configuration with precedence: flags > ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	cfg, _, err := l.load(false)
	return cfg, err
}

func (l *ViperLoader) load(withSecrets bool) (*Config, *Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	var secrets *Config
	if withSecrets {
		var err error
		if secrets, err = l.mergeSecrets(v); err != nil {
			return nil, nil, err
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindLegacyEnvVars()
	l.bindEnvVars(v)

	if err := l.bindFlags(v); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, secrets, nil
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range FlagKeys {
		flag := l.flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	// Service
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.version", l.prefixedEnv("SERVICE_VERSION"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// HTTP
	v.BindEnv("http.port", l.prefixedEnv("HTTP_PORT"))
	v.BindEnv("http.read_timeout", l.prefixedEnv("HTTP_READ_TIMEOUT"))
	v.BindEnv("http.write_timeout", l.prefixedEnv("HTTP_WRITE_TIMEOUT"))
	v.BindEnv("http.idle_timeout", l.prefixedEnv("HTTP_IDLE_TIMEOUT"))
	v.BindEnv("http.shutdown_timeout", l.prefixedEnv("HTTP_SHUTDOWN_TIMEOUT"))

	// Management
	v.BindEnv("management.enabled", l.prefixedEnv("MGMT_ENABLED"))
	v.BindEnv("management.port", l.prefixedEnv("MGMT_PORT"))
	v.BindEnv("management.read_timeout", l.prefixedEnv("MGMT_READ_TIMEOUT"))
	v.BindEnv("management.write_timeout", l.prefixedEnv("MGMT_WRITE_TIMEOUT"))
	v.BindEnv("management.mtls_enabled", l.prefixedEnv("MGMT_MTLS_ENABLED"))
	v.BindEnv("management.tls_cert_file", l.prefixedEnv("MGMT_TLS_CERT_FILE"))
	v.BindEnv("management.tls_key_file", l.prefixedEnv("MGMT_TLS_KEY_FILE"))
	v.BindEnv("management.tls_ca_file", l.prefixedEnv("MGMT_TLS_CA_FILE"))

	// AWS (the standard AWS_REGION is honored when the prefixed one is absent)
	v.BindEnv("aws.region", l.prefixedEnv("AWS_REGION"), "AWS_REGION")
	v.BindEnv("aws.endpoint", l.prefixedEnv("AWS_ENDPOINT"))
	v.BindEnv("aws.access_key_id", l.prefixedEnv("AWS_ACCESS_KEY_ID"))
	v.BindEnv("aws.secret_access_key", l.prefixedEnv("AWS_SECRET_ACCESS_KEY"))
	v.BindEnv("aws.session_token", l.prefixedEnv("AWS_SESSION_TOKEN"))
	v.BindEnv("aws.operation_timeout", l.prefixedEnv("AWS_OPERATION_TIMEOUT"))

	// S3
	v.BindEnv("s3.bucket", l.prefixedEnv("S3_BUCKET"))
	v.BindEnv("s3.use_path_style", l.prefixedEnv("S3_USE_PATH_STYLE"))

	// DynamoDB
	v.BindEnv("dynamodb.table", l.prefixedEnv("DYNAMODB_TABLE"))
	v.BindEnv("dynamodb.batch_max_tries", l.prefixedEnv("DYNAMODB_BATCH_MAX_TRIES"))
	v.BindEnv("dynamodb.batch_initial_interval", l.prefixedEnv("DYNAMODB_BATCH_INITIAL_INTERVAL"))
	v.BindEnv("dynamodb.batch_max_interval", l.prefixedEnv("DYNAMODB_BATCH_MAX_INTERVAL"))

	// SQS
	v.BindEnv("sqs.enabled", l.prefixedEnv("SQS_ENABLED"))
	v.BindEnv("sqs.queue_url", l.prefixedEnv("SQS_QUEUE_URL"))
	v.BindEnv("sqs.wait_time_seconds", l.prefixedEnv("SQS_WAIT_TIME_SECONDS"))
	v.BindEnv("sqs.max_messages", l.prefixedEnv("SQS_MAX_MESSAGES"))
	v.BindEnv("sqs.visibility_timeout", l.prefixedEnv("SQS_VISIBILITY_TIMEOUT"))

	// Auth
	v.BindEnv("auth.jwt_enabled", l.prefixedEnv("AUTH_JWT_ENABLED"))
	v.BindEnv("auth.jwt_secret", l.prefixedEnv("AUTH_JWT_SECRET"))
	v.BindEnv("auth.issuer", l.prefixedEnv("AUTH_ISSUER"))
	v.BindEnv("auth.audience", l.prefixedEnv("AUTH_AUDIENCE"))

	// Rate limit
	v.BindEnv("rate_limit.enabled", l.prefixedEnv("RATE_LIMIT_ENABLED"))
	v.BindEnv("rate_limit.requests_per_second", l.prefixedEnv("RATE_LIMIT_REQUESTS_PER_SECOND"))
	v.BindEnv("rate_limit.burst", l.prefixedEnv("RATE_LIMIT_BURST"))

	// Observability
	v.BindEnv("observability.log_level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	v.BindEnv("observability.tracing_insecure", l.prefixedEnv("TRACING_INSECURE"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
}

// bindLegacyEnvVars maps legacy env vars (full names) to current names when the current vars are absent.
func (l *ViperLoader) bindLegacyEnvVars() {
	aliases := []struct {
		suffix string
		legacy string
	}{
		{"DYNAMODB_TABLE", "ADAPTERS_TABLE"},
		{"MGMT_PORT", l.prefixedEnv("MANAGEMENT_PORT")},
		{"MGMT_ENABLED", l.prefixedEnv("MANAGEMENT_ENABLED")},
	}

	for _, alias := range aliases {
		current := l.prefixedEnv(alias.suffix)
		if _, ok := os.LookupEnv(current); ok {
			continue
		}
		if legacyValue, ok := os.LookupEnv(alias.legacy); ok {
			_ = os.Setenv(current, legacyValue)
		}
	}
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.version", cfg.Service.Version)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("http.port", cfg.HTTP.Port)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", cfg.HTTP.IdleTimeout)
	v.SetDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout)

	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.port", cfg.Management.Port)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)
	v.SetDefault("management.mtls_enabled", cfg.Management.MTLSEnabled)
	v.SetDefault("management.tls_cert_file", cfg.Management.TLSCertFile)
	v.SetDefault("management.tls_key_file", cfg.Management.TLSKeyFile)
	v.SetDefault("management.tls_ca_file", cfg.Management.TLSCAFile)

	v.SetDefault("aws.region", cfg.AWS.Region)
	v.SetDefault("aws.endpoint", cfg.AWS.Endpoint)
	v.SetDefault("aws.access_key_id", cfg.AWS.AccessKeyID)
	v.SetDefault("aws.secret_access_key", cfg.AWS.SecretAccessKey)
	v.SetDefault("aws.session_token", cfg.AWS.SessionToken)
	v.SetDefault("aws.operation_timeout", cfg.AWS.OperationTimeout)

	v.SetDefault("s3.bucket", cfg.S3.Bucket)
	v.SetDefault("s3.use_path_style", cfg.S3.UsePathStyle)

	v.SetDefault("dynamodb.table", cfg.DynamoDB.Table)
	v.SetDefault("dynamodb.batch_max_tries", cfg.DynamoDB.BatchMaxTries)
	v.SetDefault("dynamodb.batch_initial_interval", cfg.DynamoDB.BatchInitialInterval)
	v.SetDefault("dynamodb.batch_max_interval", cfg.DynamoDB.BatchMaxInterval)

	v.SetDefault("sqs.enabled", cfg.SQS.Enabled)
	v.SetDefault("sqs.queue_url", cfg.SQS.QueueURL)
	v.SetDefault("sqs.wait_time_seconds", cfg.SQS.WaitTimeSeconds)
	v.SetDefault("sqs.max_messages", cfg.SQS.MaxMessages)
	v.SetDefault("sqs.visibility_timeout", cfg.SQS.VisibilityTimeout)

	v.SetDefault("auth.jwt_enabled", cfg.Auth.JWTEnabled)
	v.SetDefault("auth.jwt_secret", cfg.Auth.JWTSecret)
	v.SetDefault("auth.issuer", cfg.Auth.Issuer)
	v.SetDefault("auth.audience", cfg.Auth.Audience)

	v.SetDefault("rate_limit.enabled", cfg.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_second", cfg.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_insecure", cfg.Observability.TracingInsecure)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
}

// Validate validates the configuration and returns every problem found.
// Bucket and table may be empty: operations needing them fail at call time.
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	cfg.S3.Bucket = strings.TrimSpace(cfg.S3.Bucket)
	cfg.DynamoDB.Table = strings.TrimSpace(cfg.DynamoDB.Table)

	if !validPort(cfg.HTTP.Port) {
		errs = append(errs, fmt.Errorf("invalid http.port: %d", cfg.HTTP.Port))
	}
	if cfg.Management.Enabled {
		if !validPort(cfg.Management.Port) {
			errs = append(errs, fmt.Errorf("invalid management.port: %d", cfg.Management.Port))
		} else if cfg.Management.Port == cfg.HTTP.Port {
			errs = append(errs, errors.New("management.port must differ from http.port"))
		}
		if cfg.Management.MTLSEnabled {
			if cfg.Management.TLSCertFile == "" {
				errs = append(errs, errors.New("management.tls_cert_file is required when mtls is enabled"))
			}
			if cfg.Management.TLSKeyFile == "" {
				errs = append(errs, errors.New("management.tls_key_file is required when mtls is enabled"))
			}
			if cfg.Management.TLSCAFile == "" {
				errs = append(errs, errors.New("management.tls_ca_file is required when mtls is enabled"))
			}
		}
	}

	if strings.TrimSpace(cfg.AWS.Region) == "" {
		errs = append(errs, errors.New("aws.region is required"))
	}
	if (cfg.AWS.AccessKeyID == "") != (cfg.AWS.SecretAccessKey == "") {
		errs = append(errs, errors.New("aws.access_key_id and aws.secret_access_key must be set together"))
	}
	if cfg.AWS.OperationTimeout < 0 {
		errs = append(errs, errors.New("aws.operation_timeout must not be negative"))
	}

	if cfg.DynamoDB.BatchMaxTries == 0 {
		errs = append(errs, errors.New("dynamodb.batch_max_tries must be at least 1"))
	}

	if cfg.SQS.Enabled && strings.TrimSpace(cfg.SQS.QueueURL) == "" {
		errs = append(errs, errors.New("sqs.queue_url is required when sqs is enabled"))
	}
	if cfg.SQS.WaitTimeSeconds < 0 || cfg.SQS.WaitTimeSeconds > 20 {
		errs = append(errs, fmt.Errorf("sqs.wait_time_seconds must be between 0 and 20, got %d", cfg.SQS.WaitTimeSeconds))
	}
	if cfg.SQS.MaxMessages < 1 || cfg.SQS.MaxMessages > 10 {
		errs = append(errs, fmt.Errorf("sqs.max_messages must be between 1 and 10, got %d", cfg.SQS.MaxMessages))
	}

	if cfg.Auth.JWTEnabled && cfg.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required when auth.jwt_enabled is true"))
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, errors.New("rate_limit.requests_per_second must be positive"))
		}
		if cfg.RateLimit.Burst <= 0 {
			errs = append(errs, errors.New("rate_limit.burst must be positive"))
		}
	}

	if _, err := logger.ParseLogLevel(cfg.Observability.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %w", err))
	}
	if _, err := logger.ParseLogFormat(cfg.Observability.LogFormat); err != nil {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %w", err))
	}
	if cfg.Observability.TracingSampleRate < 0 || cfg.Observability.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("observability.tracing_sample_rate must be between 0 and 1, got %v", cfg.Observability.TracingSampleRate))
	}
	if cfg.Observability.TracingEnabled && cfg.Observability.TracingEndpoint == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
