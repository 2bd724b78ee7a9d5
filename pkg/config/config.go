// Package config loads the adapter registry configuration from defaults, an
// optional file, an optional secrets file, environment variables and flags.
package config

import "time"

// DefaultEnvPrefix is the environment variable prefix used by the CLI.
const DefaultEnvPrefix = "ADAPTER_REGISTRY"

// Config is the root configuration structure of the adapter registry.
type Config struct {
	Service       ServiceConfig       `mapstructure:"service" yaml:"service"`
	HTTP          HTTPConfig          `mapstructure:"http" yaml:"http"`
	Management    ManagementConfig    `mapstructure:"management" yaml:"management"`
	AWS           AWSConfig           `mapstructure:"aws" yaml:"aws"`
	S3            S3Config            `mapstructure:"s3" yaml:"s3"`
	DynamoDB      DynamoDBConfig      `mapstructure:"dynamodb" yaml:"dynamodb"`
	SQS           SQSConfig           `mapstructure:"sqs" yaml:"sqs"`
	Auth          AuthConfig          `mapstructure:"auth" yaml:"auth"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit" yaml:"rate_limit"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Version     string `mapstructure:"version" yaml:"version"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// HTTPConfig configures the public API server
type HTTPConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ManagementConfig configures the management server (health, readiness, metrics).
type ManagementConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MTLSEnabled  bool          `mapstructure:"mtls_enabled" yaml:"mtls_enabled"`
	TLSCertFile  string        `mapstructure:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile   string        `mapstructure:"tls_key_file" yaml:"tls_key_file"`
	TLSCAFile    string        `mapstructure:"tls_ca_file" yaml:"tls_ca_file"`
}

// AWSConfig holds the settings shared by the S3, DynamoDB and SQS clients.
// Static credentials are optional; the default credential chain applies
// when they are empty.
type AWSConfig struct {
	Region           string        `mapstructure:"region" yaml:"region"`
	Endpoint         string        `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID      string        `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey  string        `mapstructure:"secret_access_key" yaml:"secret_access_key" secret:"true"`
	SessionToken     string        `mapstructure:"session_token" yaml:"session_token" secret:"true"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
}

// S3Config configures the descriptor bucket.
type S3Config struct {
	Bucket       string `mapstructure:"bucket" yaml:"bucket"`
	UsePathStyle bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
}

// DynamoDBConfig configures the adapter type index table.
type DynamoDBConfig struct {
	Table                string        `mapstructure:"table" yaml:"table"`
	BatchMaxTries        uint          `mapstructure:"batch_max_tries" yaml:"batch_max_tries"`
	BatchInitialInterval time.Duration `mapstructure:"batch_initial_interval" yaml:"batch_initial_interval"`
	BatchMaxInterval     time.Duration `mapstructure:"batch_max_interval" yaml:"batch_max_interval"`
}

// SQSConfig configures the upload notification worker.
type SQSConfig struct {
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
	QueueURL          string `mapstructure:"queue_url" yaml:"queue_url"`
	WaitTimeSeconds   int32  `mapstructure:"wait_time_seconds" yaml:"wait_time_seconds"`
	MaxMessages       int32  `mapstructure:"max_messages" yaml:"max_messages"`
	VisibilityTimeout int32  `mapstructure:"visibility_timeout" yaml:"visibility_timeout"`
}

// AuthConfig configures the request authorizer. UIP tokens are always
// accepted; bearer JWTs only when JWTEnabled is set.
type AuthConfig struct {
	JWTEnabled bool   `mapstructure:"jwt_enabled" yaml:"jwt_enabled"`
	JWTSecret  string `mapstructure:"jwt_secret" yaml:"jwt_secret" secret:"true"`
	Issuer     string `mapstructure:"issuer" yaml:"issuer"`
	Audience   string `mapstructure:"audience" yaml:"audience"`
}

// RateLimitConfig configures the per-principal token bucket.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond int  `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int  `mapstructure:"burst" yaml:"burst"`
}

// ObservabilityConfig configures logging and tracing.
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string  `mapstructure:"log_format" yaml:"log_format"` // json, text
	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint" yaml:"tracing_endpoint"`
	TracingInsecure   bool    `mapstructure:"tracing_insecure" yaml:"tracing_insecure"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "adapter-registry",
			Version:     "dev",
			Environment: "development",
		},
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Management: ManagementConfig{
			Enabled:      true,
			Port:         9090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		AWS: AWSConfig{
			Region:           "us-east-1",
			OperationTimeout: 10 * time.Second,
		},
		DynamoDB: DynamoDBConfig{
			BatchMaxTries:        5,
			BatchInitialInterval: 50 * time.Millisecond,
			BatchMaxInterval:     2 * time.Second,
		},
		SQS: SQSConfig{
			WaitTimeSeconds:   20,
			MaxMessages:       10,
			VisibilityTimeout: 60,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingSampleRate: 1.0,
		},
	}
}
