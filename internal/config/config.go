// Package config handles application configuration loading from a YAML file and environment variables.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"gopkg.in/yaml.v3"
)

// OperationKind names a metered operation in the quota ledger.
type OperationKind string

// Metered operation kinds.
const (
	KindSimplify  OperationKind = "simplify"
	KindTranslate OperationKind = "translate"
	KindDefine    OperationKind = "define"
	KindQuiz      OperationKind = "quiz"
	KindPractice  OperationKind = "practice"
)

// AllKinds lists every metered operation kind in display order.
var AllKinds = []OperationKind{KindSimplify, KindTranslate, KindDefine, KindQuiz, KindPractice}

// Config holds all configuration for the application
type Config struct {
	Server         ServerConfig         `json:"server" yaml:"server"`
	Database       DatabaseConfig       `json:"database" yaml:"database"`
	Auth           AuthConfig           `json:"auth" yaml:"auth"`
	OpenAI         OpenAIConfig         `json:"openai" yaml:"openai"`
	DeepL          DeepLConfig          `json:"deepl" yaml:"deepl"`
	Feedback       FeedbackConfig       `json:"feedback" yaml:"feedback"`
	Quota          QuotaConfig          `json:"quota" yaml:"quota"`
	Quiz           QuizConfig           `json:"quiz" yaml:"quiz"`
	AnonymousLimit AnonymousLimitConfig `json:"anonymous_limit" yaml:"anonymous_limit"`
	OpenTelemetry  OpenTelemetryConfig  `json:"open_telemetry" yaml:"open_telemetry"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port        string   `json:"port" yaml:"port"`
	Debug       bool     `json:"debug" yaml:"debug"`
	LogLevel    string   `json:"log_level" yaml:"log_level"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins"`
	// TrustedProxies are passed to gin so X-Forwarded-For is honoured only behind them.
	TrustedProxies []string `json:"trusted_proxies" yaml:"trusted_proxies"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	MigrationsPath  string        `json:"migrations_path" yaml:"migrations_path"`
}

// AuthConfig points at the external identity provider that verifies bearer tokens.
type AuthConfig struct {
	URL     string        `json:"url" yaml:"url"`
	AnonKey string        `json:"anon_key" yaml:"anon_key"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// OpenAIConfig configures the chat completions provider used for quizzes and text operations.
type OpenAIConfig struct {
	URL          string        `json:"url" yaml:"url"`
	APIKey       string        `json:"api_key" yaml:"api_key"`
	Model        string        `json:"model" yaml:"model"`
	QuizTokens   int           `json:"quiz_max_tokens" yaml:"quiz_max_tokens"`
	TextTokens   int           `json:"text_max_tokens" yaml:"text_max_tokens"`
	Temperature  float64       `json:"temperature" yaml:"temperature"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	MaxInFlight  int           `json:"max_in_flight" yaml:"max_in_flight"`
	DefaultLevel string        `json:"default_level" yaml:"default_level"`
}

// DeepLConfig configures the DeepL translation proxy.
type DeepLConfig struct {
	URL        string        `json:"url" yaml:"url"`
	APIKey     string        `json:"api_key" yaml:"api_key"`
	SourceLang string        `json:"source_lang" yaml:"source_lang"`
	TargetLang string        `json:"target_lang" yaml:"target_lang"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// FeedbackConfig configures the notification webhook used for user feedback.
type FeedbackConfig struct {
	WebhookURL string        `json:"webhook_url" yaml:"webhook_url"`
	Channel    string        `json:"channel" yaml:"channel"`
	Username   string        `json:"username" yaml:"username"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// QuotaConfig holds the daily ceiling per metered operation kind.
type QuotaConfig struct {
	Simplify  int `json:"simplify" yaml:"simplify"`
	Translate int `json:"translate" yaml:"translate"`
	Define    int `json:"define" yaml:"define"`
	Quiz      int `json:"quiz" yaml:"quiz"`
	Practice  int `json:"practice" yaml:"practice"`
}

// Ceiling returns the daily ceiling configured for kind, or 0 for an unknown kind.
func (q QuotaConfig) Ceiling(kind OperationKind) int {
	switch kind {
	case KindSimplify:
		return q.Simplify
	case KindTranslate:
		return q.Translate
	case KindDefine:
		return q.Define
	case KindQuiz:
		return q.Quiz
	case KindPractice:
		return q.Practice
	}
	return 0
}

// QuizConfig shapes generated quizzes and the optional source page fetch.
type QuizConfig struct {
	QuestionCount      int           `json:"question_count" yaml:"question_count"`
	ChoicesPerQuestion int           `json:"choices_per_question" yaml:"choices_per_question"`
	FetchSource        bool          `json:"fetch_source" yaml:"fetch_source"`
	MaxSourceChars     int           `json:"max_source_chars" yaml:"max_source_chars"`
	FetchTimeout       time.Duration `json:"fetch_timeout" yaml:"fetch_timeout"`
}

// AnonymousLimitConfig bounds the burst rate of requests without a bearer token, per client IP.
type AnonymousLimitConfig struct {
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `json:"burst" yaml:"burst"`
	IdleTTL           time.Duration `json:"idle_ttl" yaml:"idle_ttl"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "immersive-server"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"` // Default: 1.0 (100%)
}

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	config.overrideFromEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks invariants the rest of the service relies on.
func (c *Config) Validate() error {
	for _, kind := range AllKinds {
		if c.Quota.Ceiling(kind) <= 0 {
			return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "quota ceiling for %s must be positive", kind)
		}
	}
	if c.Quiz.QuestionCount < 1 {
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "quiz.question_count must be at least 1")
	}
	if c.Quiz.ChoicesPerQuestion != DefaultChoicesPerQuestion {
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "quiz.choices_per_question must be %d", DefaultChoicesPerQuestion)
	}
	return nil
}

// applyDefaults fills zero values with the documented defaults.
func (c *Config) applyDefaults() {
	setDefault(&c.Server.Port, "8080")
	setDefault(&c.Server.LogLevel, "info")
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = DatabaseConnMaxLifetime
	}

	if c.Auth.Timeout == 0 {
		c.Auth.Timeout = IdentityRequestTimeout
	}

	setDefault(&c.OpenAI.URL, "https://api.openai.com/v1")
	setDefault(&c.OpenAI.Model, "gpt-4o")
	setDefault(&c.OpenAI.DefaultLevel, "A2")
	if c.OpenAI.QuizTokens == 0 {
		c.OpenAI.QuizTokens = 1500
	}
	if c.OpenAI.TextTokens == 0 {
		c.OpenAI.TextTokens = 100
	}
	if c.OpenAI.Temperature == 0 {
		c.OpenAI.Temperature = 0.5
	}
	if c.OpenAI.Timeout == 0 {
		c.OpenAI.Timeout = GenerationRequestTimeout
	}
	if c.OpenAI.MaxInFlight == 0 {
		c.OpenAI.MaxInFlight = DefaultMaxInFlightGenerations
	}

	setDefault(&c.DeepL.URL, "https://api-free.deepl.com/v2")
	setDefault(&c.DeepL.SourceLang, "DE")
	setDefault(&c.DeepL.TargetLang, "EN")
	if c.DeepL.Timeout == 0 {
		c.DeepL.Timeout = DefaultHTTPTimeout
	}

	setDefault(&c.Feedback.Channel, "#random")
	setDefault(&c.Feedback.Username, "notifier")
	if c.Feedback.Timeout == 0 {
		c.Feedback.Timeout = DefaultHTTPTimeout
	}

	for _, ceiling := range []*int{&c.Quota.Simplify, &c.Quota.Translate, &c.Quota.Define, &c.Quota.Quiz, &c.Quota.Practice} {
		if *ceiling == 0 {
			*ceiling = DefaultDailyCeiling
		}
	}

	if c.Quiz.QuestionCount == 0 {
		c.Quiz.QuestionCount = DefaultQuestionCount
	}
	if c.Quiz.ChoicesPerQuestion == 0 {
		c.Quiz.ChoicesPerQuestion = DefaultChoicesPerQuestion
	}
	if c.Quiz.MaxSourceChars == 0 {
		c.Quiz.MaxSourceChars = DefaultMaxSourceChars
	}
	if c.Quiz.FetchTimeout == 0 {
		c.Quiz.FetchTimeout = SourceFetchTimeout
	}

	if c.AnonymousLimit.RequestsPerSecond == 0 {
		c.AnonymousLimit.RequestsPerSecond = 1
	}
	if c.AnonymousLimit.Burst == 0 {
		c.AnonymousLimit.Burst = 10
	}
	if c.AnonymousLimit.IdleTTL == 0 {
		c.AnonymousLimit.IdleTTL = 10 * time.Minute
	}

	setDefault(&c.OpenTelemetry.ServiceName, "immersive-server")
	setDefault(&c.OpenTelemetry.Protocol, "grpc")
	if c.OpenTelemetry.SamplingRate == 0 {
		c.OpenTelemetry.SamplingRate = 1.0
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnvWithPrefix(c, "")
}

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables.
// Keys are the upper-cased yaml tags joined by underscores, e.g. OPENAI_API_KEY or QUOTA_QUIZ.
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if !field.CanSet() {
			continue
		}

		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		// time.Duration is an int64 kind but reads better as "30s" in the environment
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			if envVal := os.Getenv(envKey); envVal != "" {
				if d, err := time.ParseDuration(envVal); err == nil {
					field.SetInt(int64(d))
				}
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				if field.Type().Elem().Kind() == reflect.String {
					parts := strings.Split(envVal, ",")
					for i := range parts {
						parts[i] = strings.TrimSpace(parts[i])
					}
					field.Set(reflect.ValueOf(parts))
				}
			}
		case reflect.Struct:
			if field.CanAddr() {
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), envKey)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file named by IMMERSIVE_CONFIG_FILE, or config.yaml.
// A missing default file is not an error; environment variables alone are enough to run.
func loadConfigWithOverrides() (result0 *Config, err error) {
	if envPath := os.Getenv("IMMERSIVE_CONFIG_FILE"); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	config, err := loadConfigFromFile("config.yaml")
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	return config, err
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
