package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout       = 15 * time.Second
	IdentityRequestTimeout   = 5 * time.Second
	GenerationRequestTimeout = 60 * time.Second
	SourceFetchTimeout       = 10 * time.Second
	ServerShutdownTimeout    = 30 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute
)

// Pool and size constants
const (
	DefaultMaxOpenConns           = 25
	DefaultMaxIdleConns           = 5
	DefaultMaxInFlightGenerations = 8
	DefaultMaxSourceChars         = 6000
)

// Quiz and quota constants
const (
	DefaultDailyCeiling       = 50
	DefaultQuestionCount      = 5
	DefaultChoicesPerQuestion = 4
	UntitledQuiz              = "Untitled"
	VocabularyWindow          = 7 * 24 * time.Hour

	// ShellRetention is how long the admin cleanup keeps a never-generated shell
	ShellRetention = 7 * 24 * time.Hour
)

// Security configuration constants
const (
	// Content Security Policy; the API serves JSON only.
	DefaultCSP = "default-src 'none'; frame-ancestors 'none'"
)
