// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by clients of remote APIs.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paper-extractor/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// FetchConfig holds settings for the article API client.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the BioC service root, up to and excluding "/BioC_xml".
	BaseURL string `json:"base_url" yaml:"base_url" validate:"required,url"`

	// Encoding selects the BioC text encoding ("unicode" or "ascii").
	Encoding string `json:"encoding" yaml:"encoding" validate:"oneof=unicode ascii"`

	// APIKey is the optional NCBI API key. With a key the request rate
	// rises from 3 to 10 per second.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Tool and Email identify the client to NCBI.
	Tool  string `json:"tool" yaml:"tool"`
	Email string `json:"email" yaml:"email"`

	// MaxRetries bounds retries of transient failures (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" validate:"gte=0,lte=10"`

	// IDConverterURL is the PMID to PMCID conversion endpoint. Empty
	// disables PMID resolution.
	IDConverterURL string `json:"id_converter_url" yaml:"id_converter_url" validate:"omitempty,url"`
}

// AnnotatorConfig holds settings for the entity annotation client.
type AnnotatorConfig struct {
	HTTPConfig `yaml:",inline"`

	// Enabled controls whether captions are annotated at all.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// BaseURL is the annotator root; text is submitted to BaseURL + "/plain".
	BaseURL string `json:"base_url" yaml:"base_url" validate:"omitempty,url"`

	// Deadline bounds one whole submit-and-poll sequence (default 30s).
	Deadline time.Duration `json:"deadline" yaml:"deadline" validate:"gte=0"`

	// PollInterval is the first wait between polls; it doubles up to
	// MaxPollInterval.
	PollInterval    time.Duration `json:"poll_interval" yaml:"poll_interval" validate:"gte=0"`
	MaxPollInterval time.Duration `json:"max_poll_interval" yaml:"max_poll_interval" validate:"gte=0"`

	// MinCaptionLength skips annotation of captions shorter than this.
	MinCaptionLength int `json:"min_caption_length" yaml:"min_caption_length" validate:"gte=0"`

	// MaxRetries bounds retries of transient submit failures.
	MaxRetries int `json:"max_retries" yaml:"max_retries" validate:"gte=0,lte=10"`
}

// StoreBackend identifies the persistence engine.
type StoreBackend string

const (
	BackendSQLite StoreBackend = "sqlite"
	BackendBadger StoreBackend = "badger"
)

// StoreConfig selects and locates the store.
type StoreConfig struct {
	// Backend selects the engine: sqlite or badger.
	Backend StoreBackend `json:"backend" yaml:"backend" validate:"oneof=sqlite badger"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path" validate:"required_if=Backend sqlite"`

	// BadgerDir is the data directory for the badger backend.
	BadgerDir string `json:"badger_dir" yaml:"badger_dir" validate:"required_if=Backend badger"`
}

// BatchConfig holds settings for batch extraction and the batch-file watcher.
type BatchConfig struct {
	// Workers is the number of identifiers extracted concurrently (default 4).
	Workers int `json:"workers" yaml:"workers" validate:"gte=1,lte=64"`

	// WatchDir is the directory monitored for batch files.
	WatchDir string `json:"watch_dir" yaml:"watch_dir"`

	// Extensions lists the batch file extensions picked up by the watcher.
	Extensions []string `json:"extensions" yaml:"extensions"`

	// SweepSchedule is an optional cron spec (e.g. "@every 5m") for
	// re-scanning WatchDir for files the watcher missed.
	SweepSchedule string `json:"sweep_schedule,omitempty" yaml:"sweep_schedule,omitempty"`

	// Debounce delays processing of a file until writes settle.
	Debounce time.Duration `json:"debounce" yaml:"debounce" validate:"gte=0"`
}

// ServerConfig holds settings for the REST API.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port" validate:"gte=1,lte=65535"`

	// APIKey is required in the X-API-Key header of every request except
	// the health check.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`

	// Debug switches to the human-readable development encoder.
	Debug bool `json:"debug" yaml:"debug"`

	// File, when set, receives log output in addition to stderr.
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Config groups all component configurations.
type Config struct {
	Fetch     FetchConfig     `json:"fetch" yaml:"fetch"`
	Annotator AnnotatorConfig `json:"annotator" yaml:"annotator"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Batch     BatchConfig     `json:"batch" yaml:"batch"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Log       LogConfig       `json:"log" yaml:"log"`
}
