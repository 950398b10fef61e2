// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"time"

	"github.com/pdiddy/paper-extractor/internal/annotate"
	"github.com/pdiddy/paper-extractor/internal/fetch"
	"github.com/pdiddy/paper-extractor/pkg/types"
)

// userAgent is sent by both remote clients unless configured otherwise.
const userAgent = "paper-extractor/0.1"

// defaults returns the default value of every configuration key. Every
// key must appear here for environment overrides to be decoded.
func defaults() map[string]any {
	return map[string]any{
		"fetch.base_url":         fetch.DefaultBaseURL,
		"fetch.encoding":         "unicode",
		"fetch.api_key":          "",
		"fetch.tool":             fetch.DefaultTool,
		"fetch.email":            "",
		"fetch.timeout":          30 * time.Second,
		"fetch.user_agent":       userAgent,
		"fetch.max_retries":      3,
		"fetch.id_converter_url": fetch.DefaultIDConverterURL,

		"annotator.enabled":            true,
		"annotator.base_url":           annotate.DefaultBaseURL,
		"annotator.timeout":            30 * time.Second,
		"annotator.user_agent":         userAgent,
		"annotator.deadline":           annotate.DefaultDeadline,
		"annotator.poll_interval":      annotate.DefaultPollInterval,
		"annotator.max_poll_interval":  annotate.DefaultMaxPollInterval,
		"annotator.min_caption_length": annotate.DefaultMinCaptionLength,
		"annotator.max_retries":        2,

		"store.backend":     string(types.BackendSQLite),
		"store.sqlite_path": "data/store.db",
		"store.badger_dir":  "data/badger",

		"batch.workers":        4,
		"batch.watch_dir":      "watch",
		"batch.extensions":     []string{".txt"},
		"batch.sweep_schedule": "",
		"batch.debounce":       2 * time.Second,

		"server.host":    "127.0.0.1",
		"server.port":    8000,
		"server.api_key": "",

		"log.level": "info",
		"log.debug": false,
		"log.file":  "",
	}
}
