// Package logging builds the logger shared by the grove commands. Reports,
// JSON output and MCP's JSON-RPC own stdout, so log lines go to stderr.
package logging

import (
	"log/slog"
	"os"
)

// New returns the CLI logger: text lines on stderr at info level, or debug
// when verbose is set. The "error" attribute key is shortened to "err" to
// keep terminal lines narrow.
func New(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}))
}
