package logging

import (
	"io"
	"log/slog"
	"os"
)

const fingerprintLogLen = 12

// New creates a JSON slog logger configured at the provided level. If the
// level string is invalid it defaults to info.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// Fingerprint shortens a hash for log correlation. Plaintext mobile numbers
// never reach the logs; this prefix is all that identifies them.
func Fingerprint(key, hash string) slog.Attr {
	if len(hash) > fingerprintLogLen {
		hash = hash[:fingerprintLogLen]
	}
	return slog.String(key, hash)
}
