package qsn

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Logger is the structured logger handed to every party.
type Logger = *log.Logger

// NewLogger builds a logger writing to w at the given level name.
// An unknown level falls back to info.
func NewLogger(w io.Writer, level string) Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
	})
}

// partyLogger prefixes every line with the node name and tags the round.
func partyLogger(base Logger, p Party, round string) Logger {
	l := orDiscard(base).With("round", round, "role", p.Role().String())
	l.SetPrefix(p.Name())
	return l
}

func orDiscard(l Logger) Logger {
	if l == nil {
		return NewLogger(io.Discard, "error")
	}
	return l
}
