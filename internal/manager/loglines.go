package manager

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// Inference servers tend to write everything to stderr with their own
// timestamps and level tags. Re-emitting those lines verbatim through a
// structured logger would double the prefixes and mark routine chatter as
// errors, so each line is stripped and reclassified before logging.

var (
	// ISO timestamps ("2024-01-15T10:00:00.123Z ") and bracketed unix
	// timestamps ("[1705312800] ") as produced by llama.cpp builds.
	timestampPrefixRE = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?\s+|\[\d{9,}\]\s+)`)
	levelPrefixRE     = regexp.MustCompile(`^(?i)\[?(error|err|warning|warn|info|debug|trace)\]?[:\s]\s*`)
)

// classifyLine strips duplicated timestamp/level prefixes from a server
// output line and picks the level it should be logged at.
func classifyLine(line string) (zerolog.Level, string) {
	cleaned := strings.TrimSpace(line)
	for {
		next := timestampPrefixRE.ReplaceAllString(cleaned, "")
		if next == cleaned {
			break
		}
		cleaned = next
	}

	level := zerolog.NoLevel
	if m := levelPrefixRE.FindStringSubmatch(cleaned); m != nil {
		switch strings.ToLower(m[1]) {
		case "error", "err":
			level = zerolog.ErrorLevel
		case "warning", "warn":
			level = zerolog.WarnLevel
		case "info":
			level = zerolog.InfoLevel
		case "debug", "trace":
			level = zerolog.DebugLevel
		}
		cleaned = strings.TrimSpace(cleaned[len(m[0]):])
	}
	if level != zerolog.NoLevel {
		return level, cleaned
	}

	lower := strings.ToLower(cleaned)
	switch {
	case strings.Contains(lower, "error") ||
		strings.Contains(lower, "failed") ||
		strings.Contains(lower, "fatal") ||
		strings.Contains(lower, "out of memory"):
		return zerolog.ErrorLevel, cleaned
	case strings.Contains(lower, "warn") || strings.Contains(lower, "deprecated"):
		return zerolog.WarnLevel, cleaned
	default:
		// Routine server chatter stays out of the operator's way.
		return zerolog.DebugLevel, cleaned
	}
}

// logServerLine forwards one subprocess output line through log at the
// reclassified level.
func logServerLine(log zerolog.Logger, server, stream, line string) {
	level, cleaned := classifyLine(line)
	if cleaned == "" {
		return
	}
	log.WithLevel(level).Str("server", server).Str("stream", stream).Msg(cleaned)
}
