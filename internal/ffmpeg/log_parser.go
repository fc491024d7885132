package ffmpeg

import "strings"

// levelNames are the -loglevel names ffmpeg prefixes its output with
// when run with "level+" logging.
var levelNames = map[string]bool{
	"quiet":   true,
	"panic":   true,
	"fatal":   true,
	"error":   true,
	"warning": true,
	"info":    true,
	"verbose": true,
	"debug":   true,
	"trace":   true,
}

// ParseLogLevel maps one line of encoder output to a log level and the
// message to record. With "-loglevel level+info" ffmpeg emits either
// "[level] message" or "[component @ 0xaddr] [level] message"; the
// component tag stays in the message, the level tag is stripped.
// Anything unrecognized passes through at info.
func ParseLogLevel(line string) (level, msg string) {
	tag, rest, ok := leadingBracket(line)
	if !ok {
		return "info", line
	}

	if levelNames[tag] {
		return tag, rest
	}

	// First bracket is a component tag; the level may follow it.
	if next, remainder, ok := leadingBracket(rest); ok && levelNames[next] {
		return next, "[" + tag + "] " + remainder
	}

	return "info", line
}

// leadingBracket splits "[tag] rest" into tag and rest.
func leadingBracket(s string) (tag, rest string, ok bool) {
	if len(s) < 3 || s[0] != '[' {
		return "", "", false
	}
	end := strings.Index(s, "] ")
	if end == -1 {
		return "", "", false
	}
	return s[1:end], s[end+2:], true
}
