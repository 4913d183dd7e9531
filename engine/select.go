package engine

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/hupe1980/agentcore/tool"
)

var (
	searchWords = []string{"search", "find", "lookup", "google", "news"}
	timeWords   = []string{"time", "date", "today", "clock", "day"}
	fileWords   = []string{"file", "read", "write"}
	shellWords  = []string{"run", "execute", "command", "shell"}

	backticked = regexp.MustCompile("`([^`]+)`")
	fileVerb   = regexp.MustCompile(`(?is)\b(read|write)\s+(?:the\s+)?(?:file\s+)?(\S+)(.*)$`)
	shellVerb  = regexp.MustCompile(`(?i)\b(?:run|execute)\s+(?:the\s+)?(?:command\s+)?(.+)$`)
)

// SelectTool picks at most one executable for query by keyword heuristics
// and derives its input. Executables are tried in binding order and the first
// match wins. A nil executable means the query proceeds unaugmented.
func SelectTool(executables []*tool.Executable, query string) (*tool.Executable, string) {
	words := wordSet(query)
	for _, exe := range executables {
		if input, ok := match(exe.Kind(), query, words); ok {
			return exe, input
		}
	}
	return nil, ""
}

func match(kind tool.Kind, query string, words map[string]bool) (string, bool) {
	switch kind {
	case tool.KindWebSearch:
		if hasAny(words, searchWords) {
			return searchQuery(query), true
		}
	case tool.KindCalculator:
		if expr := tool.ExtractExpression(query); expr != "" {
			return expr, true
		}
	case tool.KindDateTime:
		if hasAny(words, timeWords) {
			return query, true
		}
	case tool.KindFile:
		if !hasAny(words, fileWords) {
			return "", false
		}
		if m := fileVerb.FindStringSubmatch(query); m != nil {
			input := strings.ToLower(m[1]) + " " + strings.Trim(m[2], `"'`)
			if strings.EqualFold(m[1], "write") {
				input += "\n" + strings.TrimLeft(strings.TrimPrefix(strings.TrimSpace(m[3]), ":"), " ")
			}
			return input, true
		}
	case tool.KindShell:
		if !hasAny(words, shellWords) {
			return "", false
		}
		if m := backticked.FindStringSubmatch(query); m != nil {
			return strings.TrimSpace(m[1]), true
		}
		if m := shellVerb.FindStringSubmatch(query); m != nil {
			return strings.TrimRight(strings.TrimSpace(m[1]), "?.!"), true
		}
	}
	return "", false
}

// searchQuery drops a leading "search for"/"find" style verb.
func searchQuery(query string) string {
	q := strings.TrimSpace(query)
	lower := strings.ToLower(q)
	for _, prefix := range []string{"search the web for ", "search for ", "search ", "find ", "look up ", "google "} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(q[len(prefix):])
		}
	}
	return q
}

func wordSet(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}
	if words["look"] && words["up"] {
		words["lookup"] = true
	}
	return words
}

func hasAny(words map[string]bool, candidates []string) bool {
	for _, c := range candidates {
		if words[c] {
			return true
		}
	}
	return false
}
