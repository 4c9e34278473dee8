package handlers

import (
	"regexp"
	"slices"
	"strings"
)

// launchPatterns are tried in order; the first that matches names the
// target. Trailing "app" or "application" is not part of the name. Trigger
// words only count as whole words, so "reopen chrome" names no target.
var launchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bopen\s+(?:the\s+)?(.+?)(?:\s+app|\s+application)?$`),
	regexp.MustCompile(`\blaunch\s+(?:the\s+)?(.+?)(?:\s+app|\s+application)?$`),
	regexp.MustCompile(`\bstart\s+(?:the\s+)?(.+?)(?:\s+app|\s+application)?$`),
	regexp.MustCompile(`\brun\s+(?:the\s+)?(.+?)(?:\s+app|\s+application)?$`),
}

// closePattern drops a trailing "window", "app", "application", "please" or
// "now".
var closePattern = regexp.MustCompile(`\bclose\s+(?:the\s+)?(.+?)(?:\s+window|\s+app|\s+application|\s+please|\s+now)?$`)

// LaunchTarget extracts the application name from an utterance such as
// "please open the spotify app". ok is false when no trigger word is
// followed by a name.
func LaunchTarget(text string) (target string, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, re := range launchPatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			if t := strings.TrimSpace(m[1]); t != "" {
				return t, true
			}
		}
	}

	// The patterns stop at a line break; fall back to every word after the
	// first trigger word.
	words := strings.Fields(lower)
	for _, trigger := range launchTriggers {
		if i := slices.Index(words, trigger); i >= 0 && i < len(words)-1 {
			return strings.Join(words[i+1:], " "), true
		}
	}
	return "", false
}

var launchTriggers = []string{"open", "launch", "start", "run"}

// CloseTarget extracts the window name from an utterance such as
// "close the discord window".
func CloseTarget(text string) (target string, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	m := closePattern.FindStringSubmatch(lower)
	if m == nil {
		return "", false
	}
	t := strings.TrimSpace(m[1])
	return t, t != ""
}
