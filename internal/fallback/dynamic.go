// dynamic.go — Dynamic-pattern detection for framework-generated identifiers.
// A selector or id matching any of these patterns is considered unstable:
// it was minted by a framework or build step and will differ on the next load.
package fallback

import "regexp"

var dynamicPatterns = []*regexp.Regexp{
	// Ember: ember123, ember45678
	regexp.MustCompile(`(?i)ember\d+`),
	// React: react-prefixed ids and useId tokens like :r1a:
	regexp.MustCompile(`(?i)^react-|:r[a-z0-9]{2,}:`),
	// Angular: ng- prefixes and ngcontent attributes
	regexp.MustCompile(`(?i)^ng-|ngcontent`),
	// Vue: v- scoped prefixes and data-v- hashes
	regexp.MustCompile(`(?i)^v-|data-v-[a-f0-9]+`),
	// UUIDs
	regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`),
	// Long hex hashes (content hashes, session tokens)
	regexp.MustCompile(`(?i)\b[0-9a-f]{12,}\b`),
	// Unix timestamps, seconds or milliseconds
	regexp.MustCompile(`\b\d{10,13}\b`),
	// CSS-modules suffixes: Button_button__3xKd2
	regexp.MustCompile(`__[A-Za-z0-9]*\d[A-Za-z0-9]*$`),
	// Short random suffixes: widget-x7f3k (must contain a digit; plain
	// words like "login-submit" stay stable)
	regexp.MustCompile(`[-_][a-z0-9]*\d[a-z0-9]*$`),
}

// IsDynamic reports whether s looks framework-generated.
func IsDynamic(s string) bool {
	if s == "" {
		return false
	}
	for _, pattern := range dynamicPatterns {
		if pattern.MatchString(s) {
			return true
		}
	}
	return false
}
