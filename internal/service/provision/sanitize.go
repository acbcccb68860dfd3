package provision

import "strings"

const (
	maxNameLength   = 100
	defaultName     = "frame-project"
	allowedNameSet  = "abcdefghijklmnopqrstuvwxyz0123456789._-"
	hyphenRunAtMost = 2
)

// SanitizeName normalizes a generated project name into a valid repository
// name: lowercase, restricted to [a-z0-9._-], runs of three or more
// hyphens collapsed to one, truncated to maxNameLength, no leading or
// trailing hyphens. An input that sanitizes to nothing yields defaultName.
// The function is idempotent.
func SanitizeName(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if strings.ContainsRune(allowedNameSet, r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	name := collapseHyphenRuns(b.String())

	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	name = strings.Trim(name, "-")
	if name == "" {
		return defaultName
	}
	return name
}

// RepoName builds the final repository name, prefixing the sanitized name
// with the username when one is supplied.
func RepoName(username, candidate string) string {
	name := SanitizeName(candidate)
	username = strings.TrimSpace(username)
	if username == "" {
		return name
	}
	return SanitizeName(username) + "-" + name
}

// collapseHyphenRuns replaces every run of three or more hyphens with one.
func collapseHyphenRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	run := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			run++
			continue
		}
		b.WriteString(hyphens(run))
		run = 0
		b.WriteByte(s[i])
	}
	b.WriteString(hyphens(run))
	return b.String()
}

func hyphens(run int) string {
	switch {
	case run == 0:
		return ""
	case run > hyphenRunAtMost:
		return "-"
	default:
		return strings.Repeat("-", run)
	}
}
