// Package handle turns free-form user input into a canonical Threads handle.
package handle

import (
	"regexp"
	"strings"
)

// Domain is the home domain every canonical handle ends with
const Domain = "threads.net"

const suffix = "@" + Domain

var (
	// Profile paths on the Mastodon bridge, e.g. https://mastodon.social/@zuck@threads.net
	bridgeProfile = regexp.MustCompile(`mastodon\.social/@([^@/\s]+)@threads\.net`)
	webProfileURL = regexp.MustCompile(`threads\.(?:net|com)/`)
	webProfile    = regexp.MustCompile(`threads\.(?:net|com)/@?([^/?\s]+)`)
)

// Normalize returns the canonical <username>@threads.net form of input.
// It never fails; empty input yields "@threads.net" and callers must reject
// that before doing a remote lookup.
func Normalize(input string) string {
	h := strings.ToLower(strings.TrimSpace(input))
	if h == suffix {
		return suffix
	}

	return username(h) + suffix
}

func username(h string) string {
	if strings.Contains(h, "mastodon.social/@") {
		if m := bridgeProfile.FindStringSubmatch(h); m != nil {
			return m[1]
		}
	}

	if loc := webProfileURL.FindStringIndex(h); loc != nil {
		if m := webProfile.FindStringSubmatch(h); m != nil {
			// threads.net/@a@b keeps only "a"
			u, _, _ := strings.Cut(m[1], "@")
			return u
		}
		// zuck@threads.net/ is a handle with a stray slash, not a URL
		if prefix := h[:loc[0]]; strings.HasSuffix(prefix, "@") {
			return bareUsername(prefix)
		}
		return ""
	}

	return bareUsername(h)
}

// bareUsername takes the part before the first @, ignoring one leading @
// and surrounding whitespace
func bareUsername(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "@"))
	u, _, _ := strings.Cut(h, "@")
	return strings.TrimSpace(u)
}

// Username strips the domain suffix from a canonical handle
func Username(canonical string) string {
	return strings.TrimSuffix(canonical, suffix)
}

// IsEmpty reports whether input normalizes to a handle without a username
func IsEmpty(input string) bool {
	return Normalize(input) == suffix
}

// ProfileURL is the public Threads web profile for a canonical handle
func ProfileURL(canonical string) string {
	return "https://www.threads.net/@" + Username(canonical)
}
