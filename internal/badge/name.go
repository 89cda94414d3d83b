package badge

import "unicode/utf8"

// MaxNameLen is the longest name a badge stores, in bytes.
const MaxNameLen = 254

// DefaultName is shown when a badge has no name configured.
const DefaultName Name = "Team 1-1"

// Name is a badge display name, at most MaxNameLen bytes of valid UTF-8 on a
// single line.
type Name string

// NewName bounds s to a Name. Line breaks end the name; longer input is cut
// at the last rune boundary that fits, and truncated reports whether anything
// was dropped. An empty result becomes DefaultName.
func NewName(s string) (name Name, truncated bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' || s[i] == 0 {
			s, truncated = s[:i], true
			break
		}
	}

	if len(s) > MaxNameLen {
		cut := MaxNameLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s, truncated = s[:cut], true
	}

	if !utf8.ValidString(s) {
		s = toValidUTF8(s)
	}

	if s == "" {
		return DefaultName, truncated
	}
	return Name(s), truncated
}

func toValidUTF8(s string) string {
	b := make([]rune, 0, len(s))
	for _, r := range s {
		if r != utf8.RuneError {
			b = append(b, r)
		}
	}
	return string(b)
}

// String returns the name.
func (n Name) String() string { return string(n) }
