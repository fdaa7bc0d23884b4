package input

import "unicode"

// Key is a single keyboard key, identified by the character it produces
type Key rune

// ParseKey converts a configured one-character key name
func ParseKey(s string) Key {
	for _, r := range s {
		return Key(unicode.ToLower(r))
	}
	return 0
}

func (k Key) String() string {
	if k == ' ' {
		return "space"
	}
	return string(rune(k))
}
