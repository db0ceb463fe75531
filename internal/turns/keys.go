// Package turns tracks whose turn it is in each game and decides when a
// stalled player should be nagged.
package turns

import "strings"

// MaxKeyLength is the longest key the store accepts, in characters.
const MaxKeyLength = 1024

// SanitizeKey replaces characters the table store rejects in keys and caps
// the result at MaxKeyLength characters.
func SanitizeKey(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	n := 0
	for _, r := range value {
		if n == MaxKeyLength {
			break
		}
		if disallowedKeyRune(r) {
			r = '_'
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

func disallowedKeyRune(r rune) bool {
	switch {
	case r == '/', r == '\\', r == '#', r == '?':
		return true
	case r <= 0x1f:
		return true
	case r >= 0x7f && r <= 0x9f:
		return true
	}
	return false
}

// GameKey picks the storage key for a game: its identity when known,
// otherwise its display name.
func GameKey(gameID, gameName string) string {
	if gameID != "" {
		return SanitizeKey(gameID)
	}
	return SanitizeKey(gameName)
}

// HistoryRowKey keys a completed turn within a game's history partition.
func HistoryRowKey(round, player string) string {
	return SanitizeKey(round + "_" + player)
}
