// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxNameLen = 36

	defaultNamePrefix = "Broadcaster-"
	defaultNameIDLen  = 5
)

// ConnID identifies one transport connection for its whole lifetime.
// A broadcaster is identified by the connection that started it.
type ConnID string

type Broadcaster struct {
	ID   ConnID `json:"id"`
	Name string `json:"name"`
}

// NewBroadcaster never fails: a blank name becomes a label derived from id
// and an overlong one is cut to MaxNameLen runes.
func NewBroadcaster(id ConnID, name string) Broadcaster {
	return Broadcaster{ID: id, Name: NormalizeName(id, name)}
}

func NormalizeName(id ConnID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultName(id)
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		name = string([]rune(name)[:MaxNameLen])
	}
	return name
}

func DefaultName(id ConnID) string {
	short := string(id)
	if len(short) > defaultNameIDLen {
		short = short[:defaultNameIDLen]
	}
	return defaultNamePrefix + short
}
