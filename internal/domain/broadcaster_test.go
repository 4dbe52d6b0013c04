package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBroadcasterDefaultsBlankName(t *testing.T) {
	b := NewBroadcaster("abcdef-1234", "   ")
	assert.Equal(t, "Broadcaster-abcde", b.Name)
	assert.Equal(t, ConnID("abcdef-1234"), b.ID)
}

func TestNewBroadcasterShortID(t *testing.T) {
	assert.Equal(t, "Broadcaster-ab", NewBroadcaster("ab", "").Name)
}

func TestNewBroadcasterKeepsName(t *testing.T) {
	assert.Equal(t, "Radio", NewBroadcaster("c1", " Radio ").Name)
}

func TestNewBroadcasterCutsLongName(t *testing.T) {
	name := strings.Repeat("ж", MaxNameLen+10)
	b := NewBroadcaster("c1", name)
	assert.Equal(t, MaxNameLen, len([]rune(b.Name)))
}
