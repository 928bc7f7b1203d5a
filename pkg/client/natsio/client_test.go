package natsio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "punchclock.sync.v1.D1.events.syncstatus", Subject(DefaultBaseSubject, "D1", "syncstatus"))
	assert.Equal(t, "punchclock.sync.v1.hq_lobby_1.events.syncstatus", Subject(DefaultBaseSubject, "hq.lobby 1", "syncstatus"))
}

func TestParseSubject(t *testing.T) {
	device, topic, ok := ParseSubject(DefaultBaseSubject, "punchclock.sync.v1.D1.events.syncstatus")
	assert.True(t, ok)
	assert.Equal(t, "D1", device)
	assert.Equal(t, "syncstatus", topic)

	_, _, ok = ParseSubject(DefaultBaseSubject, "punchclock.sync.v1.D1.other")
	assert.False(t, ok)
}
