package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventCloneOwnsItsMaps(t *testing.T) {
	ev := NewEvent(EventAlarm, 7, "pos-1")
	ev.Set(KeyAlarm, AlarmSOS)
	ev.MarkSent("web")

	c := ev.Clone()
	c.Set(KeyAlarm, AlarmAccident)
	c.MarkSent("smsApp")

	assert.Equal(t, ev.ID, c.ID)
	assert.Equal(t, AlarmSOS, ev.Alarm())
	assert.False(t, ev.Sent("smsApp"))
	assert.True(t, c.Sent("web"))
}

func TestEventCloneWithoutSentFlags(t *testing.T) {
	ev := NewEvent(EventDeviceOverspeed, 7, "")

	c := ev.Clone()
	c.MarkSent("smsApp")

	assert.Nil(t, ev.NotificationSent)
	assert.True(t, c.Sent("smsApp"))
}
