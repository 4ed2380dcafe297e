package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatform_Valid(t *testing.T) {
	assert.True(t, PlatformGoogleMeet.Valid())
	assert.True(t, PlatformTeams.Valid())
	assert.True(t, PlatformZoom.Valid())
	assert.False(t, Platform("carrier_pigeon").Valid())
}

func TestMeetingStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusActive.Terminal())
	assert.False(t, StatusAwaitingAdmission.Terminal())
}
