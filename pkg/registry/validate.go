package registry

import (
	"regexp"

	"github.com/vexa-ai/vexa/pkg/models"
)

var (
	googleMeetIDRe = regexp.MustCompile(`^[a-z]{3}-[a-z]{4}-[a-z]{3}$`)
	teamsIDRe      = regexp.MustCompile(`^\d{10,15}$`)
	teamsPasscodeRe = regexp.MustCompile(`^[a-zA-Z0-9]{8,20}$`)
	zoomIDRe       = regexp.MustCompile(`^\d+$`)
)

// ValidateNativeMeetingID checks native_id (and, for platforms that carry
// one, passcode) against the per-platform formats named in base spec §3.
func ValidateNativeMeetingID(platform models.Platform, nativeID, passcode string) error {
	switch platform {
	case models.PlatformGoogleMeet:
		if !googleMeetIDRe.MatchString(nativeID) {
			return NewValidationError("native_meeting_id", "must match [a-z]{3}-[a-z]{4}-[a-z]{3}")
		}
	case models.PlatformTeams:
		if !teamsIDRe.MatchString(nativeID) {
			return NewValidationError("native_meeting_id", "must be 10-15 digits")
		}
		if passcode != "" && !teamsPasscodeRe.MatchString(passcode) {
			return NewValidationError("passcode", "must be 8-20 alphanumeric characters")
		}
	case models.PlatformZoom:
		if !zoomIDRe.MatchString(nativeID) {
			return NewValidationError("native_meeting_id", "must be numeric")
		}
	default:
		return NewValidationError("platform", "unknown platform")
	}
	return nil
}
