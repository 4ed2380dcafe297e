package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// listMeetingsHandler handles GET /meetings: every meeting the caller owns,
// terminal or not.
func (s *Server) listMeetingsHandler(c *gin.Context) {
	owner := ownerFromContext(c)
	meetings, err := s.registry.ListByOwner(c.Request.Context(), owner.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, meetings)
}

// patchMeetingHandler handles PATCH /meetings/:platform/:native_id: edit the
// open data bag only, per base spec §3.
func (s *Server) patchMeetingHandler(c *gin.Context) {
	var req PatchMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	meeting, err := s.lookupOwnedMeeting(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	updated, err := s.registry.UpdateData(c.Request.Context(), meeting.ID, req.Data)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// anonymizeMeetingHandler handles DELETE /meetings/:platform/:native_id: null
// out native_meeting_id, scrub the data bag, and delete transcript/recording
// rows, per base spec §3's deletion invariant.
func (s *Server) anonymizeMeetingHandler(c *gin.Context) {
	meeting, err := s.lookupOwnedMeeting(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if err := s.registry.Anonymize(c.Request.Context(), meeting.ID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": meeting.ID, "status": "anonymized"})
}
