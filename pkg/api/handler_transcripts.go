package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
)

// getTranscriptHandler handles GET /transcripts/:platform/:native_id.
func (s *Server) getTranscriptHandler(c *gin.Context) {
	meeting, err := s.lookupOwnedMeeting(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	segments, err := s.registry.ListTranscriptSegments(c.Request.Context(), meeting.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, segments)
}

// shareTranscriptHandler handles POST /transcripts/:platform/:native_id/share:
// mint an opaque token that grants unauthenticated read access to this
// meeting's transcript via GET /transcripts/shared/:token.
func (s *Server) shareTranscriptHandler(c *gin.Context) {
	meeting, err := s.lookupOwnedMeeting(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	token, err := newShareToken()
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if err := s.registry.SetShareToken(c.Request.Context(), meeting.ID, token); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ShareTranscriptResponse{ShareToken: token})
}

// getSharedTranscriptHandler handles the unauthenticated GET
// /transcripts/shared/:token read path.
func (s *Server) getSharedTranscriptHandler(c *gin.Context) {
	meeting, err := s.registry.GetByShareToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	segments, err := s.registry.ListTranscriptSegments(c.Request.Context(), meeting.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, segments)
}

func newShareToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
