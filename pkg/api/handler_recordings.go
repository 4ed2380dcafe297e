package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vexa-ai/vexa/pkg/models"
	"github.com/vexa-ai/vexa/pkg/recordings"
	"github.com/vexa-ai/vexa/pkg/registry"
)

// getRecordingHandler handles GET /recordings/:id.
func (s *Server) getRecordingHandler(c *gin.Context) {
	rec, err := s.ownedRecording(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// deleteRecordingHandler handles DELETE /recordings/:id.
func (s *Server) deleteRecordingHandler(c *gin.Context) {
	rec, err := s.ownedRecording(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if err := s.registry.DeleteRecording(c.Request.Context(), rec.ID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": rec.ID, "status": "deleted"})
}

// recordingMediaHandler handles GET /recordings/:id/media/:file_id/raw,
// which MUST honor a Range header with 206 Partial Content, per base spec
// §6 and §8's testable property 7.
func (s *Server) recordingMediaHandler(c *gin.Context) {
	rec, err := s.ownedRecording(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	fileID := c.Param("file_id")
	for _, mf := range rec.MediaFiles {
		if mf.ID != fileID {
			continue
		}
		filename := fmt.Sprintf("%s.%s", mf.ID, mf.Format)
		if err := recordings.ServeRange(c.Request.Context(), c.Writer, c.Request, s.store, mf.ObjectKey, filename); err != nil {
			writeServiceError(c, err)
		}
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "media file not found"})
}

// ownedRecording resolves :id to a recording belonging to one of the
// caller's own meetings — recordings carry no owner column of their own,
// so ownership is checked transitively through the parent meeting. A
// recording belonging to someone else is reported as not found, not
// forbidden, so as not to confirm its existence to the wrong caller.
func (s *Server) ownedRecording(c *gin.Context) (*models.Recording, error) {
	owner := ownerFromContext(c)
	rec, err := s.registry.GetRecording(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	meeting, err := s.registry.Get(c.Request.Context(), rec.MeetingID)
	if err != nil {
		return nil, err
	}
	if meeting.Owner != owner.ID {
		return nil, registry.ErrNotFound
	}
	return rec, nil
}
