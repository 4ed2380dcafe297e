package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vexa-ai/vexa/pkg/lifecycle"
	"github.com/vexa-ai/vexa/pkg/models"
)

// workerCallbackHandler handles POST /internal/callbacks/:connection_id, the
// single per-meeting endpoint a worker reports its status transitions to,
// per base spec §6. Each worker owns exactly one meeting's connection for
// its whole lifetime, so :connection_id is the meeting id itself — the
// same value the Worker Orchestrator embedded in the worker's CallbackURL
// at dispatch time.
func (s *Server) workerCallbackHandler(c *gin.Context) {
	meetingID := c.Param("connection_id")

	var req WorkerCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	fresh, err := s.registry.RecordCallbackReceipt(c.Request.Context(), meetingID, req.Status)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !fresh {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate, ignored"})
		return
	}

	ctx := c.Request.Context()
	switch req.Status {
	case "joining_ack":
		err = s.manager.JoiningAck(ctx, meetingID)
	case "awaiting_admission":
		err = s.manager.AwaitingAdmission(ctx, meetingID)
	case "active":
		err = s.manager.Active(ctx, meetingID)
	case "status_update":
		err = s.manager.StatusUpdateHeartbeat(ctx, meetingID)
	case "exited":
		err = s.manager.Exit(ctx, meetingID, lifecycle.ExitDetail{
			Reason:           req.Reason,
			ExitCode:         req.ExitCode,
			CompletionReason: req.CompletionReason,
			FailureStage:     req.FailureStage,
			ErrorDetails:     req.ErrorDetails,
			ContainerName:    req.ContainerName,
		})
	default:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unrecognized status"})
		return
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// recordingUploadHandler handles POST /internal/recordings/:meeting_id/upload,
// authenticated by the meeting's own opaque session token rather than the
// owning user's API key, per SPEC_FULL.md §8.
func (s *Server) recordingUploadHandler(c *gin.Context) {
	meetingID := c.Param("meeting_id")
	meeting, err := s.registry.Get(c.Request.Context(), meetingID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !workerAuth(c, meeting.SessionUID) {
		return
	}

	var req RecordingUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	fileHeader, err := c.FormFile("media")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "media file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		writeServiceError(c, err)
		return
	}
	defer file.Close()

	objectKey := meetingID + "/" + req.RecordingID + "/" + fileHeader.Filename
	contentType := fileHeader.Header.Get("Content-Type")
	if err := s.store.Put(c.Request.Context(), objectKey, file, fileHeader.Size, contentType); err != nil {
		_ = s.registry.FailRecording(c.Request.Context(), req.RecordingID, err.Error())
		writeServiceError(c, err)
		return
	}

	mediaFile := models.MediaFile{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Format:    req.Format,
		SizeByte:  fileHeader.Size,
		Duration:  req.DurationSec,
		ObjectKey: objectKey,
	}
	if err := s.registry.CompleteRecording(c.Request.Context(), req.RecordingID, mediaFile); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording_id": req.RecordingID, "media_file_id": mediaFile.ID})
}
