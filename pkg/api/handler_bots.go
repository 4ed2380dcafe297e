package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vexa-ai/vexa/pkg/models"
	"github.com/vexa-ai/vexa/pkg/registry"
)

// dispatchBotHandler handles POST /bots.
func (s *Server) dispatchBotHandler(c *gin.Context) {
	var req DispatchBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	platform := models.Platform(req.Platform)
	if !platform.Valid() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown platform"})
		return
	}

	owner := ownerFromContext(c)
	cfg := models.MeetingConfig{
		Language:          req.Language,
		Task:              models.TaskMode(req.Task),
		BotName:           req.BotName,
		VoiceAgentEnabled: req.VoiceAgentEnabled,
		RecordingEnabled:  req.RecordingEnabled,
		TranscriptionTier: req.TranscriptionTier,
		Passcode:          req.Passcode,
	}

	callbackBase := fmt.Sprintf("%s/internal/callbacks", s.cfg.PublicBaseURL)
	meeting, err := s.manager.Dispatch(c.Request.Context(), owner.ID, platform, req.NativeMeetingID, req.Passcode, cfg,
		callbackBase, s.cfg.RedisURL, s.cfg.TranscriberURL, s.cfg.TranscriberAPIKey, s.cfg.WhisperModelSize)
	if err != nil {
		if existing, lookupErr := s.conflictingMeeting(c, owner.ID, platform, req.NativeMeetingID, err); lookupErr == nil && existing != nil {
			c.JSON(http.StatusConflict, ConflictResponse{Error: "active meeting already exists", ExistingMeeting: existing.ID})
			return
		}
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, DispatchBotResponse{ID: meeting.ID, Status: meeting.Status})
}

// conflictingMeeting resolves the existing meeting id for a 409, per
// SPEC_FULL.md §8's idempotency-friendly POST /bots contract. Returns nil,
// nil if err wasn't actually a conflict.
func (s *Server) conflictingMeeting(c *gin.Context, owner string, platform models.Platform, nativeID string, err error) (*models.Meeting, error) {
	if !errors.Is(err, registry.ErrConflict) {
		return nil, nil
	}
	return s.registry.GetByOwnerPlatformNative(c.Request.Context(), owner, platform, nativeID)
}

// stopBotHandler handles DELETE /bots/:platform/:native_id.
func (s *Server) stopBotHandler(c *gin.Context) {
	meeting, err := s.lookupOwnedMeeting(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if err := s.manager.Stop(c.Request.Context(), meeting.ID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": meeting.ID, "status": "stopping"})
}

// reconfigureBotHandler handles PUT /bots/:platform/:native_id/config.
// recording_enabled is intentionally absent from ReconfigureBotRequest: the
// wire payload only ever carries language/task (SPEC_FULL.md §3).
func (s *Server) reconfigureBotHandler(c *gin.Context) {
	var req ReconfigureBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	meeting, err := s.lookupOwnedMeeting(c)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if err := s.manager.Reconfigure(c.Request.Context(), meeting.ID, req.Language, req.Task); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": meeting.ID})
}

// botStatusHandler handles GET /bots/status, optionally narrowed by
// ?platform=, per SPEC_FULL.md §8.
func (s *Server) botStatusHandler(c *gin.Context) {
	owner := ownerFromContext(c)
	active, err := s.registry.ListActiveByOwner(c.Request.Context(), owner.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if platformFilter := c.Query("platform"); platformFilter != "" {
		filtered := active[:0]
		for _, m := range active {
			if string(m.Platform) == platformFilter {
				filtered = append(filtered, m)
			}
		}
		active = filtered
	}
	c.JSON(http.StatusOK, active)
}

// lookupOwnedMeeting resolves the :platform/:native_id path params to the
// caller's own meeting, shared by every /bots and /meetings single-resource
// handler.
func (s *Server) lookupOwnedMeeting(c *gin.Context) (*models.Meeting, error) {
	owner := ownerFromContext(c)
	platform := models.Platform(c.Param("platform"))
	nativeID := c.Param("native_id")
	return s.registry.GetByOwnerPlatformNative(c.Request.Context(), owner.ID, platform, nativeID)
}
