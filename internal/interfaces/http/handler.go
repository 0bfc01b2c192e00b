package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ibralab/anaterra/internal/entities"
	"github.com/ibralab/anaterra/internal/infrastructure"
	"github.com/ibralab/anaterra/internal/interfaces"
)

// Conversation is the engine behind every transport: one message in,
// one reply out.
type Conversation interface {
	ProcessMessage(ctx context.Context, channel entities.Channel, rawSessionID, text string) string
}

// Cookie that pins an anonymous web visitor to a stable session id.
const webUserCookie = "ana_terra_user_id"

const webCookieMaxAge = 30 * 24 * 60 * 60 // 30 days

type Handler struct {
	conv        Conversation
	transcriber interfaces.Transcriber

	// Swappable so tests don't need ffmpeg on the PATH.
	convertAudio func([]byte) (string, error)

	logger *slog.Logger
}

func NewHandler(conv Conversation, transcriber interfaces.Transcriber, logger *slog.Logger) *Handler {
	return &Handler{
		conv:         conv,
		transcriber:  transcriber,
		convertAudio: infrastructure.ConvertToWAV,
		logger:       logger,
	}
}

// HandleWebChat serves the site's chat widget. The session id comes from
// the request body, falls back to the visitor cookie, and is minted
// fresh when neither exists.
func (h *Handler) HandleWebChat(c *gin.Context) {
	var req struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	sessionID := h.resolveWebSession(c, req.SessionID)
	reply := h.conv.ProcessMessage(c.Request.Context(), entities.ChannelWeb, sessionID, req.Message)

	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "reply": reply})
}

// HandleWebChatAudio accepts a voice message, converts it to WAV and
// pushes the transcript through the same pipeline as typed text.
func (h *Handler) HandleWebChatAudio(c *gin.Context) {
	file, _, err := c.Request.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read audio"})
		return
	}

	wavPath, err := h.convertAudio(data)
	if err != nil {
		h.logger.Error("audio conversion failed", "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unsupported audio format"})
		return
	}
	defer os.Remove(wavPath)

	wav, err := os.Open(wavPath)
	if err != nil {
		h.logger.Error("converted audio unreadable", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audio processing failed"})
		return
	}
	defer wav.Close()

	transcript, err := h.transcriber.Transcribe(c.Request.Context(), filepath.Base(wavPath), wav)
	if err != nil {
		h.logger.Error("transcription failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "transcription failed"})
		return
	}

	sessionID := h.resolveWebSession(c, c.PostForm("sessionId"))
	reply := h.conv.ProcessMessage(c.Request.Context(), entities.ChannelWeb, sessionID, transcript)

	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "transcript": transcript, "reply": reply})
}

// HandleEmailChat is fed by the mail relay: it posts each inbound email
// here and sends our reply text back to the customer.
func (h *Handler) HandleEmailChat(c *gin.Context) {
	var req struct {
		From    string `json:"from" binding:"required"`
		Subject string `json:"subject"`
		Body    string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and body are required"})
		return
	}

	reply := h.conv.ProcessMessage(c.Request.Context(), entities.ChannelEmail, req.From, req.Body)
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (h *Handler) resolveWebSession(c *gin.Context, requested string) string {
	sessionID := requested
	if sessionID == "" {
		if cookie, err := c.Cookie(webUserCookie); err == nil && cookie != "" {
			sessionID = cookie
		}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	c.SetCookie(webUserCookie, sessionID, webCookieMaxAge, "/", "", false, true)
	return sessionID
}
