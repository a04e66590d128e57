package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mamachat/internal/auth"
	"mamachat/internal/models"
	"mamachat/internal/service/chat"
	"mamachat/internal/service/records"
	"mamachat/internal/worker"
)

// SessionManager runs live chat sessions on behalf of authenticated users.
type SessionManager interface {
	OpenSession(ctx context.Context, userID int64, prefs models.SessionPrefs) (*worker.SessionInfo, error)
	Get(userID int64, sessionID string) (*worker.SessionInfo, error)
	Send(ctx context.Context, userID int64, sessionID string, parts []models.Part) (chat.Outcome, error)
	Stream(ctx context.Context, userID int64, sessionID string, parts []models.Part, chunkFn func(string) error) (chat.Outcome, error)
	Close(ctx context.Context, userID int64, sessionID string) error
}

// HistoryReader serves persisted transcripts.
type HistoryReader interface {
	GetChatSession(ctx context.Context, userID int64, sessionID string) (*models.Session, error)
	ListMessages(ctx context.Context, userID int64, sessionID string) ([]*models.Message, error)
}

// Handler wires HTTP routes to the session manager.
type Handler struct {
	auth          *auth.Service
	sessions      SessionManager
	history       HistoryReader
	maxAttachment int64
	streamTimeout time.Duration
}

func NewHandler(authService *auth.Service, sessions SessionManager, history HistoryReader, maxAttachment int64) *Handler {
	if maxAttachment <= 0 {
		maxAttachment = chat.DefaultMaxAttachmentBytes
	}
	return &Handler{
		auth:          authService,
		sessions:      sessions,
		history:       history,
		maxAttachment: maxAttachment,
		streamTimeout: 2 * time.Minute,
	}
}

// RegisterRoutes attaches the chat routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/chat")
	if h.auth != nil {
		api.Use(h.auth.Middleware())
	}
	api.POST("/sessions", h.openSession)
	api.GET("/sessions/:session_id", h.getSession)
	api.POST("/sessions/:session_id/messages", h.sendMessage)
	api.POST("/sessions/:session_id/stream", h.streamMessage)
	api.DELETE("/sessions/:session_id", h.closeSession)
	api.GET("/history/:session_id", h.getHistory)
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

func (h *Handler) openSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var prefs models.SessionPrefs
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&prefs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	if prefs.WeeksPregnant != nil && (*prefs.WeeksPregnant < 0 || *prefs.WeeksPregnant > 45) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weeks_pregnant out of range"})
		return
	}
	info, err := h.sessions.OpenSession(c.Request.Context(), userID, prefs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionView(info))
}

func (h *Handler) getSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	info, err := h.sessions.Get(userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(info))
}

func (h *Handler) closeSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.sessions.Close(c.Request.Context(), userID, c.Param("session_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getHistory(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history not available"})
		return
	}
	sessionID := c.Param("session_id")
	session, err := h.history.GetChatSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	messages, err := h.history.ListMessages(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if messages == nil {
		messages = make([]*models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{
		"session":  session,
		"messages": messages,
	})
}

func (h *Handler) sendMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	parts, err := h.readParts(c)
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.sessions.Send(c.Request.Context(), userID, c.Param("session_id"), parts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcomeView(out))
}

func (h *Handler) streamMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	parts, err := h.readParts(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := h.sessions.Get(userID, sessionID); err != nil {
		writeError(c, err)
		return
	}

	streamCtx, cancel := context.WithTimeout(c.Request.Context(), h.streamTimeout)
	defer cancel()
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	user := models.ChatTurn{Role: models.RoleUser, Parts: parts}
	if err := sendEvent("ack", gin.H{
		"session_id":  sessionID,
		"content":     user.Text(),
		"attachments": user.AttachmentCount(),
	}); err != nil {
		return
	}
	out, err := h.sessions.Stream(streamCtx, userID, sessionID, parts, func(chunk string) error {
		return sendEvent("stream", gin.H{"content": chunk})
	})
	if err != nil {
		status, msg := errorStatus(err)
		_ = sendEvent("error", gin.H{"status": status, "message": msg})
		return
	}
	_ = sendEvent("done", outcomeView(out))
}

type attachmentRequest struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type messageRequest struct {
	Content     string              `json:"content"`
	Attachments []attachmentRequest `json:"attachments"`
}

// readParts accepts JSON or multipart bodies. Text comes first, then
// attachments in upload order.
func (h *Handler) readParts(c *gin.Context) ([]models.Part, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return h.readMultipart(c)
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, errBadRequest
	}
	parts := make([]models.Part, 0, 1+len(req.Attachments))
	if text := strings.TrimSpace(req.Content); text != "" {
		parts = append(parts, models.TextPart(text))
	}
	for _, a := range req.Attachments {
		if a.Data == "" {
			continue
		}
		mimeType, err := chat.ResolveMIMEType(a.Name, a.MIMEType)
		if err != nil {
			return nil, err
		}
		if _, err := base64.StdEncoding.DecodeString(a.Data); err != nil {
			return nil, fmt.Errorf("%w: %v", chat.ErrInvalidAttachment, err)
		}
		parts = append(parts, chat.AttachmentPart(&models.Attachment{Name: a.Name, MIMEType: mimeType, Data: a.Data}))
	}
	return parts, nil
}

func (h *Handler) readMultipart(c *gin.Context) ([]models.Part, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, errBadRequest
	}
	var parts []models.Part
	if values := form.Value["content"]; len(values) > 0 {
		if text := strings.TrimSpace(values[0]); text != "" {
			parts = append(parts, models.TextPart(text))
		}
	}
	for _, fh := range form.File["files"] {
		att, err := h.encodeUpload(fh)
		if err != nil {
			return nil, err
		}
		parts = append(parts, chat.AttachmentPart(att))
	}
	return parts, nil
}

func (h *Handler) encodeUpload(fh *multipart.FileHeader) (*models.Attachment, error) {
	if fh.Size > h.maxAttachment {
		return nil, chat.ErrAttachmentTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return chat.EncodeAttachmentLimit(fh.Filename, fh.Header.Get("Content-Type"), f, h.maxAttachment)
}

var errBadRequest = errors.New("invalid request body")

// errorStatus maps a failure onto an HTTP status and a message that is safe to show.
func errorStatus(err error) (int, string) {
	var pe *chat.ProviderError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, worker.ErrSessionNotFound), errors.Is(err, records.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, worker.ErrBusy), errors.Is(err, chat.ErrSessionBusy):
		return http.StatusTooManyRequests, "a reply is still in progress, please retry"
	case errors.Is(err, chat.ErrInvalidSessionState):
		return http.StatusConflict, "this conversation has ended, please start a new one"
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "message is empty"
	case errors.Is(err, chat.ErrInvalidAttachment):
		return http.StatusBadRequest, "attachment data is not valid base64"
	case errors.Is(err, chat.ErrUnsupportedAttachment):
		return http.StatusUnsupportedMediaType, "unsupported attachment type"
	case errors.Is(err, chat.ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge, "attachment too large"
	case errors.Is(err, chat.ErrConfiguration):
		return http.StatusServiceUnavailable, chat.UserMessage(err)
	case errors.As(err, &pe):
		if pe.Kind == chat.KindQuota {
			return http.StatusTooManyRequests, pe.UserMessage()
		}
		return http.StatusBadGateway, pe.UserMessage()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("api: %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": msg})
}

type partView struct {
	Text       string          `json:"text,omitempty"`
	Attachment *attachmentView `json:"attachment,omitempty"`
}

type attachmentView struct {
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type"`
}

type turnView struct {
	Role      models.Role `json:"role"`
	Parts     []partView  `json:"parts"`
	CreatedAt time.Time   `json:"created_at"`
}

// sessionView drops attachment payloads from the transcript.
func sessionView(info *worker.SessionInfo) gin.H {
	turns := make([]turnView, 0, len(info.Transcript))
	for _, t := range info.Transcript {
		view := turnView{Role: t.Role, CreatedAt: t.CreatedAt, Parts: make([]partView, 0, len(t.Parts))}
		for _, p := range t.Parts {
			pv := partView{Text: p.Text}
			if p.Attachment != nil {
				pv.Attachment = &attachmentView{Name: p.Attachment.Name, MIMEType: p.Attachment.MIMEType}
			}
			view.Parts = append(view.Parts, pv)
		}
		turns = append(turns, view)
	}
	return gin.H{
		"session_id":  info.ID,
		"provider":    info.Provider,
		"state":       info.State,
		"transcript":  turns,
		"created_at":  info.CreatedAt,
		"last_active": info.LastActive,
	}
}

func outcomeView(out chat.Outcome) gin.H {
	payload := gin.H{
		"kind":    out.Kind,
		"message": out.Message(),
	}
	if out.BlockReason != "" {
		payload["block_reason"] = out.BlockReason
	}
	return payload
}
