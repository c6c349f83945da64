package ginserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	gin "github.com/gin-gonic/gin"

	"rentalhub/internal/app/commands"
	"rentalhub/internal/app/dto"
	"rentalhub/internal/app/handlers/conversations"
	"rentalhub/internal/app/policies"
	"rentalhub/internal/app/queries"
	"rentalhub/internal/domain/messaging"
	"rentalhub/internal/domain/shared/errs"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	defaultMaxUploadBytes = 25 << 20
	multipartMemory       = 8 << 20
)

// ChatHandler exposes conversations over REST.
type ChatHandler struct {
	Commands       commands.Bus
	Queries        queries.Bus
	Uploader       policies.Uploader
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type createConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids" binding:"required,min=1"`
	PropertyID     string   `json:"property_id"`
	BookingID      string   `json:"booking_id"`
	Group          bool     `json:"group"`
}

type sendMessageRequest struct {
	Content     string           `json:"content"`
	Attachments []dto.Attachment `json:"attachments"`
}

type markReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

func (h ChatHandler) CreateConversation(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid payload: participant_ids is required")
		return
	}
	cmd := conversations.CreateConversationCommand{
		CreatorID:      user.UserID,
		ParticipantIDs: req.ParticipantIDs,
		PropertyID:     strings.TrimSpace(req.PropertyID),
		BookingID:      strings.TrimSpace(req.BookingID),
		Group:          req.Group,
		RequestKey:     strings.TrimSpace(c.GetHeader(idempotencyHeader)),
	}
	conv, err := commands.Dispatch[conversations.CreateConversationCommand, dto.Conversation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.fail(c, err, "create conversation", "user_id", user.UserID)
		return
	}
	status := http.StatusOK
	if conv.Created {
		status = http.StatusCreated
	}
	respondOK(c, status, conv)
}

func (h ChatHandler) ListConversations(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	q := conversations.ListConversationsQuery{
		UserID: user.UserID,
		Status: strings.ToLower(strings.TrimSpace(c.Query("status"))),
		Page:   parsePositiveInt(c.Query("page"), 1),
		Limit:  parsePositiveInt(c.Query("limit"), 0),
	}
	list, err := queries.Ask[conversations.ListConversationsQuery, dto.ConversationList](c.Request.Context(), h.Queries, q)
	if err != nil {
		h.fail(c, err, "list conversations", "user_id", user.UserID)
		return
	}
	respondOK(c, http.StatusOK, list)
}

func (h ChatHandler) GetConversation(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	q := conversations.GetConversationQuery{UserID: user.UserID, ConversationID: c.Param("id")}
	conv, err := queries.Ask[conversations.GetConversationQuery, dto.Conversation](c.Request.Context(), h.Queries, q)
	if err != nil {
		h.fail(c, err, "get conversation", "user_id", user.UserID, "conversation_id", q.ConversationID)
		return
	}
	respondOK(c, http.StatusOK, conv)
}

func (h ChatHandler) ListMessages(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := conversations.ListMessagesCommand{
		ViewerID:       user.UserID,
		ConversationID: c.Param("id"),
		Page:           parsePositiveInt(c.Query("page"), 1),
		Limit:          parsePositiveInt(c.Query("limit"), 0),
		Before:         strings.TrimSpace(c.Query("before")),
	}
	list, err := commands.Dispatch[conversations.ListMessagesCommand, dto.ChatMessageList](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.fail(c, err, "list messages", "user_id", user.UserID, "conversation_id", cmd.ConversationID)
		return
	}
	respondOK(c, http.StatusOK, list)
}

// SendMessage accepts JSON or multipart bodies. Multipart files are uploaded
// once the sender is known to be allowed to post, before the message is
// persisted.
func (h ChatHandler) SendMessage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	var req sendMessageRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		uploaded, content, err := h.readMultipart(c, user.UserID, conversationID)
		if err != nil {
			h.fail(c, err, "upload attachments", "user_id", user.UserID, "conversation_id", conversationID)
			return
		}
		req.Content = content
		req.Attachments = uploaded
	} else if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid payload")
		return
	}
	cmd := conversations.SendMessageCommand{
		SenderID:       user.UserID,
		ConversationID: conversationID,
		Content:        req.Content,
		Attachments:    req.Attachments,
		RequestKey:     strings.TrimSpace(c.GetHeader(idempotencyHeader)),
	}
	msg, err := commands.Dispatch[conversations.SendMessageCommand, dto.ChatMessage](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.fail(c, err, "send message", "user_id", user.UserID, "conversation_id", conversationID)
		return
	}
	respondOK(c, http.StatusCreated, msg)
}

func (h ChatHandler) MarkRead(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondMessage(c, http.StatusBadRequest, "invalid payload")
		return
	}
	cmd := conversations.MarkReadCommand{ReaderID: user.UserID, ConversationID: c.Param("id"), MessageIDs: req.MessageIDs}
	res, err := commands.Dispatch[conversations.MarkReadCommand, dto.ReadResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.fail(c, err, "mark read", "user_id", user.UserID, "conversation_id", cmd.ConversationID)
		return
	}
	respondOK(c, http.StatusOK, res)
}

func (h ChatHandler) Archive(c *gin.Context) { h.changeStatus(c, messaging.StatusArchived) }

func (h ChatHandler) Unarchive(c *gin.Context) { h.changeStatus(c, messaging.StatusActive) }

func (h ChatHandler) Block(c *gin.Context) { h.changeStatus(c, messaging.StatusBlocked) }

func (h ChatHandler) changeStatus(c *gin.Context, status messaging.ConversationStatus) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := conversations.ChangeStatusCommand{UserID: user.UserID, ConversationID: c.Param("id"), Status: string(status)}
	conv, err := commands.Dispatch[conversations.ChangeStatusCommand, dto.Conversation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.fail(c, err, "change status", "user_id", user.UserID, "conversation_id", cmd.ConversationID, "status", status)
		return
	}
	respondOK(c, http.StatusOK, conv)
}

func (h ChatHandler) DeleteMessage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := conversations.DeleteMessageCommand{UserID: user.UserID, ConversationID: c.Param("id"), MessageID: c.Param("messageId")}
	if _, err := commands.Dispatch[conversations.DeleteMessageCommand, struct{}](c.Request.Context(), h.Commands, cmd); err != nil {
		h.fail(c, err, "delete message", "user_id", user.UserID, "message_id", cmd.MessageID)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message_id": cmd.MessageID})
}

// authorizeUpload rejects outsiders and blocked conversations before any
// file reaches the uploader.
func (h ChatHandler) authorizeUpload(c *gin.Context, userID, conversationID string) error {
	conv, err := queries.Ask[conversations.GetConversationQuery, dto.Conversation](c.Request.Context(), h.Queries,
		conversations.GetConversationQuery{UserID: userID, ConversationID: conversationID})
	if err != nil {
		return err
	}
	if conv.Status == string(messaging.StatusBlocked) {
		return messaging.ErrConversationBlocked
	}
	return nil
}

func (h ChatHandler) readMultipart(c *gin.Context, userID, conversationID string) ([]dto.Attachment, string, error) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit*messaging.MaxAttachments+multipartMemory)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", errs.Wrap(errs.KindValidation, err, "invalid multipart body")
	}
	form := c.Request.MultipartForm
	content := strings.Join(form.Value["content"], "\n")
	files := form.File["files"]
	if len(files) == 0 {
		return nil, content, nil
	}
	if len(files) > messaging.MaxAttachments {
		return nil, "", messaging.ErrTooManyAttachments
	}
	if h.Uploader == nil {
		return nil, "", errs.New(errs.KindTransient, "uploads unavailable")
	}
	for _, fh := range files {
		if fh.Size > limit {
			return nil, "", errs.New(errs.KindValidation, fmt.Sprintf("%s exceeds %d bytes", fh.Filename, limit))
		}
	}
	if err := h.authorizeUpload(c, userID, conversationID); err != nil {
		return nil, "", err
	}
	namespace := "conversations/" + conversationID
	out := make([]dto.Attachment, 0, len(files))
	for _, fh := range files {
		att, err := h.upload(c, fh, namespace)
		if err != nil {
			return nil, "", err
		}
		out = append(out, att)
	}
	return out, content, nil
}

func (h ChatHandler) upload(c *gin.Context, fh *multipart.FileHeader, namespace string) (dto.Attachment, error) {
	file, err := fh.Open()
	if err != nil {
		return dto.Attachment{}, errs.Wrap(errs.KindValidation, err, "cannot read "+fh.Filename)
	}
	defer file.Close()

	contentType, err := detectContentType(file, fh.Header.Get("Content-Type"))
	if err != nil {
		return dto.Attachment{}, errs.Wrap(errs.KindValidation, err, "cannot read "+fh.Filename)
	}
	stored, err := h.Uploader.UploadFile(c.Request.Context(), policies.UploadInput{
		Reader:      file,
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: contentType,
	}, namespace)
	if err != nil {
		return dto.Attachment{}, err
	}
	mime := stored.MimeType
	if mime == "" {
		mime = contentType
	}
	return dto.Attachment{
		Kind:     string(messaging.KindFromMIME(mime)),
		URL:      stored.URL,
		Name:     stored.Name,
		Size:     stored.Size,
		MimeType: mime,
	}, nil
}

// detectContentType sniffs the payload when the client sent nothing useful,
// leaving the reader rewound.
func detectContentType(file io.ReadSeeker, declared string) (string, error) {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}
	m, err := mimetype.DetectReader(file)
	if err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return m.String(), nil
}

func (h ChatHandler) fail(c *gin.Context, err error, action string, attrs ...any) {
	if h.Logger != nil {
		level := slog.LevelWarn
		if statusFor(err) >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.Logger.Log(c.Request.Context(), level, "chat request failed", append([]any{"action", action, "error", err}, attrs...)...)
	}
	respondError(c, err)
}

func parsePositiveInt(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

var _ ChatHTTP = ChatHandler{}
