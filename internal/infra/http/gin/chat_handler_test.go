package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentalhub/internal/app/commands"
	"rentalhub/internal/app/dto"
	"rentalhub/internal/app/handlers/conversations"
	"rentalhub/internal/app/middleware"
	"rentalhub/internal/app/policies"
	"rentalhub/internal/app/queries"
	"rentalhub/internal/infra/config"
	"rentalhub/internal/infra/obs"
	"rentalhub/internal/infra/security"
	"rentalhub/internal/infra/storage/memory"
)

type fakeUploader struct {
	inputs []policies.UploadInput
	bodies []string
	spaces []string
}

func (u *fakeUploader) UploadFile(_ context.Context, in policies.UploadInput, namespace string) (policies.UploadedFile, error) {
	data, err := io.ReadAll(in.Reader)
	if err != nil {
		return policies.UploadedFile{}, err
	}
	u.inputs = append(u.inputs, in)
	u.bodies = append(u.bodies, string(data))
	u.spaces = append(u.spaces, namespace)
	return policies.UploadedFile{URL: "https://files.test/" + namespace + "/" + in.Name, Name: in.Name, Size: int64(len(data)), MimeType: in.ContentType}, nil
}

type api struct {
	router   *gin.Engine
	verifier security.JWTVerifier
	uploader *fakeUploader
}

type envelopeOf[T any] struct {
	Status  string `json:"status"`
	Data    T      `json:"data"`
	Message string `json:"message"`
}

func newAPI(t *testing.T) *api {
	t.Helper()
	factory := memory.NewFactory()
	svc := &conversations.Service{UoWFactory: factory}
	cmdBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()
	conversations.Register(svc, cmdBus, queryBus)
	validator := middleware.NewStructValidator()

	verifier := security.NewJWTVerifier("test-secret", "")
	uploader := &fakeUploader{}
	handler := ChatHandler{
		Commands: middleware.ChainCommands(cmdBus,
			middleware.RequireActor(),
			middleware.Idempotency(memory.NewIdempotencyStore(time.Hour), nil),
			middleware.Validation(validator),
			middleware.Transaction(factory, nil),
		),
		Queries:        middleware.ChainQueries(queryBus, middleware.QueryRequireActor(), middleware.QueryValidation(validator)),
		Uploader:       uploader,
		MaxUploadBytes: 1 << 10,
	}
	router := NewRouter(config.Config{Env: "test"}, obs.Middleware{}, Handlers{
		Chat:           handler,
		AuthMiddleware: AuthMiddleware{Verifier: verifier}.Handle,
	})
	return &api{router: router, verifier: verifier, uploader: uploader}
}

func (a *api) do(t *testing.T, user, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	a.authorize(t, req, user)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *api) authorize(t *testing.T, req *http.Request, user string) {
	t.Helper()
	if user == "" {
		return
	}
	token, err := a.verifier.Issue(security.Principal{UserID: user}, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelopeOf[T] {
	t.Helper()
	var env envelopeOf[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func (a *api) createConversation(t *testing.T, creator string, others ...string) dto.Conversation {
	t.Helper()
	rec := a.do(t, creator, http.MethodPost, "/api/v1/conversations", map[string]any{"participant_ids": others, "property_id": "p1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[dto.Conversation](t, rec).Data
}

func TestRequiresAuthentication(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, "", http.MethodGet, "/api/v1/conversations", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decode[any](t, rec)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "authentication required", env.Message)
}

func TestCreateConversationIsIdempotentOnParticipantSet(t *testing.T) {
	a := newAPI(t)
	first := a.createConversation(t, "alice", "bob")
	assert.ElementsMatch(t, []string{"alice", "bob"}, first.Participants)

	rec := a.do(t, "bob", http.MethodPost, "/api/v1/conversations", map[string]any{"participant_ids": []string{"alice"}, "property_id": "p1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.ID, decode[dto.Conversation](t, rec).Data.ID)
}

func TestCreateConversationValidation(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, "alice", http.MethodPost, "/api/v1/conversations", map[string]any{"participant_ids": []string{"alice"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", decode[any](t, rec).Status)

	rec = a.do(t, "alice", http.MethodPost, "/api/v1/conversations", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGroupConversationWithoutContext(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, "alice", http.MethodPost, "/api/v1/conversations", map[string]any{"participant_ids": []string{"bob", "carol"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, "alice", http.MethodPost, "/api/v1/conversations", map[string]any{"participant_ids": []string{"bob", "carol"}, "group": true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, decode[dto.Conversation](t, rec).Data.Participants)
}

func TestSendAndListMessages(t *testing.T) {
	a := newAPI(t)
	conv := a.createConversation(t, "alice", "bob")
	path := "/api/v1/conversations/" + conv.ID + "/messages"

	rec := a.do(t, "alice", http.MethodPost, path, map[string]any{"content": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[dto.ChatMessage](t, rec).Data
	assert.Equal(t, "hi", sent.Content)
	assert.Equal(t, "SENT", sent.Status)

	rec = a.do(t, "bob", http.MethodGet, "/api/v1/conversations/"+conv.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[dto.Conversation](t, rec).Data.UnreadCount)

	rec = a.do(t, "bob", http.MethodGet, path+"?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.ChatMessageList](t, rec).Data
	require.Len(t, list.Items, 1)
	assert.Equal(t, sent.ID, list.Items[0].ID)
	assert.Equal(t, "READ", list.Items[0].Status)

	rec = a.do(t, "bob", http.MethodGet, "/api/v1/conversations/"+conv.ID, nil)
	assert.Equal(t, 0, decode[dto.Conversation](t, rec).Data.UnreadCount)
}

func TestSendMessageIdempotencyKey(t *testing.T) {
	a := newAPI(t)
	conv := a.createConversation(t, "alice", "bob")
	path := "/api/v1/conversations/" + conv.ID + "/messages"

	first := a.do(t, "alice", http.MethodPost, path, map[string]any{"content": "once"}, idempotencyHeader, "k1")
	second := a.do(t, "alice", http.MethodPost, path, map[string]any{"content": "once"}, idempotencyHeader, "k1")
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, decode[dto.ChatMessage](t, first).Data.ID, decode[dto.ChatMessage](t, second).Data.ID)

	rec := a.do(t, "bob", http.MethodGet, "/api/v1/conversations/"+conv.ID, nil)
	assert.Equal(t, 1, decode[dto.Conversation](t, rec).Data.UnreadCount)
}

func TestNonParticipantIsForbidden(t *testing.T) {
	a := newAPI(t)
	conv := a.createConversation(t, "alice", "bob")

	rec := a.do(t, "mallory", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", map[string]any{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, "mallory", http.MethodGet, "/api/v1/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkReadWholeConversation(t *testing.T) {
	a := newAPI(t)
	conv := a.createConversation(t, "alice", "bob")
	path := "/api/v1/conversations/" + conv.ID
	for _, text := range []string{"one", "two"} {
		require.Equal(t, http.StatusCreated, a.do(t, "alice", http.MethodPost, path+"/messages", map[string]any{"content": text}).Code)
	}

	rec := a.do(t, "bob", http.MethodPost, path+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[dto.ReadResult](t, rec).Data
	assert.Len(t, res.MessageIDs, 2)
	assert.Zero(t, res.UnreadCount)

	rec = a.do(t, "bob", http.MethodPost, path+"/read", map[string]any{"message_ids": res.MessageIDs})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[dto.ReadResult](t, rec).Data.MessageIDs)
}

func TestArchiveFiltersListing(t *testing.T) {
	a := newAPI(t)
	conv := a.createConversation(t, "alice", "bob")

	rec := a.do(t, "alice", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "archived", decode[dto.Conversation](t, rec).Data.Status)

	rec = a.do(t, "alice", http.MethodGet, "/api/v1/conversations", nil)
	assert.Empty(t, decode[dto.ConversationList](t, rec).Data.Items)

	rec = a.do(t, "alice", http.MethodGet, "/api/v1/conversations?status=archived", nil)
	assert.Len(t, decode[dto.ConversationList](t, rec).Data.Items, 1)

	rec = a.do(t, "alice", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/unarchive", nil)
	assert.Equal(t, "active", decode[dto.Conversation](t, rec).Data.Status)

	rec = a.do(t, "mallory", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/archive", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBlockedConversationRejectsSends(t *testing.T) {
	a := newAPI(t)
	conv := a.createConversation(t, "alice", "bob")
	require.Equal(t, http.StatusOK, a.do(t, "bob", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/block", nil).Code)

	rec := a.do(t, "alice", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", map[string]any{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteMessageHidesForCaller(t *testing.T) {
	a := newAPI(t)
	conv := a.createConversation(t, "alice", "bob")
	path := "/api/v1/conversations/" + conv.ID + "/messages"
	sent := decode[dto.ChatMessage](t, a.do(t, "alice", http.MethodPost, path, map[string]any{"content": "oops"})).Data

	rec := a.do(t, "alice", http.MethodDelete, path+"/"+sent.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Empty(t, decode[dto.ChatMessageList](t, a.do(t, "alice", http.MethodGet, path, nil)).Data.Items)
	assert.Len(t, decode[dto.ChatMessageList](t, a.do(t, "bob", http.MethodGet, path, nil)).Data.Items, 1)
}

func TestSendMessageMultipart(t *testing.T) {
	a := newAPI(t)
	conv := a.createConversation(t, "alice", "bob")

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("content", "see attached"))
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="files"; filename="scan.pdf"`},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4\n%test document\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	a.authorize(t, req, "alice")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := decode[dto.ChatMessage](t, rec).Data
	assert.Equal(t, "see attached", msg.Content)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "document", msg.Attachments[0].Kind)
	assert.Equal(t, "application/pdf", msg.Attachments[0].MimeType)
	assert.Equal(t, []string{"conversations/" + conv.ID}, a.uploader.spaces)
	assert.True(t, strings.HasPrefix(a.uploader.bodies[0], "%PDF"))
}

func TestSendMessageMultipartTooLarge(t *testing.T) {
	a := newAPI(t)
	conv := a.createConversation(t, "alice", "bob")

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("files", "big.bin")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 2<<10))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	a.authorize(t, req, "alice")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, a.uploader.inputs)
}

func TestStatusMapping(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, "alice", http.MethodGet, "/api/v1/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", decode[any](t, rec).Status)
}

func (a *api) sendFile(t *testing.T, user, convID string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("files", "note.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/"+convID+"/messages", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	a.authorize(t, req, user)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestMultipartUploadRequiresPermissionToSend(t *testing.T) {
	a := newAPI(t)
	conv := a.createConversation(t, "alice", "bob")

	rec := a.sendFile(t, "mallory", conv.ID)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, a.uploader.spaces)

	rec = a.sendFile(t, "alice", "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, a.uploader.spaces)

	require.Equal(t, http.StatusOK, a.do(t, "bob", http.MethodPost, "/api/v1/conversations/"+conv.ID+"/block", nil).Code)
	rec = a.sendFile(t, "alice", conv.ID)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, a.uploader.spaces)
}
