package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernlink/internal/access"
	"github.com/tavernlink/internal/auth"
	"github.com/tavernlink/internal/envelope"
	"github.com/tavernlink/internal/fileserver"
	"github.com/tavernlink/internal/handler"
	"github.com/tavernlink/internal/metrics"
	"github.com/tavernlink/internal/model"
	"github.com/tavernlink/internal/narrator"
	"github.com/tavernlink/internal/presence"
	"github.com/tavernlink/internal/settings"
	"github.com/tavernlink/internal/storage/memory"
	"github.com/tavernlink/internal/store"
	"github.com/tavernlink/internal/ws"
)

const adminPassword = "dungeon-master"

type tavern struct {
	t         *testing.T
	srv       *httptest.Server
	st        *store.Store
	uploadDir string
}

func newTavern(t *testing.T) *tavern {
	t.Helper()
	ctx := context.Background()
	backend := memory.NewBackend().Repositories()
	sets, err := settings.Load(ctx, backend.Settings, 1)
	require.NoError(t, err)

	dir := access.NewDirectory()
	tracker := presence.NewTracker(dir, nil)
	m := metrics.New()
	hub := ws.NewHub(ws.Config{}, dir, nil, tracker, m)
	tracker.SetPublisher(hub)
	uploadDir := t.TempDir()
	files := fileserver.New(uploadDir)
	st := store.New(backend, dir, hub, store.Options{Blobs: files})
	hub.SetSubscriber(st)

	hash, err := auth.HashPassword(adminPassword)
	require.NoError(t, err)
	require.NoError(t, st.Seed(ctx, &model.User{Username: "admin", PasswordHash: hash}))
	require.NoError(t, st.LoadDirectory(ctx))

	attempts := memory.New()
	authSvc := auth.NewService(st, attempts, auth.NewTokens("test-secret-test-secret-test-secret", time.Hour, attempts))

	hubCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(hubCtx)
	}()

	srv := httptest.NewServer(handler.NewRouter(handler.Deps{
		Store:            st,
		Auth:             authSvc,
		Hub:              hub,
		Tracker:          tracker,
		Settings:         sets,
		Files:            files,
		Narrator:         narrator.New(5 * time.Second),
		Metrics:          m,
		AllowedOrigins:   []string{"*"},
		RateLimitPerIP:   10000,
		RateLimitPerUser: 10000,
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &tavern{t: t, srv: srv, st: st, uploadDir: uploadDir}
}

// do выполняет JSON-запрос и декодирует ответ в out (если не nil).
func (tv *tavern) do(method, path, token string, body, out any) int {
	tv.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(tv.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tv.srv.URL+path, rd)
	require.NoError(tv.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(tv.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(tv.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (tv *tavern) login(username, password string) auth.Session {
	tv.t.Helper()
	var sess auth.Session
	require.Equal(tv.t, http.StatusOK, tv.do(http.MethodPost, "/api/auth/login", "",
		auth.LoginRequest{Username: username, Password: password}, &sess))
	return sess
}

func (tv *tavern) register(username string) auth.Session {
	tv.t.Helper()
	var sess auth.Session
	require.Equal(tv.t, http.StatusCreated, tv.do(http.MethodPost, "/api/auth/register", "",
		auth.RegisterRequest{Username: username, Password: "secret-" + username}, &sess))
	require.NotEmpty(tv.t, sess.RecoveryKey)
	return sess
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type socket struct {
	t    *testing.T
	conn *websocket.Conn
}

func (tv *tavern) dial(token string) *socket {
	tv.t.Helper()
	url := "ws" + strings.TrimPrefix(tv.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(tv.t, err)
	tv.t.Cleanup(func() { conn.Close() })
	s := &socket{t: tv.t, conn: conn}
	s.sync() // подключение зарегистрировано в хабе
	return s
}

func (s *socket) send(msg map[string]any) {
	s.t.Helper()
	require.NoError(s.t, s.conn.WriteJSON(msg))
}

// until читает кадры до первого кадра типа typ и возвращает его вместе со всеми пропущенными.
func (s *socket) until(typ string) (frame, []frame) {
	s.t.Helper()
	var skipped []frame
	for {
		require.NoError(s.t, s.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var f frame
		require.NoError(s.t, s.conn.ReadJSON(&f), "waiting for %s", typ)
		if f.Type == typ {
			return f, skipped
		}
		skipped = append(skipped, f)
	}
}

// sync — барьер: всё, что хаб поставил в очередь подключения до него, будет прочитано.
// Возвращает прочитанные до барьера кадры.
func (s *socket) sync() []frame {
	s.t.Helper()
	s.send(map[string]any{"type": "leave_channel"})
	_, skipped := s.until("channel_left")
	return skipped
}

func (s *socket) join(channelID string) []model.Message {
	s.t.Helper()
	s.send(map[string]any{"type": "join_channel", "channel_id": channelID})
	f, _ := s.until("channel_history")
	var h ws.HistoryPayload
	require.NoError(s.t, json.Unmarshal(f.Payload, &h))
	require.Equal(s.t, channelID, h.ChannelID)
	return h.Messages
}

func ofType(frames []frame, typ string) []frame {
	var out []frame
	for _, f := range frames {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

type guild struct {
	admin, u, v auth.Session
	serverID    string
	hallID      string
}

// setupGuild: админ создаёт сообщество Guild с текстовым каналом hall и приглашает U; V — не участник.
func (tv *tavern) setupGuild() guild {
	tv.t.Helper()
	g := guild{admin: tv.login("admin", adminPassword), u: tv.register("ulric"), v: tv.register("vesna")}

	var created struct {
		Server  model.Community `json:"server"`
		Channel model.Channel   `json:"channel"`
	}
	require.Equal(tv.t, http.StatusCreated, tv.do(http.MethodPost, "/api/servers", g.admin.Token,
		map[string]string{"name": "Guild"}, &created))
	g.serverID = created.Server.ID

	var hall model.Channel
	require.Equal(tv.t, http.StatusCreated, tv.do(http.MethodPost, "/api/channels", g.admin.Token,
		map[string]string{"server_id": g.serverID, "name": "hall", "type": "text"}, &hall))
	g.hallID = hall.ID

	require.Equal(tv.t, http.StatusOK, tv.do(http.MethodPost, "/api/servers/"+g.serverID+"/invite", g.admin.Token,
		map[string]string{"user_id": g.u.User.ID}, nil))
	return g
}

func TestMessageDeliveredOnceToObserversOnly(t *testing.T) {
	tv := newTavern(t)
	g := tv.setupGuild()

	uSock := tv.dial(g.u.Token)
	vSock := tv.dial(g.v.Token)
	assert.Empty(t, uSock.join(g.hallID))

	// V не видит канал: вход отклоняется
	vSock.send(map[string]any{"type": "join_channel", "channel_id": g.hallID})
	errFrame, _ := vSock.until("error")
	assert.Contains(t, string(errFrame.Payload), "not visible")

	var sent model.Message
	require.Equal(t, http.StatusCreated, tv.do(http.MethodPost, "/api/messages", g.u.Token,
		map[string]string{"channel_id": g.hallID, "content": "hello"}, &sent))

	f, _ := uSock.until("message_created")
	var got model.Message
	require.NoError(t, json.Unmarshal(f.Payload, &got))
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, g.u.User.ID, got.AuthorID)
	assert.Empty(t, ofType(uSock.sync(), "message_created"), "delivered exactly once")

	assert.Empty(t, ofType(vSock.sync(), "message_created"))

	// V не может ни писать, ни читать историю
	assert.Equal(t, http.StatusForbidden, tv.do(http.MethodPost, "/api/messages", g.v.Token,
		map[string]string{"channel_id": g.hallID, "content": "psst"}, nil))
	assert.Equal(t, http.StatusForbidden, tv.do(http.MethodGet, "/api/channels/"+g.hallID+"/messages", g.v.Token, nil, nil))
}

func TestDeleteMessageBroadcastsSingleTombstone(t *testing.T) {
	tv := newTavern(t)
	g := tv.setupGuild()

	adminSock := tv.dial(g.admin.Token)
	uSock := tv.dial(g.u.Token)
	adminSock.join(g.hallID)
	uSock.join(g.hallID)

	var sent model.Message
	require.Equal(t, http.StatusCreated, tv.do(http.MethodPost, "/api/messages", g.u.Token,
		map[string]string{"channel_id": g.hallID, "content": "oops"}, &sent))
	require.Equal(t, http.StatusOK, tv.do(http.MethodDelete, "/api/messages/"+sent.ID, g.u.Token, nil, nil))
	// повторное удаление — no-op без нового события
	require.Equal(t, http.StatusOK, tv.do(http.MethodDelete, "/api/messages/"+sent.ID, g.u.Token, nil, nil))

	for _, s := range []*socket{adminSock, uSock} {
		frames := s.sync()
		deleted := ofType(frames, "message_deleted")
		require.Len(t, deleted, 1)
		var ev struct {
			ID        string `json:"id"`
			ChannelID string `json:"channel_id"`
		}
		require.NoError(t, json.Unmarshal(deleted[0].Payload, &ev))
		assert.Equal(t, sent.ID, ev.ID)
		assert.Equal(t, g.hallID, ev.ChannelID)
	}

	var history []model.Message
	require.Equal(t, http.StatusOK, tv.do(http.MethodGet, "/api/channels/"+g.hallID+"/messages", g.admin.Token, nil, &history))
	require.Len(t, history, 1)
	assert.True(t, history[0].IsDeleted)
	assert.Empty(t, history[0].Content)

	// чужое сообщение обычный пользователь удалить не может
	var other model.Message
	require.Equal(t, http.StatusCreated, tv.do(http.MethodPost, "/api/messages", g.admin.Token,
		map[string]string{"channel_id": g.hallID, "content": "rules"}, &other))
	assert.Equal(t, http.StatusForbidden, tv.do(http.MethodDelete, "/api/messages/"+other.ID, g.u.Token, nil, nil))
}

func TestKickRevokesVisibility(t *testing.T) {
	tv := newTavern(t)
	g := tv.setupGuild()

	uSock := tv.dial(g.u.Token)
	uSock.join(g.hallID)

	require.Equal(t, http.StatusOK, tv.do(http.MethodDelete,
		"/api/servers/"+g.serverID+"/members/"+g.u.User.ID, g.admin.Token, nil, nil))

	f, _ := uSock.until("removed_from_server")
	assert.JSONEq(t, `{"server_id":"`+g.serverID+`"}`, string(f.Payload))

	require.Equal(t, http.StatusCreated, tv.do(http.MethodPost, "/api/messages", g.admin.Token,
		map[string]string{"channel_id": g.hallID, "content": "after kick"}, nil))
	assert.Empty(t, ofType(uSock.sync(), "message_created"))

	assert.Equal(t, http.StatusForbidden, tv.do(http.MethodGet, "/api/servers/"+g.serverID+"/channels", g.u.Token, nil, nil))

	var boot model.Bootstrap
	require.Equal(t, http.StatusOK, tv.do(http.MethodGet, "/api/init", g.u.Token, nil, &boot))
	for _, s := range boot.Servers {
		assert.NotEqual(t, "Guild", s.Name)
	}
	for _, ch := range boot.Channels {
		assert.NotEqual(t, g.hallID, ch.ID)
	}
}

func TestInviteNotifiesOnlyTarget(t *testing.T) {
	tv := newTavern(t)
	g := tv.setupGuild()
	vSock := tv.dial(g.v.Token)
	uSock := tv.dial(g.u.Token)

	require.Equal(t, http.StatusOK, tv.do(http.MethodPost, "/api/servers/"+g.serverID+"/invite", g.admin.Token,
		map[string]string{"user_id": g.v.User.ID}, nil))
	f, _ := vSock.until("added_to_server")
	assert.Contains(t, string(f.Payload), g.serverID)
	assert.Empty(t, ofType(uSock.sync(), "added_to_server"))

	var boot model.Bootstrap
	require.Equal(t, http.StatusOK, tv.do(http.MethodGet, "/api/init", g.v.Token, nil, &boot))
	var names []string
	for _, s := range boot.Servers {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "Guild")
}

func TestBootstrapSnapshot(t *testing.T) {
	tv := newTavern(t)
	g := tv.setupGuild()
	tv.dial(g.u.Token)

	var boot model.Bootstrap
	require.Equal(t, http.StatusOK, tv.do(http.MethodGet, "/api/init", g.u.Token, nil, &boot))
	assert.Equal(t, g.u.User.ID, boot.User.ID)
	require.NotNil(t, boot.User.Presence)
	assert.True(t, boot.User.Presence.Online)
	assert.Len(t, boot.Users, 3)
	assert.NotEmpty(t, boot.GlobalKey)
	assert.Equal(t, 1, boot.UploadLimitMB)
	require.Len(t, boot.Servers, 1, "U sees Guild only, not the seeded community")
	assert.Equal(t, "Guild", boot.Servers[0].Name)

	assert.Equal(t, http.StatusUnauthorized, tv.do(http.MethodGet, "/api/init", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, tv.do(http.MethodGet, "/api/init", "garbage", nil, nil))
}

func TestDirectChannelIsIdempotent(t *testing.T) {
	tv := newTavern(t)
	x, y := tv.register("xander"), tv.register("yrsa")

	var a, b model.Channel
	require.Equal(t, http.StatusOK, tv.do(http.MethodPost, "/api/channels/direct", x.Token,
		map[string]string{"user_id": y.User.ID}, &a))
	require.Equal(t, http.StatusOK, tv.do(http.MethodPost, "/api/channels/direct", y.Token,
		map[string]string{"user_id": x.User.ID}, &b))
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, model.ChannelDirect, a.Kind)

	outsider := tv.register("zora")
	assert.Equal(t, http.StatusForbidden, tv.do(http.MethodGet, "/api/channels/"+a.ID+"/messages", outsider.Token, nil, nil))
}

func multipartBody(t *testing.T, channelID, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("channel_id", channelID))
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (tv *tavern) upload(token, channelID, name string, data []byte) (int, model.Message) {
	tv.t.Helper()
	body, ct := multipartBody(tv.t, channelID, name, data)
	req, err := http.NewRequest(http.MethodPost, tv.srv.URL+"/api/upload", body)
	require.NoError(tv.t, err)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(tv.t, err)
	defer resp.Body.Close()
	var m model.Message
	if resp.StatusCode == http.StatusCreated {
		require.NoError(tv.t, json.NewDecoder(resp.Body).Decode(&m))
	}
	return resp.StatusCode, m
}

func TestUploadRejectionLeavesNothing(t *testing.T) {
	tv := newTavern(t)
	g := tv.setupGuild()

	big := bytes.Repeat([]byte("a"), 2<<20)
	status, _ := tv.upload(g.u.Token, g.hallID, "tome.txt", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)

	var history []model.Message
	require.Equal(t, http.StatusOK, tv.do(http.MethodGet, "/api/channels/"+g.hallID+"/messages", g.u.Token, nil, &history))
	assert.Empty(t, history)
	entries, err := os.ReadDir(tv.uploadDir)
	if err == nil {
		assert.Empty(t, entries)
	}

	// админ поднимает лимит — тот же файл проходит без рестарта
	require.Equal(t, http.StatusOK, tv.do(http.MethodPut, "/api/admin/settings", g.admin.Token,
		map[string]int{"upload_limit_mb": 3}, nil))
	status, m := tv.upload(g.u.Token, g.hallID, "tome.txt", big)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, model.MessageFile, m.Kind)
	assert.Equal(t, "tome.txt", m.FileName)
	require.True(t, strings.HasPrefix(m.Content, fileserver.URLPrefix))

	resp, err := http.Get(tv.srv.URL + m.Content)
	require.NoError(t, err)
	served, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, len(big), len(served))

	// не участник не может загрузить в канал
	status, _ = tv.upload(g.v.Token, g.hallID, "note.txt", []byte("hi"))
	assert.Equal(t, http.StatusForbidden, status)
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	tv := newTavern(t)
	g := tv.setupGuild()
	assert.Equal(t, http.StatusForbidden, tv.do(http.MethodPut, "/api/admin/settings", g.u.Token,
		map[string]int{"upload_limit_mb": 50}, nil))
	assert.Equal(t, http.StatusForbidden, tv.do(http.MethodPut, "/api/ai/config", g.u.Token, model.DefaultAIConfig(), nil))

	var s struct {
		UploadLimitMB int `json:"upload_limit_mb"`
	}
	require.Equal(t, http.StatusOK, tv.do(http.MethodGet, "/api/admin/settings", g.admin.Token, nil, &s))
	assert.Equal(t, 1, s.UploadLimitMB)
}

func TestNarrationPostedAsSystemMessage(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"A hooded stranger enters."}}]}`))
	}))
	defer provider.Close()

	tv := newTavern(t)
	g := tv.setupGuild()
	cfg := model.DefaultAIConfig()
	cfg.Provider = model.AIProviderLocal
	cfg.BaseURL = provider.URL
	cfg.APIKey = "local-key"
	require.Equal(t, http.StatusOK, tv.do(http.MethodPut, "/api/ai/config", g.admin.Token, cfg, nil))

	var visible model.AIConfig
	require.Equal(t, http.StatusOK, tv.do(http.MethodGet, "/api/ai/config", g.u.Token, nil, &visible))
	assert.NotEqual(t, "local-key", visible.APIKey)

	uSock := tv.dial(g.u.Token)
	uSock.join(g.hallID)

	var out struct {
		Text    string         `json:"text"`
		Message *model.Message `json:"message"`
	}
	require.Equal(t, http.StatusOK, tv.do(http.MethodPost, "/api/ai/generate", g.admin.Token,
		map[string]string{"type": "plot", "channel_id": g.hallID}, &out))
	assert.Equal(t, "A hooded stranger enters.", out.Text)
	require.NotNil(t, out.Message)
	assert.Equal(t, model.MessageSystem, out.Message.Kind)
	assert.Equal(t, model.NarratorID, out.Message.AuthorID)

	f, _ := uSock.until("message_created")
	var m model.Message
	require.NoError(t, json.Unmarshal(f.Payload, &m))
	var boot model.Bootstrap
	require.Equal(t, http.StatusOK, tv.do(http.MethodGet, "/api/init", g.u.Token, nil, &boot))
	assert.Equal(t, "A hooded stranger enters.", envelope.Decrypt(m.Content, envelope.DeriveKey(boot.GlobalKey)))

	// обычный пользователь без флага рассказчика публиковать не может
	assert.Equal(t, http.StatusForbidden, tv.do(http.MethodPost, "/api/ai/generate", g.u.Token,
		map[string]string{"type": "plot", "channel_id": g.hallID}, nil))
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	tv := newTavern(t)
	url := "ws" + strings.TrimPrefix(tv.srv.URL, "http") + "/ws?token=forged"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestPasswordChangeRevokesOldTokens(t *testing.T) {
	tv := newTavern(t)
	u := tv.register("ulric")
	oldSock := tv.dial(u.Token)
	time.Sleep(1100 * time.Millisecond) // метка отзыва — с точностью до секунды

	var resp struct {
		Token string `json:"token"`
	}
	require.Equal(t, http.StatusOK, tv.do(http.MethodPut, "/api/users/"+u.User.ID, u.Token,
		map[string]string{"password": "brand-new-pass"}, &resp))
	require.NotEmpty(t, resp.Token)

	assert.Equal(t, http.StatusUnauthorized, tv.do(http.MethodGet, "/api/init", u.Token, nil, nil))
	assert.Equal(t, http.StatusOK, tv.do(http.MethodGet, "/api/init", resp.Token, nil, nil))
	tv.login("ulric", "brand-new-pass")

	// подключение со старым токеном закрывается сервером
	require.NoError(t, oldSock.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var err error
	for err == nil {
		_, _, err = oldSock.conn.ReadMessage()
	}
	var netErr net.Error
	assert.False(t, errors.As(err, &netErr) && netErr.Timeout(), "socket must be closed, not idle")

	newSock := tv.dial(resp.Token)
	require.NotNil(t, newSock)
}

func TestDeleteAccountClosesSockets(t *testing.T) {
	tv := newTavern(t)
	g := tv.setupGuild()
	vSock := tv.dial(g.v.Token)
	adminSock := tv.dial(g.admin.Token)

	require.Equal(t, http.StatusOK, tv.do(http.MethodDelete, "/api/users/"+g.v.User.ID, g.v.Token, nil, nil))

	f, _ := adminSock.until("user_deleted")
	assert.Contains(t, string(f.Payload), g.v.User.ID)

	// сокет V получает user_deleted и закрывается
	require.NoError(t, vSock.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var err error
	for err == nil {
		_, _, err = vSock.conn.ReadMessage()
	}
	assert.Equal(t, http.StatusUnauthorized, tv.do(http.MethodGet, "/api/init", g.v.Token, nil, nil))

	// последнего админа удалить нельзя
	assert.Equal(t, http.StatusConflict, tv.do(http.MethodDelete, "/api/users/"+g.admin.User.ID, g.admin.Token, nil, nil))
}

func TestPublicConfigFollowsSettings(t *testing.T) {
	tv := newTavern(t)
	admin := tv.login("admin", adminPassword)

	var cfg struct {
		HistoryLimit     int      `json:"history_limit"`
		UploadLimitMB    int      `json:"upload_limit_mb"`
		UploadExtensions []string `json:"upload_extensions"`
	}
	require.Equal(t, http.StatusOK, tv.do(http.MethodGet, "/api/config", "", nil, &cfg))
	assert.Equal(t, store.DefaultHistoryLimit, cfg.HistoryLimit)
	assert.Equal(t, 1, cfg.UploadLimitMB)
	assert.Contains(t, cfg.UploadExtensions, ".png")

	require.Equal(t, http.StatusOK, tv.do(http.MethodPut, "/api/admin/settings", admin.Token,
		map[string]int{"upload_limit_mb": 7}, nil))
	require.Equal(t, http.StatusOK, tv.do(http.MethodGet, "/api/config", "", nil, &cfg))
	assert.Equal(t, 7, cfg.UploadLimitMB)
}
