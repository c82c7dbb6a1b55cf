package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tavernlink/internal/auth"
	"github.com/tavernlink/internal/fileserver"
	"github.com/tavernlink/internal/metrics"
	"github.com/tavernlink/internal/middleware"
	"github.com/tavernlink/internal/narrator"
	"github.com/tavernlink/internal/presence"
	"github.com/tavernlink/internal/settings"
	"github.com/tavernlink/internal/store"
	"github.com/tavernlink/internal/ws"
)

// Deps — всё, что нужно обработчикам. Собирается в services/api.
type Deps struct {
	Store    *store.Store
	Auth     *auth.Service
	Hub      *ws.Hub
	Tracker  *presence.Tracker
	Settings *settings.Cache
	Files    *fileserver.Service
	Narrator *narrator.Client
	Metrics  *metrics.Metrics

	AllowedOrigins   []string
	RateLimitPerIP   int
	RateLimitPerUser int
	// AccessLog включает chi Logger (в тестах выключен).
	AccessLog bool
}

// NewRouter собирает HTTP API и точку подключения WebSocket.
func NewRouter(d Deps) http.Handler {
	authH := NewAuthHandler(d.Auth)
	userH := NewUserHandler(d.Store, d.Auth, d.Tracker, d.Settings)
	serverH := NewServerHandler(d.Store, d.Tracker)
	channelH := NewChannelHandler(d.Store, d.Tracker)
	msgH := NewMessageHandler(d.Store)
	fileH := NewFileHandler(d.Store, d.Files, d.Settings, d.Metrics)
	gifH := NewGifHandler(d.Store)
	adminH := NewAdminHandler(d.Settings)
	aiH := NewAIHandler(d.Store, d.Settings, d.Narrator)
	wsH := NewWSHandler(d.Hub, d.Auth, d.AllowedOrigins)
	configH := NewConfigHandler(d.Settings, d.Store.HistoryLimit())
	limiter := middleware.NewRateLimiter(d.RateLimitPerIP, d.RateLimitPerUser)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	if d.AccessLog {
		r.Use(chimw.Logger)
	}
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		compress := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compress.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
	r.Get("/ws", wsH.ServeWS)
	r.Get("/api/files/{name}", fileH.Serve)
	r.Get("/api/config", configH.Get)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		r.Post("/api/auth/register", authH.Register)
		r.Post("/api/auth/login", authH.Login)
		r.Post("/api/auth/reset-password", authH.ResetPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(d.Auth))
		r.Use(limiter.Handler)

		r.Get("/api/init", userH.Init)
		r.Get("/api/users", userH.List)
		r.Put("/api/users/{id}", userH.Update)
		r.Delete("/api/users/{id}", userH.Delete)

		r.Post("/api/servers", serverH.Create)
		r.Delete("/api/servers/{id}", serverH.Delete)
		r.Get("/api/servers/{id}/channels", serverH.Channels)
		r.Post("/api/servers/{id}/invite", serverH.Invite)
		r.Delete("/api/servers/{id}/members/{userId}", serverH.Kick)
		r.Post("/api/servers/{id}/leave", serverH.Leave)

		r.Post("/api/channels", channelH.Create)
		r.Post("/api/channels/direct", channelH.Direct)
		r.Delete("/api/channels/{id}", channelH.Delete)
		r.Get("/api/channels/{id}/messages", msgH.History)

		r.Post("/api/messages", msgH.Send)
		r.Delete("/api/messages/{id}", msgH.Delete)
		r.Post("/api/upload", fileH.Upload)

		r.Get("/api/gifs", gifH.List)
		r.Post("/api/gifs", gifH.Add)
		r.Delete("/api/gifs/{id}", gifH.Delete)

		r.Get("/api/ai/config", adminH.GetAIConfig)
		r.Post("/api/ai/generate", aiH.Generate)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/api/admin/settings", adminH.GetSettings)
			r.Put("/api/admin/settings", adminH.PutSettings)
			r.Put("/api/ai/config", adminH.PutAIConfig)
		})
	})
	return r
}
