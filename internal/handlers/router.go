package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ridematch/internal/auth"
	"ridematch/internal/metrics"
	ws "ridematch/internal/websocket"
	"ridematch/pkg/logger"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth      *AuthHandlers
	Users     *UserHandlers
	Friends   *FriendHandlers
	Rooms     *RoomHandlers
	GPS       *GPSHandlers
	Avatars   *AvatarHandlers
	WebSocket *WebSocketHandlers

	AuthService *auth.Service
	Registry    *ws.Registry
	DB          Pinger
	// Presence is the shared presence store; nil when running without one.
	Presence Pinger

	// LoginRateLimit is the per-IP budget for POST /login per minute.
	LoginRateLimit int
}

func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	r.Use(observe)

	r.Get("/healthz", health(h.DB, h.Presence, h.Registry))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", h.WebSocket.HandleWebSocket)

	if h.LoginRateLimit > 0 {
		r.With(httprate.LimitByIP(h.LoginRateLimit, time.Minute)).Post("/login", h.Auth.Login)
	} else {
		r.Post("/login", h.Auth.Login)
	}

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.Auth.Register)
		r.Get("/{id}", h.Users.GetUser)
		r.Get("/{id}/status", h.Users.Status)
		r.Group(func(r chi.Router) {
			r.Use(h.AuthService.Middleware)
			r.Patch("/{id}", h.Users.UpdateUser)
			r.Put("/{id}/hobbies", h.Users.SetHobbies)
			r.Post("/{id}/avatar", h.Avatars.Upload)
			r.Delete("/{id}/avatar", h.Avatars.Delete)
		})
	})
	r.Get("/avatars/{filename}", h.Avatars.Serve)

	r.Get("/hobbies", h.Users.ListHobbies)
	r.Post("/hobbies", h.Users.CreateHobby)

	r.Post("/friends", h.Friends.AddFriend)
	r.Delete("/friends", h.Friends.RemoveFriend)
	r.Get("/friends/{user_id}", h.Friends.ListFriends)

	r.Get("/chat_history/{room_id}", h.Rooms.History)
	r.Get("/rooms/{room_id}/active", h.Rooms.GetActiveUsers)

	r.Route("/gps", func(r chi.Router) {
		r.Post("/location", h.GPS.RecordLocation)
		r.Get("/locations/{user_id}", h.GPS.ListLocations)
		r.Get("/locations/{user_id}/date/{date}", h.GPS.LocationsByDate)
		r.Delete("/locations/{user_id}", h.GPS.DeleteLocations)

		r.Post("/routes", h.GPS.UploadRoute)
		r.Get("/routes/{user_id}", h.GPS.ListRoutes)
		r.Get("/routes/{user_id}/{date}", h.GPS.GetRoute)
		r.Delete("/routes/{user_id}/{date}", h.GPS.DeleteRoute)
	})

	return r
}

// observe records request latency by route pattern and logs each request.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTP(r.Method, route, strconv.Itoa(status), elapsed)

		logger.Debug().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("http request")
	})
}

// health fails only on the database. Presence falls back to status rows, so
// an unreachable presence store is reported without failing the check.
func health(db, presence Pinger, registry *ws.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		stats := registry.Stats()
		body := map[string]any{
			"status":   "ok",
			"sessions": stats.Sessions,
			"rooms":    stats.Rooms,
		}
		if presence != nil {
			body["presence"] = "ok"
			if err := presence.Ping(ctx); err != nil {
				logger.Warn().Err(err).Msg("health check: presence store unreachable")
				body["presence"] = err.Error()
			}
		}
		if err := db.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("health check: database unreachable")
			body["status"] = "degraded"
			body["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}
