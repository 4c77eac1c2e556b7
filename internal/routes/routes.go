package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/handlers"
	"github.com/AnshRaj112/sparklink-backend/internal/middleware"
)

// Options selects the middleware stack.
type Options struct {
	Production        bool
	AllowedHost       string
	AllowedOrigins    []string
	TrustProxy        bool
	StreamRequireAuth bool
	// Redis enables the fixed-window limiter outside production. Nil skips it.
	Redis *redis.Client
}

type Handlers struct {
	Auth    *middleware.Authenticator
	User    *handlers.UserHandler
	Post    *handlers.PostHandler
	Story   *handlers.StoryHandler
	Message *handlers.MessageHandler
	Stream  *handlers.StreamHandler
	Webhook *handlers.WebhookHandler
}

func NewRouter(opts Options, h Handlers, log *zap.SugaredLogger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(log, opts.TrustProxy))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(opts.AllowedOrigins))

	// Production: security headers, host check, per-IP token bucket.
	// Otherwise the Redis limiter when Redis is configured.
	if opts.Production {
		for _, mw := range middleware.ProductionSecurity(opts.AllowedHost, opts.TrustProxy) {
			r.Use(mw)
		}
	} else if opts.Redis != nil {
		r.Use(middleware.RedisRateLimit(opts.Redis, opts.TrustProxy, log))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	SetupRoutes(r, opts, h)
	return r
}

func SetupRoutes(r chi.Router, opts Options, h Handlers) {
	requireAuth := h.Auth.RequireAuth

	r.Route("/api/user", func(r chi.Router) {
		// Public profile lookup
		r.Post("/profiles", h.User.Profiles)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/data", h.User.Data)
			r.Post("/sync-from-clerk", h.User.Sync)
			r.Post("/update", h.User.Update)
			r.Post("/discover", h.User.Discover)
			r.Post("/follow", h.User.Follow)
			r.Post("/unfollow", h.User.Unfollow)
			r.Post("/connect", h.User.Connect)
			r.Post("/accept", h.User.Accept)
			r.Get("/connections", h.User.Connections)
			r.Get("/recent-messages", h.Message.Recent)
		})
	})

	r.Route("/api/post", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/add", h.Post.Add)
		r.Get("/feed", h.Post.Feed)
		r.Post("/like", h.Post.Like)
	})

	r.Route("/api/story", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/create", h.Story.Create)
		r.Get("/get", h.Story.Get)
		r.Post("/view", h.Story.View)
	})

	r.Route("/api/message", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.With(middleware.MessageSendRateLimit(opts.TrustProxy)).Post("/send", h.Message.Send)
			r.Post("/get", h.Message.Thread)
			r.Get("/recent-messages", h.Message.Recent)
		})

		// Live streams. Static paths above take precedence over {userId}.
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.StreamAuth(opts.StreamRequireAuth))
			r.Get("/ws/{userId}", h.Stream.WebSocket)
			r.Get("/{userId}", h.Stream.SSE)
		})
	})

	r.Post("/api/webhooks/clerk", h.Webhook.Clerk)
}
