package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/twinagents/internal/config"
	"github.com/kazz187/twinagents/pkg/cerr"
	"github.com/kazz187/twinagents/pkg/clog"
)

// Routes is one service's HTTP surface.
type Routes interface {
	Mount(r chi.Router)
	// Health returns extra fields for the /health body, next to "status".
	Health() map[string]any
}

type Server struct {
	server *http.Server
	env    *config.BaseEnv
	name   string
	routes Routes
}

func NewServer(env *config.BaseEnv, name string, routes Routes) *Server {
	return &Server{
		env:    env,
		name:   name,
		routes: routes,
	}
}

// Handler builds the full middleware stack: h2c, CORS, gRPC health and the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		clog.SlogChiMiddleware(
			clog.WithServiceName(s.name),
			clog.WithChiFilter(clog.DefaultHealthCheckFilter),
		),
		cerr.NewJSONResponseChiMiddleware(),
	)
	r.Method(http.MethodGet, "/health", cerr.JSONHandlerFunc(s.health))
	s.routes.Mount(r)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
	})

	mux := http.NewServeMux()
	mux.Handle("/", r)
	mux.Handle(grpchealth.NewHandler(
		grpchealth.NewStaticChecker(s.name),
		connect.WithInterceptors(
			clog.NewSlogConnectInterceptor(clog.WithConnectFilter(clog.DefaultConnectHealthCheckFilter)),
			cerr.NewConvertConnectErrorInterceptor(),
		),
	))

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins:   s.env.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(mux), &http2.Server{})
}

// ListenAndServe starts the HTTP server. ctx becomes the base context of every request.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "service", s.name, "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) health(_ *http.Request) (any, error) {
	body := map[string]any{"status": "ok"}
	for k, v := range s.routes.Health() {
		body[k] = v
	}
	return body, nil
}
