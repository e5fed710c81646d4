package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/raysh454/coigate/internal/logging"
	"github.com/raysh454/coigate/internal/records"
	_ "github.com/raysh454/coigate/internal/server/docs"
)

// Server is the HTTP + WebSocket API surface: health checks and record
// ingestion.
type Server struct {
	cfg      Config
	records  *records.Service
	hub      *records.Hub
	uploads  string
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewServer wires the routes. hub may be nil, which disables the live feed.
func NewServer(cfg Config, svc *records.Service, hub *records.Hub, uploadDir string, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop{}
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = 10 << 20
	}

	s := &Server{
		cfg:     cfg,
		records: svc,
		hub:     hub,
		uploads: uploadDir,
		router:  chi.NewRouter(),
		logger:  logger.With(logging.Field{Key: "component", Value: "server"}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.originAllowed}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.forceHTTPSMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.limitBodyMiddleware)
		r.Post("/requests", s.handleSubmit)
		r.Post("/requests-mp", s.handleSubmitMultipart)
		r.Get("/requests", s.handleListRecords)
		r.Get("/ws/requests", s.handleRecordsWS)
	})

	if s.uploads != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploads))))
	}

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}
	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}
	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // allow streaming
	}
}
