package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/safeflow-app/receipts-backend/internal/export"
	"github.com/safeflow-app/receipts-backend/internal/extract"
	"github.com/safeflow-app/receipts-backend/internal/llm"
	"github.com/safeflow-app/receipts-backend/internal/record"
	"github.com/safeflow-app/receipts-backend/internal/repository"
)

// Server wires the HTTP surface to the extraction pipeline and its
// collaborators.
type Server struct {
	logger    *slog.Logger
	vision    llm.FieldExtractor
	users     repository.UserRepository
	receipts  repository.ReceiptRepository
	pipeline  *extract.Pipeline
	assembler *record.Assembler
	exporter  *export.Service
}

func New(
	logger *slog.Logger,
	vision llm.FieldExtractor,
	users repository.UserRepository,
	receipts repository.ReceiptRepository,
	pipeline *extract.Pipeline,
	assembler *record.Assembler,
	exporter *export.Service,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:    logger,
		vision:    vision,
		users:     users,
		receipts:  receipts,
		pipeline:  pipeline,
		assembler: assembler,
		exporter:  exporter,
	}
}

// Router builds the chi router with CORS and the standard middleware stack.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/upload-receipt", s.handleUploadReceipt)
	r.Get("/profiles", s.handleListProfiles)
	r.Get("/profiles/{name}/preview", s.handleProfilePreview)
	r.Get("/receipts/export", s.handleExportReceipts)

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("server.write_json_failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
