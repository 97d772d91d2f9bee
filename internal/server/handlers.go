package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/common"
	"github.com/safeflow-app/receipts-backend/internal/extract"
	"github.com/safeflow-app/receipts-backend/internal/llm"
	"github.com/safeflow-app/receipts-backend/internal/record"
)

// maxUploadBytes bounds the multipart form we are willing to buffer. Receipt
// photos from phones run 2-8 MB.
const maxUploadBytes = 16 << 20

// previewSampleText is parsed when a profile preview request carries no text
// of its own.
const previewSampleText = "Total: $45.67 Tax: $3.21 Cash: $50.00 01/15/2025"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "receipts-backend",
	})
}

// handleUploadReceipt accepts a multipart form with an "image" file part and a
// "userId" field, runs the vision extraction and the user's profile pipeline,
// and persists the assembled document. Parser degradation still returns 200;
// the document carries the error detail.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "expected multipart form with image and userId")
		return
	}

	userID := r.FormValue("userId")
	file, header, err := r.FormFile("image")
	if err == nil {
		defer func() { _ = file.Close() }()
	}

	v := common.NewValidator()
	v.Field("userId", userID, common.Required, common.MaxLength(128))
	if err != nil {
		v.Field("image", nil, common.Required)
	}
	if v.HasErrors() {
		s.writeError(w, http.StatusBadRequest, v.ErrorMessage())
		return
	}

	image, err := io.ReadAll(file)
	if err != nil || len(image) == 0 {
		s.writeError(w, http.StatusBadRequest, "could not read image upload")
		return
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("user %q not found", userID))
			return
		}
		s.logger.Error("server.upload.user_lookup_failed", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	baseline, rawContent, err := s.vision.ExtractBaseline(ctx, llm.ExtractRequest{
		Image:        image,
		ContentType:  header.Header.Get("Content-Type"),
		FilenameHint: header.Filename,
	})
	if err != nil {
		s.logger.Error("server.upload.vision_failed", "user_id", userID, "error", err)
		if errors.Is(err, common.ErrMalformedModelOutput) {
			s.writeError(w, http.StatusBadGateway, "vision model returned unusable output")
			return
		}
		s.writeError(w, http.StatusBadGateway, "vision extraction failed")
		return
	}

	result := s.pipeline.Run(string(rawContent), user.ExtractionProfile, baseline)
	doc := s.assembler.Assemble(result.Record, record.Meta{
		SubmitterID:  user.ID,
		BusinessName: user.BusinessName,
		Tier:         user.Tier,
		ProfileUsed:  result.ProfileUsed,
		ErrorDetail:  result.ErrorDetail,
	})

	saved, err := s.receipts.SaveReceipt(ctx, user.ID, doc)
	if err != nil {
		s.logger.Error("server.upload.save_failed", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save receipt")
		return
	}

	s.logger.Info("server.upload.ok",
		"user_id", user.ID,
		"receipt_id", saved.ID,
		"profile", result.ProfileUsed,
		"degraded", result.Degraded,
	)

	message := "Receipt processed successfully"
	if result.Degraded {
		message = "Receipt processed with degraded extraction"
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":                 true,
		"message":                 message,
		"data":                    doc,
		"document_id":             saved.ID,
		"extraction_profile_used": result.ProfileUsed,
	})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"profiles": s.pipeline.Profiles(),
	})
}

// handleProfilePreview runs a profile's parser over sample text so profile
// authors can check regex behavior without uploading an image. The text query
// parameter overrides the built-in sample.
func (s *Server) handleProfilePreview(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	text := r.URL.Query().Get("text")
	if text == "" {
		text = previewSampleText
	}

	result := s.pipeline.Run(text, constants.ProfileName(name), extract.Record{})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"profile_used": result.ProfileUsed,
		"requested":    name,
		"input":        text,
		"fields":       result.Record,
		"degraded":     result.Degraded,
	})
}

// handleExportReceipts streams the user's receipts as an XLSX attachment.
// Optional from/to query parameters (YYYY-MM-DD) bound the window.
func (s *Server) handleExportReceipts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	v := common.NewValidator()
	v.Field("userId", userID, common.Required, common.MaxLength(128))
	if v.HasErrors() {
		s.writeError(w, http.StatusBadRequest, v.ErrorMessage())
		return
	}

	from, err := parseDateParam(r.URL.Query().Get("from"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := parseDateParam(r.URL.Query().Get("to"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}

	out, err := s.exporter.ExportReceiptsXLSX(r.Context(), userID, from, to)
	if err != nil {
		s.logger.Error("server.export_failed", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	filename := fmt.Sprintf("receipts-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		s.logger.Error("server.export_write_failed", "error", err)
	}
}

func parseDateParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}
