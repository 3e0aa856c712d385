package posts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Seann-Moser/socialcast/generation"
	"github.com/Seann-Moser/socialcast/oauth/platform"
	"github.com/Seann-Moser/socialcast/publish"
	"github.com/Seann-Moser/socialcast/session"
)

// Handler exposes the Service over HTTP. Every route requires a session.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the handlers on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/generate-summary", h.GenerateSummary)
	r.Post("/approve-summary", h.ApproveSummary)
	r.Post("/generate-content", h.GenerateContent)
	r.Post("/approve-content", h.ApproveContent)
	r.Post("/update-content", h.UpdateContent)
	r.Post("/regenerate-text", h.RegenerateText)
	r.Post("/regenerate-image", h.RegenerateImage)
	r.Post("/update-image", h.UpdateImage)
	r.Post("/create-platform-records", h.CreatePlatformRecords)
	r.Post("/publish", h.Publish)
	r.Post("/publish-multiple", h.PublishMultiple)
	r.Get("/history", h.History)
	r.Get("/summary/{id}", h.Summary)
}

type summaryRequest struct {
	Topic       string  `json:"topic"`
	SummaryID   string  `json:"summary_id"`
	SummaryText *string `json:"summary_text"`
}

func (h *Handler) GenerateSummary(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := decode[summaryRequest](w, r)
	if !ok {
		return
	}
	sum, err := h.svc.GenerateSummary(r.Context(), userID, req.Topic)
	if err != nil {
		h.fail(w, "generate summary", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary_id":       sum.ID,
		"topic":            sum.Topic,
		"summary_text":     sum.Text,
		"summary_approved": sum.Approved,
		"generated":        true,
	})
}

func (h *Handler) ApproveSummary(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := decode[summaryRequest](w, r)
	if !ok {
		return
	}
	if req.SummaryID == "" {
		writeError(w, http.StatusBadRequest, "summary_id is required")
		return
	}
	sum, err := h.svc.ApproveSummary(r.Context(), userID, req.SummaryID, req.SummaryText)
	if err != nil {
		h.fail(w, "approve summary", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary_id": sum.ID, "summary": sum, "approved": true})
}

type contentRequest struct {
	SummaryID string   `json:"summary_id"`
	Platforms []string `json:"platforms"`
}

func (h *Handler) GenerateContent(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := decode[contentRequest](w, r)
	if !ok {
		return
	}
	if req.SummaryID == "" {
		writeError(w, http.StatusBadRequest, "summary_id is required")
		return
	}
	created, err := h.svc.GenerateContent(r.Context(), userID, req.SummaryID, req.Platforms)
	if err != nil {
		h.fail(w, "generate content", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary_id": req.SummaryID, "platforms": created, "generated": true})
}

type editRequest struct {
	PlatformID string  `json:"platform_id"`
	PostText   *string `json:"post_text"`
	ImageURL   *string `json:"image_url"`
}

func (h *Handler) ApproveContent(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "approve content", h.svc.ApproveContent)
}

func (h *Handler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "update content", h.svc.UpdateContent)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request, op string, apply func(ctx context.Context, userID, postID string, e Edit) (*PlatformPost, error)) {
	userID, req, ok := decode[editRequest](w, r)
	if !ok {
		return
	}
	if req.PlatformID == "" {
		writeError(w, http.StatusBadRequest, "platform_id is required")
		return
	}
	p, err := apply(r.Context(), userID, req.PlatformID, Edit{Text: req.PostText, ImageURL: req.ImageURL})
	if err != nil {
		h.fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"platform_id": p.ID, "platform": p})
}

type regenerateRequest struct {
	SummaryID   string `json:"summary_id"`
	PlatformID  string `json:"platform_id"`
	Suggestions string `json:"suggestions"`
	ContentType string `json:"content_type"`
}

func (h *Handler) RegenerateText(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := decode[regenerateRequest](w, r)
	if !ok {
		return
	}
	if req.SummaryID == "" {
		writeError(w, http.StatusBadRequest, "summary_id is required")
		return
	}
	if req.ContentType == "" {
		req.ContentType = "summary"
	}
	text, err := h.svc.Regenerate(r.Context(), userID, RegenerateInput{
		SummaryID:      req.SummaryID,
		PlatformPostID: req.PlatformID,
		ContentType:    req.ContentType,
		Suggestions:    req.Suggestions,
	})
	if err != nil {
		h.fail(w, "regenerate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary_id":          req.SummaryID,
		"platform_id":         req.PlatformID,
		"content_type":        req.ContentType,
		"regenerated_content": text,
		"success":             true,
	})
}

type imageRequest struct {
	SummaryID   string `json:"summary_id"`
	Suggestions string `json:"suggestions"`
	ImageURL    string `json:"image_url"`
}

func (h *Handler) RegenerateImage(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := decode[imageRequest](w, r)
	if !ok {
		return
	}
	if req.SummaryID == "" {
		writeError(w, http.StatusBadRequest, "summary_id is required")
		return
	}
	u, err := h.svc.RegenerateImage(r.Context(), userID, req.SummaryID, req.Suggestions)
	if err != nil {
		h.fail(w, "regenerate image", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary_id":            u.SummaryID,
		"regenerated_image_url": u.ImageURL,
		"updated_platforms":     len(u.Platforms),
		"platforms":             u.Platforms,
		"user_suggestions":      req.Suggestions,
		"success":               true,
	})
}

func (h *Handler) UpdateImage(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := decode[imageRequest](w, r)
	if !ok {
		return
	}
	if req.SummaryID == "" {
		writeError(w, http.StatusBadRequest, "summary_id is required")
		return
	}
	if req.ImageURL == "" {
		writeError(w, http.StatusBadRequest, "image_url is required")
		return
	}
	u, err := h.svc.UpdateImage(r.Context(), userID, req.SummaryID, req.ImageURL)
	if err != nil {
		h.fail(w, "update image", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary_id":        u.SummaryID,
		"image_url":         u.ImageURL,
		"updated_platforms": u.Platforms,
		"success":           true,
	})
}

// CreatePlatformRecords takes a JSON array of {summary_id, platform_name}.
func (h *Handler) CreatePlatformRecords(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := decode[[]RecordRequest](w, r)
	if !ok {
		return
	}
	created, err := h.svc.CreatePlatformRecords(r.Context(), userID, req)
	if err != nil {
		h.fail(w, "create platform records", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": created})
}

type publishRequest struct {
	PlatformID  string   `json:"platform_id"`
	PlatformIDs []string `json:"platform_ids"`
}

// Publish accepts platform_id in the body or, as older clients send it, in the query.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlatformID == "" {
		req.PlatformID = r.URL.Query().Get("platform_id")
	}
	if req.PlatformID == "" {
		writeError(w, http.StatusBadRequest, "platform_id is required")
		return
	}
	o, err := h.svc.Publish(r.Context(), userID, req.PlatformID)
	if err != nil {
		h.fail(w, "publish", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) PublishMultiple(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := decode[publishRequest](w, r)
	if !ok {
		return
	}
	results, err := h.svc.PublishMultiple(r.Context(), userID, req.PlatformIDs)
	if err != nil {
		h.fail(w, "publish multiple", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	threads, err := h.svc.History(r.Context(), userID)
	if err != nil {
		h.fail(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Thread(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	s, err := session.GetSession(r.Context())
	if err != nil || !s.SignedIn {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return s.UserID, true
}

func decode[T any](w http.ResponseWriter, r *http.Request) (string, T, bool) {
	var req T
	userID, ok := currentUser(w, r)
	if !ok {
		return "", req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", req, false
	}
	return userID, req, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("posts request failed", "operation", op, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var genErr *generation.Error
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyTopic),
		errors.Is(err, ErrNoSummaryText),
		errors.Is(err, ErrSummaryNotApproved),
		errors.Is(err, ErrNoPlatforms),
		errors.Is(err, ErrNotApproved),
		errors.Is(err, ErrNoPostText),
		errors.Is(err, ErrInvalidContentType),
		errors.Is(err, ErrInvalidImageURL),
		errors.Is(err, platform.ErrUnknownPlatform),
		errors.Is(err, publish.ErrInvalidContent):
		return http.StatusBadRequest
	case errors.As(err, &genErr), errors.Is(err, generation.ErrEmptyResult):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
