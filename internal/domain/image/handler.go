package image

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/assemblage/assemblage-api/internal/pkg/imaging"
	"github.com/assemblage/assemblage-api/internal/pkg/response"
	"github.com/assemblage/assemblage-api/internal/pkg/validator"
)

// Handler handles image HTTP requests
type Handler struct {
	service        *Service
	maxUploadBytes int64
}

// NewHandler creates image handler
func NewHandler(service *Service, maxUploadBytes int64) *Handler {
	return &Handler{service: service, maxUploadBytes: maxUploadBytes}
}

// Upload handles POST /images: multipart upload of one raw image.
// Returns the committed record, or a structured rejection.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		response.BadRequest(w, "Invalid or oversized multipart body")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		response.BadRequest(w, "Missing 'image' file field")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(w, "Failed to read upload")
		return
	}

	rec, err := h.service.Ingest(r.Context(), raw, header.Filename)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	response.Created(w, rec)
}

// writeIngestError maps pipeline outcomes onto the response envelope
func (h *Handler) writeIngestError(w http.ResponseWriter, err error) {
	var dup *DuplicateError
	var proc *ProcessingError
	switch {
	case errors.As(err, &dup):
		response.Conflict(w, "DUPLICATE_IMAGE", err.Error(), map[string]string{
			"duplicate_of": dup.DuplicateOf,
		})
	case errors.Is(err, imaging.ErrDecode):
		response.UnprocessableEntity(w, "DECODE_ERROR", "Unrecognized or corrupt image data")
	case errors.Is(err, ErrNoFile):
		response.BadRequest(w, "No image data provided")
	case errors.As(err, &proc):
		response.Error(w, http.StatusInternalServerError, "PROCESSING_ERROR", err.Error())
	default:
		response.Error(w, http.StatusInternalServerError, "PROCESSING_ERROR", err.Error())
	}
}

// List handles GET /images
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.service.List())
}

// Get handles GET /images/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.service.Get(id)
	if err != nil {
		response.NotFound(w, "Image not found")
		return
	}
	response.OK(w, rec)
}

// Update handles PATCH /images/{id}: fills description/tags
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	rec, err := h.service.UpdateMetadata(id, req.Description, req.Tags)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "Image not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, rec)
}

// Delete handles DELETE /images/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := h.service.Delete(r.Context(), id)
	if err != nil {
		response.InternalError(w)
		return
	}
	if !removed {
		response.NotFound(w, "Image not found")
		return
	}
	response.NoContent(w)
}

// Sync handles POST /images/sync: reconcile index against storage
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.SyncWithStorage(r.Context())
	if err != nil {
		var corrupt *IndexCorruptionError
		if errors.As(err, &corrupt) {
			response.Error(w, http.StatusInternalServerError, "INDEX_CORRUPT", err.Error())
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, report)
}

// Merge handles POST /images/merge: merge an external index snapshot
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	var req MergeSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	stats, err := h.service.catalog.MergeExternal(req.Snapshot)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, stats)
}
