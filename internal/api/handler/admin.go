package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vidproxy/vidproxy/internal/domain/model"
	"github.com/vidproxy/vidproxy/internal/domain/repository"
	"github.com/vidproxy/vidproxy/internal/usecase"
)

// AdminHandler exposes purge and variant-listing endpoints.
type AdminHandler struct {
	purge *usecase.PurgeService
	index repository.VariantIndex
}

// NewAdminHandler creates a new AdminHandler. index may be nil when the
// variant index is disabled; listing then returns 404.
func NewAdminHandler(purge *usecase.PurgeService, index repository.VariantIndex) *AdminHandler {
	return &AdminHandler{purge: purge, index: index}
}

type PurgeRequestBody struct {
	Keys []string `json:"keys,omitempty"`
	Tags []string `json:"tags,omitempty"`
}

type PurgeResponse struct {
	ID string `json:"id"`
}

// Purge handles POST /admin/purge.
func (h *AdminHandler) Purge(w http.ResponseWriter, r *http.Request) {
	var body PurgeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, r, http.StatusBadRequest, string(model.KindBadRequest), "invalid JSON body")
		return
	}
	if len(body.Keys) == 0 && len(body.Tags) == 0 {
		Error(w, r, http.StatusBadRequest, string(model.KindBadRequest), "purge requires keys or tags")
		return
	}

	req := repository.PurgeRequest{
		ID:   uuid.New(),
		Keys: body.Keys,
		Tags: body.Tags,
	}
	if err := h.purge.Execute(r.Context(), req); err != nil {
		RenderError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, PurgeResponse{ID: req.ID.String()})
}

type VariantListItem struct {
	CacheKey     string    `json:"cacheKey"`
	Path         string    `json:"path"`
	Derivative   string    `json:"derivative,omitempty"`
	Mode         string    `json:"mode"`
	ContentType  string    `json:"contentType"`
	TotalSize    int64     `json:"totalSize"`
	ChunkCount   int       `json:"chunkCount"`
	CacheVersion int       `json:"cacheVersion"`
	Tags         []string  `json:"tags,omitempty"`
	SourceType   string    `json:"sourceType,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type VariantListResponse struct {
	Variants []VariantListItem `json:"variants"`
}

// ListVariants handles GET /admin/variants?path=prefix.
func (h *AdminHandler) ListVariants(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		Error(w, r, http.StatusNotFound, string(model.KindNotFound), "variant index is not configured")
		return
	}

	prefix := r.URL.Query().Get("path")
	entries, err := h.index.ListByPath(r.Context(), prefix)
	if err != nil {
		RenderError(w, r, err)
		return
	}

	items := make([]VariantListItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, VariantListItem{
			CacheKey:     e.CacheKey,
			Path:         e.Path,
			Derivative:   e.Derivative,
			Mode:         e.Mode,
			ContentType:  e.ContentType,
			TotalSize:    e.TotalSize,
			ChunkCount:   e.ChunkCount,
			CacheVersion: e.CacheVersion,
			Tags:         e.Tags,
			SourceType:   e.SourceType,
			CreatedAt:    e.CreatedAt,
		})
	}

	JSON(w, http.StatusOK, VariantListResponse{Variants: items})
}
