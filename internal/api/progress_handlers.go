package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/document"
	"github.com/JakeFAU/qa-archiver/internal/progress/sinks"
)

const (
	defaultItemLimit = 100
	maxItemLimit     = 1000
	progressTimeout  = 3 * time.Second
)

// ProgressHandler exposes read-only crawl progress and item table endpoints.
type ProgressHandler struct {
	items   crawler.ItemStore
	tally   *sinks.TallySink
	timeout time.Duration
	logger  *zap.Logger
}

// NewProgressHandler wires the item table, the progress tally and logger.
func NewProgressHandler(items crawler.ItemStore, tally *sinks.TallySink, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		items:   items,
		tally:   tally,
		timeout: progressTimeout,
		logger:  logger,
	}
}

// Progress handles GET /v1/progress. It returns the event tally of every run
// this process has seen and the last failure reason per item.
func (h *ProgressHandler) Progress(w http.ResponseWriter, _ *http.Request) {
	if h.tally == nil {
		writeError(w, http.StatusServiceUnavailable, "progress tally unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"progress": h.tally.Snapshot(),
		"failures": h.tally.Failures(),
	})
}

// ListItems handles GET /v1/items?status=&kind=&limit=&offset=. It returns
// {"items": [...], "total": n}, where total counts the filtered rows before
// paging, 400 for invalid filters and 503 when no item table is wired.
func (h *ProgressHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	if h.items == nil {
		writeError(w, http.StatusServiceUnavailable, "item table unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultItemLimit, maxItemLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	items, err := h.items.List(ctx)
	if err != nil {
		h.logger.Error("list items failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	matched := make([]itemDTO, 0, len(items))
	for _, item := range items {
		if filter.match(item) {
			matched = append(matched, toItemDTO(item))
		}
	}
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	writeJSON(w, http.StatusOK, map[string]any{
		"items": matched[offset:end],
		"total": total,
	})
}

// GetItem handles GET /v1/items/{kind}/{key}. It returns the item row with
// its document, 400 for an unknown kind and 404 for a missing row.
func (h *ProgressHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	if h.items == nil {
		writeError(w, http.StatusServiceUnavailable, "item table unavailable")
		return
	}
	kind, err := crawler.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := crawler.ItemID{Kind: kind, Key: chi.URLParam(r, "key")}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	item, err := h.items.Get(ctx, id)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		h.logger.Error("get item failed", zap.String("item", id.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"item":     toItemDTO(item),
		"document": item.Document,
	})
}

type itemFilter struct {
	status crawler.Status
	kind   crawler.Kind
}

func (f itemFilter) match(item crawler.Item) bool {
	if f.status != "" && item.Status != f.status {
		return false
	}
	if f.kind != "" && item.ID.Kind != f.kind {
		return false
	}
	return true
}

func parseFilter(r *http.Request) (itemFilter, error) {
	q := r.URL.Query()
	var f itemFilter
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := parseStatus(raw)
		if err != nil {
			return itemFilter{}, err
		}
		f.status = status
	}
	if raw := strings.TrimSpace(q.Get("kind")); raw != "" {
		kind, err := crawler.ParseKind(raw)
		if err != nil {
			return itemFilter{}, errors.New("invalid kind")
		}
		f.kind = kind
	}
	return f, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (crawler.Status, error) {
	switch s := crawler.Status(strings.ToLower(input)); s {
	case crawler.StatusPending, crawler.StatusFetching, crawler.StatusParsed, crawler.StatusDone, crawler.StatusFailed:
		return s, nil
	case "error", "failure":
		return crawler.StatusFailed, nil
	default:
		return "", errors.New("invalid status")
	}
}

func toItemDTO(item crawler.Item) itemDTO {
	dto := itemDTO{
		ID:        item.ID.String(),
		Kind:      string(item.ID.Kind),
		Key:       item.ID.Key,
		Status:    string(item.Status),
		Reason:    item.Reason,
		Depth:     item.Depth,
		SourceURL: item.SourceURL,
		UpdatedAt: item.UpdatedAt,
	}
	if item.Document != nil {
		dto.Title = item.Document.Title
		dto.Media = len(document.MediaRefs(item.Document))
	}
	for _, ref := range item.References {
		dto.References = append(dto.References, ref.String())
	}
	return dto
}

type itemDTO struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Key        string    `json:"key"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Depth      int       `json:"depth"`
	Title      string    `json:"title,omitempty"`
	SourceURL  string    `json:"source_url,omitempty"`
	References []string  `json:"references,omitempty"`
	Media      int       `json:"media"`
	UpdatedAt  time.Time `json:"updated_at"`
}
