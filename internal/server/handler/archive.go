package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// ArchiveHandler serves the JSONL objects the archiver writes: retired audit
// trails and resolved-market snapshots. Read-only; archives are retained,
// never deleted.
type ArchiveHandler struct {
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(reader domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		reader: reader,
		logger: logger,
	}
}

type archiveInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// List returns metadata for stored archive objects, optionally narrowed by a
// key prefix.
// GET /api/archives?prefix=archive/audit
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))

	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	out := make([]archiveInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, archiveInfo{
			Key:          info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"archives": out,
		"total":    len(out),
	})
}

// Get streams a single archive object.
// GET /api/archives/{key...}
func (h *ArchiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" || strings.Contains(key, "..") {
		writeError(w, http.StatusBadRequest, "invalid archive key")
		return
	}

	body, err := h.reader.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get archive failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
