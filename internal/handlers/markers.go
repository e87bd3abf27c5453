package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/tendant/detect-archive-pipeline/internal/logging"
	"github.com/tendant/detect-archive-pipeline/internal/storage"
	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// MarkerHandler serves the positive store as map markers
type MarkerHandler struct {
	store  storage.Lister
	logger *zap.Logger
}

// NewMarkerHandler creates a handler over the positive store
func NewMarkerHandler(store storage.Lister, logger *zap.Logger) *MarkerHandler {
	return &MarkerHandler{
		store:  store,
		logger: logging.OrNop(logger),
	}
}

// Routes returns the marker API mux with permissive CORS
func (h *MarkerHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HandleHealth)
	mux.HandleFunc("GET /get_real_files", h.HandleListMarkers)
	mux.HandleFunc("GET /real_images/{filename}", h.HandleImage)
	return withCORS(mux)
}

// HandleListMarkers handles GET /get_real_files
func (h *MarkerHandler) HandleListMarkers(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list positive store", zap.Error(err))
		http.Error(w, "Failed to get file list.", http.StatusInternalServerError)
		return
	}

	markers := make([]pipeline.Marker, 0, len(keys))
	for _, key := range keys {
		if m, ok := pipeline.ParseMarker(key); ok {
			markers = append(markers, m)
		}
	}

	writeJSON(w, http.StatusOK, markers)
}

// HandleImage handles GET /real_images/{filename}. With width and height
// query parameters it returns a JPEG thumbnail instead of the original.
func (h *MarkerHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	width, height, thumb, err := thumbnailSize(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	meta, err := h.store.GetMetadata(r.Context(), filename)
	if err != nil {
		h.storeError(w, filename, err)
		return
	}

	rc, err := h.store.GetReader(r.Context(), filename)
	if err != nil {
		h.storeError(w, filename, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", meta.ContentType)

	if !thumb {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
		if _, err := io.Copy(w, rc); err != nil {
			h.logger.Warn("image response interrupted", zap.String("filename", filename), zap.Error(err))
		}
		return
	}

	data, err := RenderThumbnail(rc, width, height)
	if err != nil {
		h.logger.Error("thumbnail failed", zap.String("filename", filename), zap.Error(err))
		w.Header().Del("Content-Type")
		http.Error(w, "Failed to render thumbnail", http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (h *MarkerHandler) storeError(w http.ResponseWriter, filename string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "File not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrInvalidKey):
		http.Error(w, "Invalid filename", http.StatusBadRequest)
	default:
		h.logger.Error("failed to open image", zap.String("filename", filename), zap.Error(err))
		http.Error(w, "Failed to read image", http.StatusInternalServerError)
	}
}

// HandleHealth returns health status
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func thumbnailSize(r *http.Request) (int, int, bool, error) {
	q := r.URL.Query()
	ws, hs := q.Get("width"), q.Get("height")
	if ws == "" && hs == "" {
		return 0, 0, false, nil
	}

	width, err := strconv.Atoi(ws)
	if err != nil || width <= 0 {
		return 0, 0, false, errors.New("width must be a positive integer")
	}
	height, err := strconv.Atoi(hs)
	if err != nil || height <= 0 {
		return 0, 0, false, errors.New("height must be a positive integer")
	}
	return width, height, true, nil
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
