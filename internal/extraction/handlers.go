package extraction

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/zombor/cupom-extractor/internal/report"
	"github.com/zombor/cupom-extractor/internal/scanning"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200

	// multipartMemory is how much of a multipart body is held in memory before spilling to disk
	multipartMemory = 32 << 20

	msgTooLarge = "Erro: Arquivo muito grande. O tamanho máximo é 50MB."
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeText writes a plain-text body with the given status
func writeText(w http.ResponseWriter, code int, body string) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	io.WriteString(w, body)
}

// writeJSON writes a JSON body with status 200
func writeJSON(w http.ResponseWriter, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

// handleExtract accepts a multipart `file` or an `image_base64` field and
// answers with the report or an error line as plain text
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	upload, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.Warn("Upload too large", "limit", tooLarge.Limit)
			writeText(w, http.StatusRequestEntityTooLarge, report.Failure(msgTooLarge))
			return
		}
		// An unreadable form carries no usable payload; the pipeline
		// reports it as missing input
		slog.Warn("Error reading upload", "error", err)
		upload = Upload{}
	}

	text, err := s.service.Extract(r.Context(), upload)
	if err != nil {
		pe := AsPipelineError(err)
		writeText(w, pe.StatusCode(), report.Failure(pe.Message))
		return
	}
	writeText(w, http.StatusOK, text)
}

// readUpload pulls the payload out of either form encoding. A file part
// wins over an inline capture.
func readUpload(r *http.Request) (Upload, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return Upload{}, err
		}
		return inlineUpload(r), nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return Upload{}, err
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return inlineUpload(r), nil
		}
		return Upload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Upload{}, err
	}
	if len(data) == 0 {
		return inlineUpload(r), nil
	}
	return Upload{Filename: header.Filename, Data: data, Source: scanning.SourceMultipartFile}, nil
}

// inlineUpload reads the camera capture field; it is empty when absent
func inlineUpload(r *http.Request) Upload {
	if inline := r.FormValue("image_base64"); inline != "" {
		return Upload{Data: []byte(inline), Source: scanning.SourceInlineCapture}
	}
	return Upload{}
}

// handleStatus reports backend connectivity and journal counts
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.Status(r.Context()))
}

// handleListExtractions returns the newest journaled extractions
func (s *Server) handleListExtractions(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			corsError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRecentLimit)
	}

	entries, err := s.service.RecentExtractions(limit)
	if err != nil {
		slog.Error("Error listing extractions", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

// handleGetCapture serves a saved frame of a failed recognition
func (s *Server) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		corsError(w, "Capture name required", http.StatusBadRequest)
		return
	}
	data, err := s.service.Capture(name)
	if err != nil {
		corsError(w, "Capture not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
