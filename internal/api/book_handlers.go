package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yuanying/epubrsvp/internal/book"
	"github.com/yuanying/epubrsvp/internal/layout"
	"github.com/yuanying/epubrsvp/internal/library"
	"github.com/yuanying/epubrsvp/internal/reader"
	"github.com/yuanying/epubrsvp/internal/settings"
	"github.com/yuanying/epubrsvp/internal/store"
)

// maxWindow bounds the words returned by one /words request.
const maxWindow = 5000

// bookDetail is a library entry with reading progress.
type bookDetail struct {
	book.Entry
	WordIndex      int    `json:"wordIndex"`
	CompletionRate int    `json:"completionRate"`
	TimeToRead     string `json:"timeToRead"`
	TimeToReadMs   int64  `json:"timeToReadMs"`
}

// failedImport is the API form of library.Failed.
type failedImport struct {
	File    string `json:"file"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type importResponse struct {
	BatchID  string            `json:"batchId"`
	Imported []book.Entry      `json:"imported"`
	Skipped  []library.Skipped `json:"skipped"`
	Failed   []failedImport    `json:"failed"`
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	success(w, s.library.Entries(), s.logger)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.entry(w, r)
	if !ok {
		return
	}
	idx := s.positions.Get(r.Context(), entry.ID)
	wpm := s.settings.Load(r.Context()).WordsPerMinute
	left := book.TimeToRead(idx, entry.TotalWords, wpm)
	success(w, bookDetail{
		Entry:          entry,
		WordIndex:      idx,
		CompletionRate: book.CompletionRate(idx, entry.TotalWords),
		TimeToRead:     left.Round(time.Second).String(),
		TimeToReadMs:   left.Milliseconds(),
	}, s.logger)
}

// handleImportBooks imports the files of a multipart "files" field.
func (s *Server) handleImportBooks(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		badRequest(w, "expected multipart form with files", s.logger)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		badRequest(w, "no files uploaded", s.logger)
		return
	}

	files := make([]library.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			badRequest(w, "failed to read "+h.Filename, s.logger)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			badRequest(w, "failed to read "+h.Filename, s.logger)
			return
		}
		files = append(files, library.File{
			Name:        h.Filename,
			ContentType: h.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	report, err := s.library.ImportFiles(r.Context(), files)
	if err != nil {
		internalError(w, err, s.logger)
		return
	}

	resp := importResponse{
		BatchID:  report.BatchID,
		Imported: report.Imported,
		Skipped:  report.Skipped,
		Failed:   make([]failedImport, 0, len(report.Failed)),
	}
	for _, f := range report.Failed {
		resp.Failed = append(resp.Failed, failedImport{File: f.File, Kind: f.Kind, Message: f.Message()})
	}
	status := http.StatusOK
	if len(report.Imported) > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp, s.logger)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.library.DeleteBooks(r.Context(), id)
	if err != nil {
		internalError(w, err, s.logger)
		return
	}
	if n == 0 {
		notFound(w, "book not found", s.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteBooks deletes every book named by an id query parameter.
func (s *Server) handleDeleteBooks(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["id"]
	if len(ids) == 0 {
		badRequest(w, "at least one id is required", s.logger)
		return
	}
	n, err := s.library.DeleteBooks(r.Context(), ids...)
	if err != nil {
		internalError(w, err, s.logger)
		return
	}
	success(w, map[string]int{"deleted": n}, s.logger)
}

func (s *Server) handleWords(w http.ResponseWriter, r *http.Request) {
	p, ok := s.payload(w, r)
	if !ok {
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		badRequest(w, err.Error(), s.logger)
		return
	}
	limit, err := intParam(r, "limit", 500)
	if err != nil {
		badRequest(w, err.Error(), s.logger)
		return
	}
	limit = min(limit, maxWindow)
	success(w, map[string]any{
		"offset": max(offset, 0),
		"total":  p.Len(),
		"words":  p.Window(offset, limit),
	}, s.logger)
}

// handleRows wraps the book at a width given either in characters or in
// pixels with the reader font.
func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	p, ok := s.payload(w, r)
	if !ok {
		return
	}
	width, ok := s.charWidth(w, r)
	if !ok {
		return
	}
	rows := layout.WrapParagraphs(p.Paragraphs, width)
	if rows == nil {
		rows = []layout.Row{}
	}
	resp := map[string]any{
		"width":      width,
		"rows":       rows,
		"lineCounts": layout.LineCounts(p.Paragraphs, width),
	}
	if r.URL.Query().Has("index") {
		idx, err := intParam(r, "index", 0)
		if err != nil {
			badRequest(w, err.Error(), s.logger)
			return
		}
		row, col := reader.Locate(rows, idx)
		resp["row"], resp["col"] = row, col
	}
	success(w, resp, s.logger)
}

type clickRequest struct {
	Width int `json:"width"`
	Row   int `json:"row"`
	Col   int `json:"col"`
}

// handleClick resolves a word clicked in the paginated view and stores it
// as the reading position.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	p, ok := s.payload(w, r)
	if !ok {
		return
	}
	var req clickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid request body", s.logger)
		return
	}
	rows := layout.WrapParagraphs(p.Paragraphs, req.Width)
	idx, err := reader.ResolveClick(rows, req.Row, req.Col)
	if err != nil {
		badRequest(w, err.Error(), s.logger)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.positions.Set(r.Context(), id, idx); err != nil {
		internalError(w, err, s.logger)
		return
	}
	success(w, map[string]int{"wordIndex": idx}, s.logger)
}

// handleFrame returns the RSVP frame at the stored position, or at index.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	p, ok := s.payload(w, r)
	if !ok {
		return
	}
	if p.Len() == 0 {
		badRequest(w, "book has no words", s.logger)
		return
	}
	id := chi.URLParam(r, "id")
	idx, err := intParam(r, "index", s.positions.Get(r.Context(), id))
	if err != nil {
		badRequest(w, err.Error(), s.logger)
		return
	}
	maxChars, err := intParam(r, "maxChars", 0)
	if err != nil {
		badRequest(w, err.Error(), s.logger)
		return
	}
	mode := reader.ModePause
	if r.URL.Query().Get("mode") == reader.ModePlay.String() {
		mode = reader.ModePlay
	}
	st := s.settings.Load(r.Context())
	success(w, reader.DeriveFrame(p.Words, p.Clamp(idx), mode, reader.FrameOptions{
		MaxChars:       maxChars,
		Middle:         st.RenderType == settings.RenderMiddle,
		ShowPrevious:   st.ShowPreviousOnPause,
		WordsPerMinute: st.WordsPerMinute,
	}), s.logger)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.entry(w, r)
	if !ok {
		return
	}
	success(w, map[string]int{"wordIndex": s.positions.Get(r.Context(), entry.ID)}, s.logger)
}

func (s *Server) handleSetPosition(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.entry(w, r)
	if !ok {
		return
	}
	var req struct {
		WordIndex *int `json:"wordIndex"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.WordIndex == nil {
		badRequest(w, "wordIndex is required", s.logger)
		return
	}
	idx := *req.WordIndex
	if idx < 0 || (entry.TotalWords > 0 && idx >= entry.TotalWords) {
		badRequest(w, fmt.Sprintf("wordIndex must be in [0, %d)", entry.TotalWords), s.logger)
		return
	}
	if err := s.positions.Set(r.Context(), entry.ID, idx); err != nil {
		internalError(w, err, s.logger)
		return
	}
	success(w, map[string]int{"wordIndex": idx}, s.logger)
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.library.Cover(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, library.ErrBookNotFound), errors.Is(err, store.ErrNotFound):
		notFound(w, "cover not found", s.logger)
		return
	case err != nil:
		internalError(w, err, s.logger)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("failed to write cover", "error", err)
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeError(w, http.StatusNotImplemented, "search is disabled", s.logger)
		return
	}
	bookID := chi.URLParam(r, "id")
	if bookID != "" {
		if _, ok := s.entry(w, r); !ok {
			return
		}
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		badRequest(w, "q is required", s.logger)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		badRequest(w, err.Error(), s.logger)
		return
	}
	hits, err := s.search.Search(r.Context(), bookID, q, limit)
	if err != nil {
		internalError(w, err, s.logger)
		return
	}
	success(w, hits, s.logger)
}

func (s *Server) handleFonts(w http.ResponseWriter, r *http.Request) {
	success(w, layout.Families(), s.logger)
}

// entry looks up the {id} book, writing 404 when it is unknown.
func (s *Server) entry(w http.ResponseWriter, r *http.Request) (book.Entry, bool) {
	entry, err := s.library.Entry(chi.URLParam(r, "id"))
	if err != nil {
		notFound(w, "book not found", s.logger)
		return book.Entry{}, false
	}
	return entry, true
}

// payload loads the {id} book's words, writing 404 when it is unknown.
func (s *Server) payload(w http.ResponseWriter, r *http.Request) (*book.Payload, bool) {
	p, err := s.library.Book(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, library.ErrBookNotFound):
		notFound(w, "book not found", s.logger)
		return nil, false
	case err != nil:
		internalError(w, err, s.logger)
		return nil, false
	}
	return p, true
}

// charWidth reads the row width from ?width= (characters) or ?px= (pixels,
// converted with the reader font and an optional ?margin=).
func (s *Server) charWidth(w http.ResponseWriter, r *http.Request) (int, bool) {
	q := r.URL.Query()
	if q.Has("width") {
		width, err := intParam(r, "width", 0)
		if err != nil {
			badRequest(w, err.Error(), s.logger)
			return 0, false
		}
		return width, true
	}
	if !q.Has("px") {
		badRequest(w, "width or px is required", s.logger)
		return 0, false
	}
	px, err := strconv.ParseFloat(q.Get("px"), 64)
	if err != nil {
		badRequest(w, "px must be a number", s.logger)
		return 0, false
	}
	margin, _ := strconv.ParseFloat(q.Get("margin"), 64)

	st := s.settings.Load(r.Context())
	m, err := layout.NewMeasurer(st.FontFamilyReader, float64(st.FontSizeReader))
	if err != nil {
		internalError(w, err, s.logger)
		return 0, false
	}
	defer m.Close()
	return m.CharsPerRow(px, margin), true
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
