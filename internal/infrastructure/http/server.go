// Package http exposes the review workflow over a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/0xcro3dile/redline-go/internal/adapters/snapshot"
	"github.com/0xcro3dile/redline-go/internal/domain/entities"
	"github.com/0xcro3dile/redline-go/internal/domain/ports"
	"github.com/0xcro3dile/redline-go/internal/domain/prefilter"
	"github.com/0xcro3dile/redline-go/internal/domain/textdiff"
	"github.com/0xcro3dile/redline-go/internal/domain/usecases"
	"github.com/0xcro3dile/redline-go/internal/infrastructure/logger"
)

// maxUpload bounds multipart uploads and raw response bodies.
const maxUpload = 32 << 20

// fallbackHeader is set when an upload was ignored and the previous document returned.
const fallbackHeader = "X-Redline-Fallback"

// Server is the HTTP server for the review API.
type Server struct {
	ingest *usecases.IngestUseCase
	review *usecases.ReviewUseCase
	store  ports.DocumentStore
	loader ports.DocumentLoader
	rules  ports.RuleSource
	differ *textdiff.Engine
	log    *logger.Logger
	addr   string
	router *mux.Router
}

// NewServer creates a new HTTP server.
func NewServer(
	ingest *usecases.IngestUseCase,
	review *usecases.ReviewUseCase,
	store ports.DocumentStore,
	loader ports.DocumentLoader,
	rules ports.RuleSource,
	addr string,
	log *logger.Logger,
) *Server {
	log = logger.OrNop(log).With("comp", "http")
	s := &Server{
		ingest: ingest,
		review: review,
		store:  store,
		loader: loader,
		rules:  rules,
		differ: textdiff.New(log),
		log:    log,
		addr:   addr,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	api.HandleFunc("/documents", s.handleUpload).Methods("POST")
	api.HandleFunc("/documents", s.handleListDocuments).Methods("GET")
	api.HandleFunc("/documents/current", s.handleCurrent).Methods("GET")
	api.HandleFunc("/documents/{id}", s.handleGetDocument).Methods("GET")
	api.HandleFunc("/documents/{id}", s.handleDeleteDocument).Methods("DELETE")
	api.HandleFunc("/documents/{id}/snapshot", s.handleSnapshot).Methods("GET")
	api.HandleFunc("/documents/{id}/review", s.handleReview).Methods("POST")
	api.HandleFunc("/documents/{id}/responses", s.handleResponse).Methods("POST")
	api.HandleFunc("/documents/{id}/findings", s.handleFindings).Methods("GET")

	api.HandleFunc("/findings/{id}/accept", s.handleAccept).Methods("POST")
	api.HandleFunc("/findings/{id}/reject", s.handleReject).Methods("POST")
	api.HandleFunc("/findings/{id}/diff", s.handleFindingDiff).Methods("GET")

	api.HandleFunc("/diff", s.handleDiff).Methods("POST")
	api.HandleFunc("/prefilter", s.handlePrefilter).Methods("POST")

	return r
}

// Handler returns the fully wrapped handler, as served by Start.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.loggingMiddleware(s.router))
}

// Start runs the HTTP server until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 600 * time.Second, // reviews wait on generation
	}

	s.log.Info("server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload ingests a multipart "file". An optional "format" field
// overrides the extension based choice.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}

	format := s.loader.FormatFor(header.Filename)
	if f := r.FormValue("format"); f != "" {
		format = entities.ParseSourceFormat(f)
	}

	doc, err := s.ingest.Ingest(r.Context(), entities.Source{
		Name:   header.Filename,
		Format: format,
		Data:   data,
	})
	if errors.Is(err, usecases.ErrKeptPrevious) && doc != nil {
		s.log.Warn("upload unreadable, kept previous document", "file", header.Filename, "err", err)
		w.Header().Set(fallbackHeader, "kept-previous")
		writeJSON(w, http.StatusOK, doc)
		return
	}
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	if docs == nil {
		docs = []entities.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	doc := s.ingest.Current()
	if doc == nil {
		writeError(w, http.StatusNotFound, usecases.ErrNoDocument.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	data, err := snapshot.Encode(doc)
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="snapshot.json"`)
	w.Write(data)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteDocument(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	findings, err := s.review.Review(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(findings))
}

// handleResponse parses a raw generation response posted as the body.
func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}
	findings, err := s.review.ParseResponse(r.Context(), mux.Vars(r)["id"], string(raw))
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(findings))
}

func (s *Server) handleFindings(w http.ResponseWriter, r *http.Request) {
	findings, err := s.review.Findings(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(findings))
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	res, err := s.review.Accept(r.Context(), mux.Vars(r)["id"], req.Text)
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	f, err := s.review.Reject(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleFindingDiff(w http.ResponseWriter, r *http.Request) {
	spans, err := s.review.Diff(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(spans))
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Original string `json:"original"`
		Proposed string `json:"proposed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(s.differ.Diff(req.Original, req.Proposed)))
}

func (s *Server) handlePrefilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rules := s.rules.Rules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": nonNil(prefilter.Rank(req.Text, rules)),
		"scores":     nonNil(prefilter.Scores(req.Text, rules)),
	})
}

// writeUsecaseError maps domain errors onto status codes.
func (s *Server) writeUsecaseError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ports.ErrNotFound),
		errors.Is(err, usecases.ErrNoDocument),
		errors.Is(err, usecases.ErrFindingNotFound):
		status = http.StatusNotFound
	case errors.Is(err, usecases.ErrFindingResolved):
		status = http.StatusConflict
	case errors.Is(err, snapshot.ErrInvalidSnapshot),
		errors.Is(err, usecases.ErrEmptySource),
		errors.Is(err, usecases.ErrNothingToApply),
		errors.Is(err, usecases.ErrTargetMissing):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
	}
	writeError(w, status, err.Error())
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}

// corsMiddleware sits outside the router so preflight requests are answered
// before method matching.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", fallbackHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isJSON reports whether the request declares a JSON body.
func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
