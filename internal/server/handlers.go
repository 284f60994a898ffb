package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"textfile-qa/internal/chromemdb"
	"textfile-qa/internal/helper"
	"textfile-qa/internal/llmservice"
	"textfile-qa/internal/models"
	"textfile-qa/internal/parser"
	"textfile-qa/internal/rag"
	"textfile-qa/internal/session"
)

// multipart parts above this size are spooled to disk
const maxFormMemory = 8 << 20

// Page redirects carry one of these codes instead of error text.
var errorMessages = map[string]string{
	"busy":             "The session is busy with another action. Try again when it finishes.",
	"no_index":         "Upload and process text files before asking a question.",
	"no_documents":     "Choose at least one file to upload.",
	"unsupported":      "That file type is not supported.",
	"invalid_encoding": "Uploaded files must be UTF-8 text.",
	"empty_text":       "The uploaded files contain no text.",
	"empty_question":   "Type a question first.",
	"too_large":        "The upload is too large.",
	"provenance":       "The stored index was built with different settings. Process the files again.",
	"failed":           "The request failed. Try again.",
}

func errorCode(err error) string {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, session.ErrBusy):
		return "busy"
	case errors.Is(err, chromemdb.ErrIndexNotFound), errors.Is(err, session.ErrNoIndex):
		return "no_index"
	case errors.Is(err, parser.ErrNoDocuments):
		return "no_documents"
	case errors.Is(err, parser.ErrUnsupportedFormat):
		return "unsupported"
	case errors.Is(err, parser.ErrInvalidEncoding):
		return "invalid_encoding"
	case errors.Is(err, rag.ErrEmptyText):
		return "empty_text"
	case errors.Is(err, rag.ErrEmptyQuestion):
		return "empty_question"
	case errors.As(err, &tooLarge):
		return "too_large"
	case errors.Is(err, chromemdb.ErrIndexProvenance):
		return "provenance"
	default:
		return "failed"
	}
}

type pageData struct {
	Session    *session.Session
	Error      string
	AnswerHTML template.HTML
	Busy       bool
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.rag.Session(r.Context(), sessionID(r))
	if err != nil {
		log.Error().Err(err).Msg("Error loading session")
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	data := pageData{
		Session: sess,
		Error:   errorMessages[r.URL.Query().Get("error")],
		Busy:    sess.State == session.StateProcessing || sess.State == session.StateAnswering,
	}
	if data.Error == "" && sess.State == session.StateError {
		data.Error = sess.LastError
	}
	if sess.LastAnswer != "" {
		var buf bytes.Buffer
		if err := s.markdown.Convert([]byte(sess.LastAnswer), &buf); err != nil {
			log.Warn().Err(err).Msg("Error rendering answer")
			data.AnswerHTML = template.HTML(template.HTMLEscapeString(sess.LastAnswer))
		} else {
			data.AnswerHTML = template.HTML(buf.String())
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("Error rendering page")
	}
}

// handleProcess, handleAsk and handleReset are the page actions. They redirect back to the
// page, which reads the outcome from the session; errors travel in the URL as a code.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.readUploads(w, r)
	if err == nil {
		_, err = s.rag.Process(r.Context(), sessionID(r), uploads)
	}
	s.redirectToPage(w, r, err)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	_, err := s.rag.Query(r.Context(), sessionID(r), r.FormValue("question"))
	s.redirectToPage(w, r, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	_, err := s.rag.Reset(r.Context(), sessionID(r))
	s.redirectToPage(w, r, err)
}

func (s *Server) redirectToPage(w http.ResponseWriter, r *http.Request, err error) {
	target := "/"
	if err != nil {
		logError(r, err)
		target += "?error=" + errorCode(err)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleAPIProcess(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.readUploads(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	sess, err := s.rag.Process(r.Context(), sessionID(r), uploads)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAPIAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	answer, err := s.rag.Query(r.Context(), sessionID(r), req.Question)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, answer)
}

type sessionResponse struct {
	Session *session.Session    `json:"session"`
	Index   *chromemdb.Manifest `json:"index"`
}

func (s *Server) handleAPISession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.rag.Session(ctx, sessionID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	manifest, err := s.rag.IndexManifest(ctx, sessionID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{Session: sess, Index: manifest})
}

func (s *Server) handleAPIReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.rag.Reset(r.Context(), sessionID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// readUploads reads every part of the multipart "files" field, in form order.
func (s *Server) readUploads(w http.ResponseWriter, r *http.Request) ([]models.Upload, error) {
	limit := s.cfg.Server.MaxUploadBytes
	if r.ContentLength > limit {
		return nil, &http.MaxBytesError{Limit: limit}
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, parser.ErrNoDocuments
		}
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	uploads := make([]models.Upload, 0, len(headers))
	for _, fh := range headers {
		name := helper.BaseName(fh.Filename)
		if !parser.IsSupportedExtension(name) {
			return nil, fmt.Errorf("%w: %s", parser.ErrUnsupportedFormat, name)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, models.Upload{Name: name, Data: data})
	}
	return uploads, nil
}

func statusForError(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, parser.ErrNoDocuments),
		errors.Is(err, parser.ErrInvalidEncoding),
		errors.Is(err, parser.ErrUnsupportedFormat),
		errors.Is(err, rag.ErrEmptyText),
		errors.Is(err, rag.ErrEmptyQuestion),
		errors.Is(err, chromemdb.ErrInvalidIndexID):
		return http.StatusBadRequest
	case errors.Is(err, chromemdb.ErrIndexNotFound),
		errors.Is(err, session.ErrNoIndex):
		return http.StatusNotFound
	case errors.Is(err, chromemdb.ErrIndexProvenance),
		errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads the status
		return http.StatusRequestTimeout
	case errors.Is(err, llmservice.ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func logError(r *http.Request, err error) {
	event := log.Warn()
	if statusForError(err) >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("session", sessionID(r)).Str("path", r.URL.Path).Msg("Request failed")
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, err)
	jsonError(w, err.Error(), statusForError(err))
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Error writing response")
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	respondJSON(w, code, map[string]string{"error": msg})
}
