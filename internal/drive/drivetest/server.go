// Package drivetest provides an in-memory Drive v3 server for tests.
package drivetest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marksync/internal/drive"
)

type entry struct {
	file    drive.File
	trashed bool
	content []byte
}

// Server emulates the subset of the Drive API used by drive.Client.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string]*entry
	nextID   int
	token    string
	failures []int
	requests map[string]int
	epoch    time.Time
}

// NewServer starts a fake Drive. Close it with Close().
func NewServer() *Server {
	s := &Server{
		files:    make(map[string]*entry),
		requests: make(map[string]int),
		epoch:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	r := chi.NewRouter()
	r.Use(s.intercept)
	r.Get("/drive/v3/files", s.handleSearch)
	r.Post("/drive/v3/files", s.handleCreateMetadata)
	r.Get("/drive/v3/files/{id}", s.handleRead)
	r.Post("/upload/drive/v3/files", s.handleCreateMultipart)
	r.Patch("/upload/drive/v3/files/{id}", s.handleUpdate)

	s.Server = httptest.NewServer(r)
	return s
}

// RequireToken makes every request without "Bearer <token>" fail with 401.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// FailNext queues status codes returned by the next requests, in order.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

// Requests returns how many requests hit a route ("GET search", "POST create",
// "POST upload", "PATCH update", "GET read").
func (s *Server) Requests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[route]
}

// Seed stores a file directly and returns its metadata.
func (s *Server) Seed(meta drive.Metadata, content []byte) drive.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(meta, content).file
}

// Trash marks a file as trashed.
func (s *Server) Trash(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.files[id]; ok {
		e.trashed = true
	}
}

// Files returns non-trashed files with the given name, oldest first.
func (s *Server) Files(name string) []drive.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []drive.File
	for _, e := range s.sortedLocked() {
		if !e.trashed && e.file.Name == name {
			out = append(out, e.file)
		}
	}
	return out
}

// Content returns the stored content of a file.
func (s *Server) Content(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.files[id]; ok {
		return append([]byte(nil), e.content...)
	}
	return nil
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[routeName(r)]++
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			s.mu.Unlock()
			writeError(w, http.StatusUnauthorized, "Invalid Credentials")
			return
		}
		var status int
		if len(s.failures) > 0 {
			status = s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func routeName(r *http.Request) string {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/drive/v3/files":
		return "GET search"
	case r.Method == http.MethodGet:
		return "GET read"
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/"):
		return "POST upload"
	case r.Method == http.MethodPost:
		return "POST create"
	case r.Method == http.MethodPatch:
		return "PATCH update"
	default:
		return r.Method + " " + r.URL.Path
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	match, err := parseQuery(r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	files := make([]drive.File, 0)
	for _, e := range s.sortedLocked() {
		if match(e) {
			files = append(files, e.file)
		}
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"files": files})
}

func (s *Server) handleCreateMetadata(w http.ResponseWriter, r *http.Request) {
	var meta drive.Metadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	file := s.insertLocked(meta, nil).file
	s.mu.Unlock()
	writeJSON(w, file)
}

func (s *Server) handleCreateMultipart(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("uploadType") != "multipart" {
		writeError(w, http.StatusBadRequest, "unsupported uploadType")
		return
	}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/related" {
		writeError(w, http.StatusBadRequest, "expected multipart/related body")
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing metadata part")
		return
	}
	var meta drive.Metadata
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, "invalid metadata part")
		return
	}
	mediaPart, err := mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing media part")
		return
	}
	content, err := io.ReadAll(mediaPart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable media part")
		return
	}

	s.mu.Lock()
	file := s.insertLocked(meta, content).file
	s.mu.Unlock()
	writeJSON(w, file)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("uploadType") != "media" {
		writeError(w, http.StatusBadRequest, "unsupported uploadType")
		return
	}
	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	e, ok := s.files[chi.URLParam(r, "id")]
	var file drive.File
	if ok {
		e.content = content
		e.file.ModifiedTime = e.file.ModifiedTime.Add(time.Second)
		file = e.file
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	writeJSON(w, file)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	e, ok := s.files[chi.URLParam(r, "id")]
	var content []byte
	var file drive.File
	if ok {
		content = append([]byte(nil), e.content...)
		file = e.file
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if r.URL.Query().Get("alt") != "media" {
		writeJSON(w, file)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(content)
}

func (s *Server) insertLocked(meta drive.Metadata, content []byte) *entry {
	s.nextID++
	created := s.epoch.Add(time.Duration(s.nextID) * time.Second)
	mimeType := meta.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	e := &entry{
		file: drive.File{
			ID:           fmt.Sprintf("file-%d", s.nextID),
			Name:         meta.Name,
			MimeType:     mimeType,
			Parents:      append([]string(nil), meta.Parents...),
			CreatedTime:  created,
			ModifiedTime: created,
		},
		content: content,
	}
	s.files[e.file.ID] = e
	return e
}

func (s *Server) sortedLocked() []*entry {
	out := make([]*entry, 0, len(s.files))
	for _, e := range s.files {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].file.CreatedTime.Before(out[j].file.CreatedTime)
	})
	return out
}

// parseQuery understands the clauses produced by drive.Query.
func parseQuery(q string) (func(*entry) bool, error) {
	var preds []func(*entry) bool
	for _, clause := range strings.Split(q, " and ") {
		clause = strings.TrimSpace(clause)
		switch {
		case clause == "trashed = false":
			preds = append(preds, func(e *entry) bool { return !e.trashed })
		case strings.HasPrefix(clause, "name = "):
			v := unquote(strings.TrimPrefix(clause, "name = "))
			preds = append(preds, func(e *entry) bool { return e.file.Name == v })
		case strings.HasPrefix(clause, "mimeType = "):
			v := unquote(strings.TrimPrefix(clause, "mimeType = "))
			preds = append(preds, func(e *entry) bool { return e.file.MimeType == v })
		case strings.HasSuffix(clause, " in parents"):
			v := unquote(strings.TrimSuffix(clause, " in parents"))
			preds = append(preds, func(e *entry) bool {
				for _, p := range e.file.Parents {
					if p == v {
						return true
					}
				}
				return false
			})
		default:
			return nil, fmt.Errorf("unsupported query clause %q", clause)
		}
	}
	return func(e *entry) bool {
		for _, p := range preds {
			if !p(e) {
				return false
			}
		}
		return true
	}, nil
}

func unquote(s string) string {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "'"), "'")
	s = strings.ReplaceAll(s, `\'`, `'`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}
