package novatest

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
)

type uploadKind int

const (
	uploadFile uploadKind = iota
	uploadJobInput
)

// uploadState is the lifecycle of an upload token.
type uploadState int

const (
	uploadOpen uploadState = iota
	uploadCommitted
	uploadCancelled
)

func (s uploadState) String() string {
	switch s {
	case uploadOpen:
		return "open"
	case uploadCommitted:
		return "committed"
	case uploadCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type upload struct {
	kind      uploadKind
	state     uploadState
	filename  string
	extension string
	chunks    int
	data      bytes.Buffer
}

type storedFile struct {
	contentType string
	data        []byte
}

// SeedFile stores a downloadable file under name.
func (s *Server) SeedFile(name, contentType string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = storedFile{contentType: contentType, data: append([]byte(nil), data...)}
}

// File returns a stored file's bytes.
func (s *Server) File(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[name]
	return f.data, ok
}

// Upload reports the state and accumulated bytes behind token.
func (s *Server) Upload(token string) (string, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[token]
	if !ok {
		return "", nil, false
	}
	return up.state.String(), append([]byte(nil), up.data.Bytes()...), true
}

func (s *Server) registerUploads(mux *http.ServeMux) {
	mux.HandleFunc("POST "+CMSPrefix+"/jobInput", s.handleJobInputStart)
	mux.HandleFunc("POST "+CMSPrefix+"/jobInput/{token}", s.handleJobInputContinue)
	mux.HandleFunc("DELETE "+CMSPrefix+"/jobInput/{token}", s.handleUploadCancel(uploadJobInput))
	mux.HandleFunc("POST "+CMSPrefix+"/fileUpload", s.handleFileUploadStart)
	mux.HandleFunc("PUT "+CMSPrefix+"/fileUpload/{token}", s.handleFileUploadContinue)
	mux.HandleFunc("DELETE "+CMSPrefix+"/fileUpload/{token}", s.handleUploadCancel(uploadFile))
	mux.HandleFunc("GET "+CMSPrefix+"/files/{name}", s.handleGetFile)
}

func readPart(r *http.Request, field string) (string, []byte, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", nil, fmt.Errorf("parse multipart: %w", err)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, fmt.Errorf("missing %s part: %w", field, err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}

func (s *Server) newTokenLocked() string {
	s.tokenSeq++
	return fmt.Sprintf("upl-%06d", s.tokenSeq)
}

func (s *Server) openUploadLocked(w http.ResponseWriter, token string, kind uploadKind) (*upload, bool) {
	up, ok := s.uploads[token]
	if !ok || up.kind != kind || up.state != uploadOpen {
		writeError(w, http.StatusNotFound, "upload token not found or no longer active")
		return nil, false
	}
	return up, true
}

func (s *Server) handleJobInputStart(w http.ResponseWriter, r *http.Request) {
	name, data, err := readPart(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	token := s.newTokenLocked()
	up := &upload{kind: uploadJobInput, filename: name, chunks: 1}
	up.data.Write(data)
	s.uploads[token] = up
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (s *Server) handleJobInputContinue(w http.ResponseWriter, r *http.Request) {
	_, data, err := readPart(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token := r.PathValue("token")
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.openUploadLocked(w, token, uploadJobInput)
	if !ok {
		return
	}
	up.data.Write(data)
	up.chunks++
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (s *Server) handleUploadCancel(kind uploadKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		up, ok := s.openUploadLocked(w, r.PathValue("token"), kind)
		if !ok {
			return
		}
		up.state = uploadCancelled
		up.data.Reset()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) commitFileLocked(up *upload, token string) map[string]any {
	up.state = uploadCommitted
	identifier := "file-" + strings.TrimPrefix(token, "upl-")
	ext := up.extension
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		ct = "application/octet-stream"
	}
	s.files[identifier+ext] = storedFile{contentType: ct, data: append([]byte(nil), up.data.Bytes()...)}
	return map[string]any{
		"fileIdentifier": identifier,
		"extension":      ext,
		"fileName":       identifier + ext,
		"size":           up.data.Len(),
	}
}

func (s *Server) handleFileUploadStart(w http.ResponseWriter, r *http.Request) {
	name, data, err := readPart(r, "File")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	token := s.newTokenLocked()
	up := &upload{kind: uploadFile, filename: name, extension: r.FormValue("Extension"), chunks: 1}
	if up.extension == "" {
		up.extension = path.Ext(name)
	}
	up.data.Write(data)
	s.uploads[token] = up
	if r.FormValue("Commit") == "true" {
		writeJSON(w, http.StatusOK, s.commitFileLocked(up, token))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (s *Server) handleFileUploadContinue(w http.ResponseWriter, r *http.Request) {
	_, data, err := readPart(r, "File")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token := r.PathValue("token")
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.openUploadLocked(w, token, uploadFile)
	if !ok {
		return
	}
	up.data.Write(data)
	up.chunks++
	if ext := r.FormValue("Extension"); ext != "" {
		up.extension = ext
	}
	if r.FormValue("Commit") == "true" {
		writeJSON(w, http.StatusOK, s.commitFileLocked(up, token))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	f, ok := s.files[r.PathValue("name")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Type", f.contentType)
	_, _ = w.Write(f.data)
}
