package novatest

import (
	"archive/zip"
	"bytes"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

type comment struct {
	ID        int64     `json:"id"`
	BranchID  int64     `json:"branchId"`
	ObjectRef int64     `json:"objectRef"`
	Body      string    `json:"body"`
	User      string    `json:"user"`
	Created   time.Time `json:"created"`
	Deleted   bool      `json:"isDeleted"`
}

type job struct {
	ID              int64             `json:"id"`
	State           int               `json:"state"`
	BranchID        int64             `json:"branchId"`
	JobDefinitionID int64             `json:"definitionRef"`
	CreatedBy       string            `json:"createdBy"`
	RetainUntil     *string           `json:"retainUntil"`
	Created         time.Time         `json:"created"`
	Deleted         bool              `json:"isDeleted"`
	InputFile       map[string]string `json:"inputFile,omitempty"`
	logs            string
	artifacts       map[string]artifact
}

type artifact struct {
	contentType string
	data        []byte
}

func (s *Server) registerComments(mux *http.ServeMux) {
	mux.HandleFunc("GET "+CMSPrefix+"/comments", s.handleListComments)
	mux.HandleFunc("GET "+CMSPrefix+"/comments/{id}", s.handleGetComment)
	mux.HandleFunc("POST "+CMSPrefix+"/comments", s.handleCreateComment)
	mux.HandleFunc("PATCH "+CMSPrefix+"/comments/{id}", s.handleUpdateComment)
	mux.HandleFunc("DELETE "+CMSPrefix+"/comments/{id}", s.handleDeleteComment)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	take, _ := strconv.Atoi(q.Get("take"))
	if take <= 0 {
		take = 20
	}
	offset := 0
	if token := q.Get("continue"); token != "" {
		var err error
		if offset, err = decodeCursor(token); err != nil {
			writeError(w, http.StatusBadRequest, "invalid continue token")
			return
		}
	}
	objectRef, _ := strconv.ParseInt(q.Get("objectRef"), 10, 64)
	s.mu.Lock()
	list := []comment{}
	for _, c := range s.comments {
		if c.Deleted && q.Get("isDeleted") != "true" {
			continue
		}
		if objectRef != 0 && c.ObjectRef != objectRef {
			continue
		}
		if user := q.Get("user"); user != "" && c.User != user {
			continue
		}
		list = append(list, *c)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	end := offset + take
	if end > len(list) {
		end = len(list)
	}
	if offset > len(list) {
		offset = len(list)
	}
	out := map[string]any{"comments": list[offset:end]}
	if end < len(list) {
		out["continue"] = encodeCursor(end)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) commentFromPath(w http.ResponseWriter, r *http.Request) (*comment, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "comment id must be numeric")
		return nil, false
	}
	c, ok := s.comments[id]
	if !ok || c.Deleted {
		writeError(w, http.StatusNotFound, "comment not found")
		return nil, false
	}
	return c, true
}

func (s *Server) handleGetComment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.commentFromPath(w, r); ok {
		writeJSON(w, http.StatusOK, c)
	}
}

func validXHTML(body string) bool {
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "<div") && strings.HasSuffix(trimmed, "</div>")
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BranchID  int64  `json:"branchId"`
		ObjectRef int64  `json:"objectRef"`
		Body      string `json:"body"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validXHTML(body.Body) {
		writeError(w, http.StatusBadRequest, "comment body must be XHTML with a <div> root")
		return
	}
	s.mu.Lock()
	id := s.allocID()
	s.comments[id] = &comment{
		ID:        id,
		BranchID:  body.BranchID,
		ObjectRef: body.ObjectRef,
		Body:      body.Body,
		User:      r.Header.Get("X-CmsApi-Username"),
		Created:   time.Now().UTC(),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Body string `json:"body"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validXHTML(body.Body) {
		writeError(w, http.StatusBadRequest, "comment body must be XHTML with a <div> root")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.commentFromPath(w, r); ok {
		c.Body = body.Body
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.commentFromPath(w, r); ok {
		c.Deleted = true
		w.WriteHeader(http.StatusNoContent)
	}
}

// SeedJob stores a finished job with a log and the given artifacts and
// returns its id.
func (s *Server) SeedJob(branchID int64, logs string, artifacts map[string][]byte) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.allocID()
	j := &job{
		ID:              id,
		State:           2,
		BranchID:        branchID,
		JobDefinitionID: 1,
		Created:         time.Now().UTC(),
		logs:            logs,
		artifacts:       make(map[string]artifact),
	}
	for path, data := range artifacts {
		ct := "application/octet-stream"
		if strings.HasSuffix(path, ".txt") || strings.HasSuffix(path, ".log") {
			ct = "text/plain; charset=utf-8"
		}
		j.artifacts[path] = artifact{contentType: ct, data: data}
	}
	s.jobs[id] = j
	return id
}

func (s *Server) registerJobs(mux *http.ServeMux) {
	mux.HandleFunc("GET "+CMSPrefix+"/jobs", s.handleListJobs)
	mux.HandleFunc("POST "+CMSPrefix+"/jobs", s.handleCreateJob)
	mux.HandleFunc("GET "+CMSPrefix+"/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("PATCH "+CMSPrefix+"/jobs/{id}", s.handleUpdateJob)
	mux.HandleFunc("DELETE "+CMSPrefix+"/jobs/{id}", s.handleDeleteJob)
	mux.HandleFunc("GET "+CMSPrefix+"/jobs/{id}/logs", s.handleJobLogs)
	mux.HandleFunc("GET "+CMSPrefix+"/jobs/{id}/metrics", s.handleJobMetrics)
	mux.HandleFunc("GET "+CMSPrefix+"/jobs/{id}/progress", s.handleJobProgress)
	mux.HandleFunc("GET "+CMSPrefix+"/jobs/{id}/objectIds", s.handleJobObjectIDs)
	mux.HandleFunc("GET "+CMSPrefix+"/jobs/{id}/artifacts", s.handleJobArtifacts)
	mux.HandleFunc("GET "+CMSPrefix+"/jobs/{id}/artifacts/{path...}", s.handleJobArtifact)
	mux.HandleFunc("GET "+CMSPrefix+"/jobs/{id}/artifacts.zip", s.handleJobArtifactsZip)
}

func (s *Server) jobFromPath(w http.ResponseWriter, r *http.Request) (*job, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "job id must be numeric")
		return nil, false
	}
	j, ok := s.jobs[id]
	if !ok || j.Deleted {
		writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	return j, true
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	branchID, _ := strconv.ParseInt(q.Get("branchId"), 10, 64)
	take, _ := strconv.Atoi(q.Get("take"))
	if take <= 0 {
		take = 20
	}
	s.mu.Lock()
	list := []job{}
	for _, j := range s.jobs {
		if j.Deleted || (branchID != 0 && j.BranchID != branchID) {
			continue
		}
		if state := q.Get("state"); state != "" && strconv.Itoa(j.State) != state {
			continue
		}
		list = append(list, *j)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	out := map[string]any{}
	if len(list) > take {
		list = list[:take]
		out["continue"] = encodeCursor(take)
	}
	out["jobs"] = list
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BranchID        int64 `json:"branchId"`
		JobDefinitionID int64 `json:"jobDefinitionId"`
		InputFile       *struct {
			Token string `json:"token"`
			Name  string `json:"name"`
		} `json:"inputFile"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.JobDefinitionID <= 0 {
		writeError(w, http.StatusBadRequest, "jobDefinitionId is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &job{
		ID:              s.allocID(),
		BranchID:        body.BranchID,
		JobDefinitionID: body.JobDefinitionID,
		CreatedBy:       r.Header.Get("X-CmsApi-Username"),
		Created:         time.Now().UTC(),
		logs:            "job created\n",
		artifacts:       make(map[string]artifact),
	}
	if body.InputFile != nil {
		up, ok := s.uploads[body.InputFile.Token]
		if !ok || up.kind != uploadJobInput || up.state != uploadOpen {
			writeError(w, http.StatusBadRequest, "input file token is not usable")
			return
		}
		up.state = uploadCommitted
		j.InputFile = map[string]string{"token": body.InputFile.Token, "name": body.InputFile.Name}
	}
	s.jobs[j.ID] = j
	writeJSON(w, http.StatusOK, map[string]any{"id": j.ID, "state": j.State})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobFromPath(w, r); ok {
		writeJSON(w, http.StatusOK, j)
	}
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RetainUntil *string `json:"retainUntil"`
		State       *int    `json:"state"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobFromPath(w, r)
	if !ok {
		return
	}
	if body.State != nil {
		if *body.State != 4 && *body.State != 5 {
			writeError(w, http.StatusBadRequest, "only states 4 and 5 may be requested")
			return
		}
		j.State = *body.State
	}
	if body.RetainUntil != nil {
		j.RetainUntil = body.RetainUntil
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobFromPath(w, r); ok {
		j.Deleted = true
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	j, ok := s.jobFromPath(w, r)
	var logs string
	if ok {
		logs = j.logs
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(logs))
}

func (s *Server) handleJobMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobFromPath(w, r); ok {
		items := []map[string]any{{"name": "objectsProcessed", "value": 3}, {"name": "errors", "value": 0}}
		if limit, err := strconv.Atoi(r.URL.Query().Get("maxItems")); err == nil && limit >= 0 && limit < len(items) {
			items = items[:limit]
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobFromPath(w, r); ok {
		progress := 0
		if j.State == 2 || j.State == 3 {
			progress = 100
		}
		writeJSON(w, http.StatusOK, map[string]any{"state": j.State, "progress": progress})
	}
}

func (s *Server) handleJobObjectIDs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobFromPath(w, r); ok {
		writeJSON(w, http.StatusOK, map[string]any{"objectIds": []int64{}})
	}
}

func (s *Server) handleJobArtifacts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobFromPath(w, r)
	if !ok {
		return
	}
	paths := make([]string, 0, len(j.artifacts))
	for path := range j.artifacts {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	list := make([]map[string]any, 0, len(paths))
	for _, path := range paths {
		list = append(list, map[string]any{"path": path, "size": len(j.artifacts[path].data)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": list})
}

func (s *Server) handleJobArtifact(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	j, ok := s.jobFromPath(w, r)
	var a artifact
	var found bool
	if ok {
		a, found = j.artifacts[r.PathValue("path")]
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	w.Header().Set("Content-Type", a.contentType)
	_, _ = w.Write(a.data)
}

func (s *Server) handleJobArtifactsZip(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	j, ok := s.jobFromPath(w, r)
	files := map[string][]byte{}
	if ok {
		for path, a := range j.artifacts {
			files[path] = a.data
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		fw, err := zw.Create(path)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_, _ = fw.Write(files[path])
	}
	if err := zw.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	_, _ = w.Write(buf.Bytes())
}
