package novatest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

type value struct {
	Attribute   int             `json:"attribute"`
	Variant     int             `json:"variant"`
	Language    int             `json:"language"`
	Value       json.RawMessage `json:"value"`
	SortReverse *int            `json:"sortReverse,omitempty"`
	UnitRef     *int            `json:"unitRef,omitempty"`
}

type objectMeta struct {
	ID              int64   `json:"id"`
	GUID            string  `json:"guid"`
	APIIdentifier   *string `json:"apiIdentifier"`
	TypeRef         int     `json:"typeRef"`
	LastTransaction int64   `json:"lastTransaction"`
	Deleted         bool    `json:"deleted"`
}

type object struct {
	Meta   objectMeta `json:"meta"`
	Values []value    `json:"values"`
	branch string
	by     string
	at     time.Time
}

type inboundObject struct {
	Meta struct {
		ID              *int64  `json:"id"`
		GUID            string  `json:"guid"`
		APIIdentifier   *string `json:"apiIdentifier"`
		TypeRef         int     `json:"typeRef"`
		LastTransaction *int64  `json:"lastTransaction"`
	} `json:"meta"`
	Values []value `json:"values"`
}

// Object returns a stored object by id.
func (s *Server) Object(id int64) (ObjectView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return ObjectView{}, false
	}
	return obj.view(), true
}

// ObjectView is a read-only snapshot of a stored object.
type ObjectView struct {
	ID       int64
	TypeRef  int
	Deleted  bool
	Branch   string
	Modifier string
	Values   []ValueView
}

// ValueView is a read-only snapshot of one stored value.
type ValueView struct {
	Attribute   int
	Variant     int
	Language    int
	Value       any
	SortReverse *int
}

func (o *object) view() ObjectView {
	out := ObjectView{ID: o.Meta.ID, TypeRef: o.Meta.TypeRef, Deleted: o.Meta.Deleted, Branch: o.branch, Modifier: o.by}
	for _, v := range o.Values {
		var decoded any
		_ = json.Unmarshal(v.Value, &decoded)
		out.Values = append(out.Values, ValueView{Attribute: v.Attribute, Variant: v.Variant, Language: v.Language, Value: decoded, SortReverse: v.SortReverse})
	}
	return out
}

// SeedObject stores an object of typeRef with a name value (attribute 1000,
// language 201) and returns its id.
func (s *Server) SeedObject(branch string, typeRef int, name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.allocID()
	raw, _ := json.Marshal(name)
	s.objects[id] = &object{
		Meta:   objectMeta{ID: id, GUID: guidFor(id), TypeRef: typeRef, LastTransaction: id},
		Values: []value{{Attribute: 1000, Language: 201, Value: raw}},
		branch: branch,
		at:     time.Now().UTC(),
	}
	return id
}

func guidFor(id int64) string {
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", id)
}

func (s *Server) registerObjects(mux *http.ServeMux) {
	mux.HandleFunc("GET "+CMSPrefix+"/branches/{branch}/objects/{id}", s.handleGetObject)
	mux.HandleFunc("GET "+CMSPrefix+"/branches/{branch}/objects", s.handleGetObjects)
	mux.HandleFunc("GET "+CMSPrefix+"/branches/{branch}/types/{type}/objects", s.handleTypedObjects)
	mux.HandleFunc("POST "+CMSPrefix+"/branches/{branch}/objects", s.handleCreateObjects)
	mux.HandleFunc("PATCH "+CMSPrefix+"/branches/{branch}/objects", s.handleUpdateObjects)
	mux.HandleFunc("DELETE "+CMSPrefix+"/branches/{branch}/objects", s.handleDeleteObjects)
	mux.HandleFunc("GET "+CMSPrefix+"/branches/{branch}/generators/{language}/types", s.handleGenerateTypes)
	mux.HandleFunc("GET "+CMSPrefix+"/branches/{branch}/generators/{language}/types/{type}", s.handleGenerateTypes)
}

func (s *Server) lookupLocked(ref string) (*object, bool) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		obj, ok := s.objects[id]
		return obj, ok
	}
	for _, obj := range s.objects {
		if obj.Meta.GUID == ref || (obj.Meta.APIIdentifier != nil && *obj.Meta.APIIdentifier == ref) {
			return obj, true
		}
	}
	return nil, false
}

func sortedValues(in []value) []value {
	out := append([]value(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Attribute != b.Attribute {
			return a.Attribute < b.Attribute
		}
		if a.Language != b.Language {
			return a.Language < b.Language
		}
		if a.Variant != b.Variant {
			return a.Variant < b.Variant
		}
		return sortKey(a.SortReverse) < sortKey(b.SortReverse)
	})
	return out
}

func sortKey(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}

func (o *object) wire() map[string]any {
	return map[string]any{"meta": o.Meta, "values": sortedValues(o.Values)}
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	obj, ok := s.lookupLocked(r.PathValue("id"))
	var out map[string]any
	if ok {
		out = obj.wire()
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetObjects(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("ids"), ",")
	s.mu.Lock()
	objects := make([]map[string]any, 0, len(ids))
	for _, ref := range ids {
		if obj, ok := s.lookupLocked(strings.TrimSpace(ref)); ok {
			objects = append(objects, obj.wire())
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"objects": objects})
}

func (s *Server) handleTypedObjects(w http.ResponseWriter, r *http.Request) {
	typeRef, err := strconv.Atoi(r.PathValue("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "type must be numeric")
		return
	}
	q := r.URL.Query()
	take := 20
	if raw := q.Get("take"); raw != "" {
		if take, err = strconv.Atoi(raw); err != nil || take < 1 {
			writeError(w, http.StatusBadRequest, "invalid take")
			return
		}
	}
	offset := 0
	if token := q.Get("continue"); token != "" {
		if offset, err = decodeCursor(token); err != nil {
			writeError(w, http.StatusBadRequest, "invalid continue token")
			return
		}
	}
	includeDeleted := q.Get("deleted") == "true"

	s.mu.Lock()
	var matching []*object
	for _, obj := range s.objects {
		if obj.Meta.TypeRef != typeRef || (obj.Meta.Deleted && !includeDeleted) {
			continue
		}
		matching = append(matching, obj)
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].Meta.ID < matching[j].Meta.ID })
	page := make([]map[string]any, 0, take)
	for i := offset; i < len(matching) && len(page) < take; i++ {
		page = append(page, matching[i].wire())
	}
	more := offset+len(page) < len(matching)
	s.mu.Unlock()

	out := map[string]any{"objects": page}
	if more {
		out["continue"] = encodeCursor(offset + len(page))
	}
	writeJSON(w, http.StatusOK, out)
}

func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte("offset=" + strconv.Itoa(offset)))
}

func decodeCursor(token string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, err
	}
	rest, ok := strings.CutPrefix(string(raw), "offset=")
	if !ok {
		return 0, fmt.Errorf("malformed cursor")
	}
	return strconv.Atoi(rest)
}

func (s *Server) handleCreateObjects(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Comment *string         `json:"comment"`
		Objects []inboundObject `json:"objects"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, in := range body.Objects {
		if in.Meta.TypeRef <= 0 {
			writeError(w, http.StatusBadRequest, "meta.typeRef is required")
			return
		}
	}
	s.mu.Lock()
	ids := make([]int64, 0, len(body.Objects))
	for _, in := range body.Objects {
		id := s.allocID()
		s.objects[id] = &object{
			Meta:   objectMeta{ID: id, GUID: guidFor(id), APIIdentifier: in.Meta.APIIdentifier, TypeRef: in.Meta.TypeRef, LastTransaction: id},
			Values: normalizeValues(in.Values),
			branch: r.PathValue("branch"),
			by:     r.Header.Get("X-CmsApi-Username"),
			at:     time.Now().UTC(),
		}
		ids = append(ids, id)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"createdObjectIds": ids})
}

func normalizeValues(in []value) []value {
	out := make([]value, 0, len(in))
	for _, v := range in {
		if len(v.Value) == 0 {
			v.Value = json.RawMessage("null")
		}
		out = append(out, v)
	}
	return out
}

type cellKey struct{ attribute, language, variant int }

// replaceValues applies set semantics per attribute: every cell of an
// attribute present in update replaces all stored cells of that attribute.
func replaceValues(stored, update []value) ([]value, int) {
	touched := make(map[int]bool)
	for _, v := range update {
		touched[v.Attribute] = true
	}
	existing := make(map[cellKey]int)
	out := make([]value, 0, len(stored)+len(update))
	for _, v := range stored {
		if touched[v.Attribute] {
			existing[cellKey{v.Attribute, v.Language, v.Variant}]++
			continue
		}
		out = append(out, v)
	}
	created := 0
	for _, v := range normalizeValues(update) {
		key := cellKey{v.Attribute, v.Language, v.Variant}
		if existing[key] > 0 {
			existing[key]--
		} else {
			created++
		}
		out = append(out, v)
	}
	return out, created
}

func (s *Server) handleUpdateObjects(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Comment *string         `json:"comment"`
		Objects []inboundObject `json:"objects"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	updated, created := 0, 0
	for _, in := range body.Objects {
		ref := in.Meta.GUID
		if in.Meta.ID != nil {
			ref = strconv.FormatInt(*in.Meta.ID, 10)
		}
		obj, ok := s.lookupLocked(ref)
		if !ok {
			writeError(w, http.StatusNotFound, "object "+ref+" not found")
			return
		}
		if lt := in.Meta.LastTransaction; lt != nil && *lt != obj.Meta.LastTransaction {
			writeError(w, http.StatusConflict, fmt.Sprintf("object %s was modified by transaction %d", ref, obj.Meta.LastTransaction))
			return
		}
		var n int
		obj.Values, n = replaceValues(obj.Values, in.Values)
		obj.Meta.LastTransaction = s.allocID()
		obj.by = r.Header.Get("X-CmsApi-Username")
		obj.at = time.Now().UTC()
		updated++
		created += n
	}
	writeJSON(w, http.StatusOK, map[string]any{"updatedObjects": updated, "createdValues": created})
}

func (s *Server) handleDeleteObjects(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Comment   *string  `json:"comment"`
		ObjectIDs []string `json:"objectIds"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	deleted := 0
	for _, ref := range body.ObjectIDs {
		if obj, ok := s.lookupLocked(ref); ok && !obj.Meta.Deleted {
			obj.Meta.Deleted = true
			deleted++
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"deletedObjects": deleted})
}

func (s *Server) handleGenerateTypes(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("language") != "csharp" {
		writeError(w, http.StatusBadRequest, "unsupported language")
		return
	}
	var ids []string
	if typ := r.PathValue("type"); typ != "" {
		ids = []string{typ}
	} else if raw := r.URL.Query().Get("ids"); raw != "" {
		ids = strings.Split(raw, ",")
	} else {
		ids = []string{"All"}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "// branch %s\nnamespace NovaDB.Generated;\n", r.PathValue("branch"))
	for _, id := range ids {
		fmt.Fprintf(&b, "\npublic sealed class Type%s\n{\n}\n", strings.TrimSpace(id))
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) registerBranches(mux *http.ServeMux) {
	mux.HandleFunc("GET "+CMSPrefix+"/branches/{id}", s.handleGetBranch)
	mux.HandleFunc("POST "+CMSPrefix+"/branches", s.handleCreateBranch)
	mux.HandleFunc("PATCH "+CMSPrefix+"/branches/{id}", s.handleUpdateBranch)
	mux.HandleFunc("DELETE "+CMSPrefix+"/branches/{id}", s.handleDeleteBranch)
}

func (s *Server) branchLocked(ref string) (*object, bool) {
	obj, ok := s.lookupLocked(ref)
	if !ok || obj.Meta.TypeRef != BranchTypeRef || obj.Meta.Deleted {
		return nil, false
	}
	return obj, true
}

func (s *Server) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("id")
	if ref == "draft" {
		raw, _ := json.Marshal("Draft")
		writeJSON(w, http.StatusOK, map[string]any{
			"meta":   objectMeta{ID: 2100347, TypeRef: BranchTypeRef},
			"values": []value{{Attribute: 1000, Language: 201, Value: raw}},
		})
		return
	}
	s.mu.Lock()
	obj, ok := s.branchLocked(ref)
	var out map[string]any
	if ok {
		out = obj.wire()
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "branch not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Comment *string `json:"comment"`
		Values  []value `json:"values"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hasName := false
	for _, v := range body.Values {
		if v.Attribute == 1000 {
			hasName = true
		}
	}
	if !hasName {
		writeError(w, http.StatusBadRequest, "attribute 1000 (name) is required")
		return
	}
	s.mu.Lock()
	id := s.allocID()
	s.objects[id] = &object{
		Meta:   objectMeta{ID: id, GUID: guidFor(id), TypeRef: BranchTypeRef, LastTransaction: id},
		Values: normalizeValues(body.Values),
		by:     r.Header.Get("X-CmsApi-Username"),
		at:     time.Now().UTC(),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"createdObjectIds": []int64{id}})
}

func (s *Server) handleUpdateBranch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Comment *string `json:"comment"`
		Values  []value `json:"values"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.branchLocked(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "branch not found")
		return
	}
	obj.Values, _ = replaceValues(obj.Values, body.Values)
	writeJSON(w, http.StatusOK, map[string]any{"updatedObjects": 1})
}

func (s *Server) handleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.branchLocked(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "branch not found")
		return
	}
	obj.Meta.Deleted = true
	w.WriteHeader(http.StatusNoContent)
}
