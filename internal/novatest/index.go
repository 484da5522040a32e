package novatest

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

type indexFilter struct {
	SearchPhrase  string  `json:"searchPhrase"`
	ObjectTypeIDs []int   `json:"objectTypeIds"`
	ObjectIDs     []int64 `json:"objectIds"`
	ModifiedBy    string  `json:"modifiedBy"`
	Deleted       *bool   `json:"deleted"`
}

type indexPage struct {
	Skip int `json:"skip"`
	Take int `json:"take"`
}

func (s *Server) registerIndex(mux *http.ServeMux) {
	mux.HandleFunc("POST "+IndexPrefix+"/branches/{branch}/objects", s.handleIndexSearch)
	mux.HandleFunc("POST "+IndexPrefix+"/branches/{branch}/objectCount", s.handleIndexCount)
	mux.HandleFunc("POST "+IndexPrefix+"/branches/{branch}/objectOccurrences", s.handleIndexObjectOccurrences)
	mux.HandleFunc("POST "+IndexPrefix+"/branches/{branch}/suggestions", s.handleIndexSuggestions)
	mux.HandleFunc("POST "+IndexPrefix+"/branches/{branch}/comments", s.handleIndexComments)
	mux.HandleFunc("POST "+IndexPrefix+"/branches/{branch}/commentCount", s.handleIndexCommentCount)
	mux.HandleFunc("POST "+IndexPrefix+"/branches/{branch}/commentOccurrences", s.handleIndexCommentOccurrences)
	mux.HandleFunc("POST "+IndexPrefix+"/branches/{branch}/objectXmlLinkCount", s.handleIndexXMLLinkCount)
	mux.HandleFunc("POST "+IndexPrefix+"/workItemOccurrences", s.handleIndexWorkItems)
	mux.HandleFunc("POST "+IndexPrefix+"/utilities/matchStrings", s.handleIndexMatchStrings)
}

func displayName(o *object) string {
	for _, v := range o.Values {
		if v.Attribute != 1000 {
			continue
		}
		var name string
		if json.Unmarshal(v.Value, &name) == nil && name != "" {
			return name
		}
	}
	return ""
}

func (f indexFilter) matches(o *object) bool {
	wantDeleted := f.Deleted != nil && *f.Deleted
	if o.Meta.Deleted != wantDeleted {
		return false
	}
	if len(f.ObjectTypeIDs) > 0 && !containsInt(f.ObjectTypeIDs, o.Meta.TypeRef) {
		return false
	}
	if len(f.ObjectIDs) > 0 && !containsInt64(f.ObjectIDs, o.Meta.ID) {
		return false
	}
	if f.ModifiedBy != "" && o.by != f.ModifiedBy {
		return false
	}
	if f.SearchPhrase != "" && !strings.Contains(strings.ToLower(displayName(o)), strings.ToLower(f.SearchPhrase)) {
		return false
	}
	return true
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsInt64(list []int64, v int64) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (s *Server) matchingLocked(f indexFilter) []*object {
	var out []*object
	for _, o := range s.objects {
		if f.matches(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta.ID < out[j].Meta.ID })
	return out
}

func (s *Server) handleIndexSearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filter indexFilter `json:"filter"`
		Page   indexPage   `json:"page"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Page.Take <= 0 {
		writeError(w, http.StatusBadRequest, "page.take must be positive")
		return
	}
	s.mu.Lock()
	matching := s.matchingLocked(body.Filter)
	hits := make([]map[string]any, 0, body.Page.Take)
	for i := body.Page.Skip; i < len(matching) && len(hits) < body.Page.Take; i++ {
		o := matching[i]
		hits = append(hits, map[string]any{
			"id":          o.Meta.ID,
			"typeRef":     o.Meta.TypeRef,
			"displayName": displayName(o),
			"modifiedBy":  o.by,
		})
	}
	total := len(matching)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"objects": hits, "totalCount": total})
}

func (s *Server) handleIndexCount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filter indexFilter `json:"filter"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	n := len(s.matchingLocked(body.Filter))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

type occurrence struct {
	Value any `json:"value"`
	Count int `json:"count"`
}

func bucket[K comparable](items []*object, key func(*object) K) []occurrence {
	counts := map[K]int{}
	var order []K
	for _, o := range items {
		k := key(o)
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}
	out := make([]occurrence, 0, len(order))
	for _, k := range order {
		out = append(out, occurrence{Value: k, Count: counts[k]})
	}
	return out
}

func (s *Server) handleIndexObjectOccurrences(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filter                   indexFilter `json:"filter"`
		GetModifiedByOccurrences bool        `json:"getModifiedByOccurrences"`
		GetTypeOccurrences       bool        `json:"getTypeOccurrences"`
		GetDeletedOccurrences    bool        `json:"getDeletedOccurrences"`
		Page                     indexPage   `json:"page"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	matching := s.matchingLocked(body.Filter)
	s.mu.Unlock()
	out := map[string]any{}
	if body.GetTypeOccurrences {
		out["typeOccurrences"] = bucket(matching, func(o *object) int { return o.Meta.TypeRef })
	}
	if body.GetModifiedByOccurrences {
		out["modifiedByOccurrences"] = bucket(matching, func(o *object) string { return o.by })
	}
	if body.GetDeletedOccurrences {
		out["deletedOccurrences"] = bucket(matching, func(o *object) bool { return o.Meta.Deleted })
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIndexSuggestions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pattern string      `json:"pattern"`
		Filter  indexFilter `json:"filter"`
		Take    int         `json:"take"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	matching := s.matchingLocked(body.Filter)
	s.mu.Unlock()
	suggestions := []map[string]any{}
	seen := map[string]bool{}
	for _, o := range matching {
		name := displayName(o)
		if name == "" || seen[name] || !strings.HasPrefix(strings.ToLower(name), strings.ToLower(body.Pattern)) {
			continue
		}
		seen[name] = true
		suggestions = append(suggestions, map[string]any{"value": name, "objectId": o.Meta.ID})
		if len(suggestions) >= body.Take {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

type commentFilter struct {
	SearchPhrase string `json:"searchPhrase"`
	User         string `json:"user"`
}

func (s *Server) matchingCommentsLocked(f commentFilter) []comment {
	out := []comment{}
	for _, c := range s.comments {
		if c.Deleted {
			continue
		}
		if f.User != "" && c.User != f.User {
			continue
		}
		if f.SearchPhrase != "" && !strings.Contains(strings.ToLower(c.Body), strings.ToLower(f.SearchPhrase)) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) handleIndexComments(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filter commentFilter `json:"filter"`
		Page   indexPage     `json:"page"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	list := s.matchingCommentsLocked(body.Filter)
	s.mu.Unlock()
	start := min(body.Page.Skip, len(list))
	end := min(start+body.Page.Take, len(list))
	writeJSON(w, http.StatusOK, map[string]any{"comments": list[start:end], "totalCount": len(list)})
}

func (s *Server) handleIndexCommentCount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filter commentFilter `json:"filter"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	n := len(s.matchingCommentsLocked(body.Filter))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

func (s *Server) handleIndexCommentOccurrences(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filter             commentFilter `json:"filter"`
		GetUserOccurrences bool          `json:"getUserOccurrences"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	list := s.matchingCommentsLocked(body.Filter)
	s.mu.Unlock()
	out := map[string]any{}
	if body.GetUserOccurrences {
		counts := map[string]int{}
		for _, c := range list {
			counts[c.User]++
		}
		occ := make([]occurrence, 0, len(counts))
		for user, n := range counts {
			occ = append(occ, occurrence{Value: user, Count: n})
		}
		sort.Slice(occ, func(i, j int) bool { return occ[i].Value.(string) < occ[j].Value.(string) })
		out["userOccurrences"] = occ
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIndexXMLLinkCount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ObjectIDs []int64 `json:"objectIds"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	counts := make([]map[string]any, 0, len(body.ObjectIDs))
	for _, id := range body.ObjectIDs {
		counts = append(counts, map[string]any{"objectId": id, "count": 0})
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

func (s *Server) handleIndexWorkItems(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Page indexPage `json:"page"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"occurrences": []occurrence{}})
}

func (s *Server) handleIndexMatchStrings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query         string   `json:"query"`
		UseOrOperator bool     `json:"useOrOperator"`
		Strings       []string `json:"strings"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	terms := strings.Fields(strings.ToLower(body.Query))
	matches := make([]bool, 0, len(body.Strings))
	for _, candidate := range body.Strings {
		lower := strings.ToLower(candidate)
		hit := !body.UseOrOperator
		for _, term := range terms {
			found := strings.Contains(lower, term)
			if body.UseOrOperator && found {
				hit = true
				break
			}
			if !body.UseOrOperator && !found {
				hit = false
				break
			}
		}
		matches = append(matches, hit && len(terms) > 0)
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}
