package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/novadb/novadb-mcp-demo/client"
)

const (
	// DefaultTake is the page size used when a request leaves Take unset.
	DefaultTake = 20
	// DefaultSuggestionTake is the suggestion count used when unset.
	DefaultSuggestionTake = 10
	// DefaultFuzzyMinSimilarity is applied when fuzzy suggestions are
	// requested without a similarity threshold.
	DefaultFuzzyMinSimilarity = 0.5
)

// Transport is the subset of *client.Client used by Client.
type Transport interface {
	Post(ctx context.Context, path string, query client.Query, body any, headers http.Header) (json.RawMessage, error)
}

// Client maps search and analytics calls onto the Index API. The index is
// eventually consistent with CMS writes: callers that need to see their own
// writes must read them back through the CMS.
type Client struct {
	t Transport
}

// NewClient wraps transport.
func NewClient(t Transport) *Client {
	return &Client{t: t}
}

func page(skip, take, def int) Page {
	if skip < 0 {
		skip = 0
	}
	if take <= 0 {
		take = def
	}
	return Page{Skip: skip, Take: take}
}

func filterOrEmpty(f *ObjectFilter) *ObjectFilter {
	if f == nil {
		return &ObjectFilter{}
	}
	return f
}

func commentFilterOrEmpty(f *CommentFilter) *CommentFilter {
	if f == nil {
		return &CommentFilter{}
	}
	return f
}

// SearchObjectsRequest is the object search envelope.
type SearchObjectsRequest struct {
	Filter *ObjectFilter
	SortBy []SortKey
	Skip   int
	Take   int
}

// SearchObjects runs an object search.
func (c *Client) SearchObjects(ctx context.Context, branch string, req SearchObjectsRequest) (json.RawMessage, error) {
	body := struct {
		Filter *ObjectFilter `json:"filter"`
		SortBy []SortKey     `json:"sortBy,omitempty"`
		Page   Page          `json:"page"`
	}{
		Filter: filterOrEmpty(req.Filter),
		SortBy: req.SortBy,
		Page:   page(req.Skip, req.Take, DefaultTake),
	}
	return c.t.Post(ctx, branchPath(branch, "objects"), nil, body, nil)
}

// CountObjects counts objects matching filter.
func (c *Client) CountObjects(ctx context.Context, branch string, filter *ObjectFilter) (json.RawMessage, error) {
	body := struct {
		Filter *ObjectFilter `json:"filter"`
	}{Filter: filterOrEmpty(filter)}
	return c.t.Post(ctx, branchPath(branch, "objectCount"), nil, body, nil)
}

// ObjectOccurrencesRequest asks for facet counts over matching objects.
type ObjectOccurrencesRequest struct {
	Filter                   *ObjectFilter
	GetModifiedByOccurrences bool
	GetTypeOccurrences       bool
	GetDeletedOccurrences    bool
	Skip                     int
	Take                     int
}

// ObjectOccurrences returns facet counts.
func (c *Client) ObjectOccurrences(ctx context.Context, branch string, req ObjectOccurrencesRequest) (json.RawMessage, error) {
	body := struct {
		Filter                   *ObjectFilter `json:"filter"`
		GetModifiedByOccurrences bool          `json:"getModifiedByOccurrences"`
		GetTypeOccurrences       bool          `json:"getTypeOccurrences"`
		GetDeletedOccurrences    bool          `json:"getDeletedOccurrences"`
		Page                     Page          `json:"page"`
	}{
		Filter:                   filterOrEmpty(req.Filter),
		GetModifiedByOccurrences: req.GetModifiedByOccurrences,
		GetTypeOccurrences:       req.GetTypeOccurrences,
		GetDeletedOccurrences:    req.GetDeletedOccurrences,
		Page:                     page(req.Skip, req.Take, DefaultTake),
	}
	return c.t.Post(ctx, branchPath(branch, "objectOccurrences"), nil, body, nil)
}

// SuggestionsRequest is a type-ahead query. Nil pointers take the server
// defaults applied by Suggestions.
type SuggestionsRequest struct {
	Pattern            string
	SuggestDisplayName *bool
	SuggestAttributes  []SuggestAttribute
	Filter             *ObjectFilter
	Take               int
	SortByValue        *bool
	Analyze            *bool
	Fuzzy              *bool
	FuzzyMinSimilarity *float64
	FuzzyPrefixLength  *int
	SuggestFullText    *bool
}

// Suggestions returns autocomplete candidates.
func (c *Client) Suggestions(ctx context.Context, branch string, req SuggestionsRequest) (json.RawMessage, error) {
	take := req.Take
	if take <= 0 {
		take = DefaultSuggestionTake
	}
	body := struct {
		Pattern            string             `json:"pattern,omitempty"`
		SuggestDisplayName bool               `json:"suggestDisplayName"`
		SuggestAttributes  []SuggestAttribute `json:"suggestAttributes,omitempty"`
		Filter             *ObjectFilter      `json:"filter"`
		Take               int                `json:"take"`
		SortByValue        bool               `json:"sortByValue"`
		Analyze            bool               `json:"analyze"`
		Fuzzy              bool               `json:"fuzzy"`
		FuzzyMinSimilarity float64            `json:"fuzzyMinSimilarity"`
		FuzzyPrefixLength  int                `json:"fuzzyPrefixLength"`
		SuggestFullText    *bool              `json:"suggestFullText,omitempty"`
	}{
		Pattern:            req.Pattern,
		SuggestDisplayName: boolOr(req.SuggestDisplayName, true),
		SuggestAttributes:  req.SuggestAttributes,
		Filter:             filterOrEmpty(req.Filter),
		Take:               take,
		SortByValue:        boolOr(req.SortByValue, false),
		Analyze:            boolOr(req.Analyze, true),
		Fuzzy:              boolOr(req.Fuzzy, false),
		FuzzyMinSimilarity: DefaultFuzzyMinSimilarity,
		SuggestFullText:    req.SuggestFullText,
	}
	if req.FuzzyMinSimilarity != nil {
		body.FuzzyMinSimilarity = *req.FuzzyMinSimilarity
	}
	if req.FuzzyPrefixLength != nil {
		body.FuzzyPrefixLength = *req.FuzzyPrefixLength
	}
	return c.t.Post(ctx, branchPath(branch, "suggestions"), nil, body, nil)
}

// SearchCommentsRequest is the comment search envelope.
type SearchCommentsRequest struct {
	Filter *CommentFilter
	Sort   *CommentSort
	Skip   int
	Take   int
}

// SearchComments runs a comment search.
func (c *Client) SearchComments(ctx context.Context, branch string, req SearchCommentsRequest) (json.RawMessage, error) {
	body := struct {
		Filter *CommentFilter `json:"filter"`
		Sort   *CommentSort   `json:"sort,omitempty"`
		Page   Page           `json:"page"`
	}{
		Filter: commentFilterOrEmpty(req.Filter),
		Sort:   req.Sort,
		Page:   page(req.Skip, req.Take, DefaultTake),
	}
	return c.t.Post(ctx, branchPath(branch, "comments"), nil, body, nil)
}

// CountComments counts comments matching filter.
func (c *Client) CountComments(ctx context.Context, branch string, filter *CommentFilter) (json.RawMessage, error) {
	body := struct {
		Filter *CommentFilter `json:"filter"`
	}{Filter: commentFilterOrEmpty(filter)}
	return c.t.Post(ctx, branchPath(branch, "commentCount"), nil, body, nil)
}

// WorkItemOccurrences counts changed objects per branch across all
// branches.
func (c *Client) WorkItemOccurrences(ctx context.Context, skip, take int) (json.RawMessage, error) {
	body := struct {
		Page Page `json:"page"`
	}{Page: page(skip, take, DefaultTake)}
	return c.t.Post(ctx, "/workItemOccurrences", nil, body, nil)
}

// CommentOccurrencesRequest asks for facet counts over matching comments.
type CommentOccurrencesRequest struct {
	Filter                       *CommentFilter
	GetUserOccurrences           bool
	GetMentionedUsersOccurrences bool
	GetObjectTypeOccurrences     bool
	Skip                         int
	Take                         int
}

// CommentOccurrences returns comment facet counts.
func (c *Client) CommentOccurrences(ctx context.Context, branch string, req CommentOccurrencesRequest) (json.RawMessage, error) {
	body := struct {
		Filter                       *CommentFilter `json:"filter"`
		GetUserOccurrences           bool           `json:"getUserOccurrences"`
		GetMentionedUsersOccurrences bool           `json:"getMentionedUsersOccurrences"`
		GetObjectTypeOccurrences     bool           `json:"getObjectTypeOccurrences"`
		Page                         Page           `json:"page"`
	}{
		Filter:                       commentFilterOrEmpty(req.Filter),
		GetUserOccurrences:           req.GetUserOccurrences,
		GetMentionedUsersOccurrences: req.GetMentionedUsersOccurrences,
		GetObjectTypeOccurrences:     req.GetObjectTypeOccurrences,
		Page:                         page(req.Skip, req.Take, DefaultTake),
	}
	return c.t.Post(ctx, branchPath(branch, "commentOccurrences"), nil, body, nil)
}

// ObjectXMLLinkCount counts XML attribute links pointing at objectIDs.
func (c *Client) ObjectXMLLinkCount(ctx context.Context, branch string, objectIDs []int64) (json.RawMessage, error) {
	if objectIDs == nil {
		objectIDs = []int64{}
	}
	body := struct {
		ObjectIDs []int64 `json:"objectIds"`
	}{ObjectIDs: objectIDs}
	return c.t.Post(ctx, branchPath(branch, "objectXmlLinkCount"), nil, body, nil)
}

// MatchStringsRequest tests strings against a Lucene query.
type MatchStringsRequest struct {
	Query         string   `json:"query"`
	UseOrOperator bool     `json:"useOrOperator"`
	Strings       []string `json:"strings"`
}

// MatchStrings reports which strings match the query.
func (c *Client) MatchStrings(ctx context.Context, req MatchStringsRequest) (json.RawMessage, error) {
	if req.Strings == nil {
		req.Strings = []string{}
	}
	return c.t.Post(ctx, "/utilities/matchStrings", nil, req, nil)
}

func branchPath(branch, noun string) string {
	return "/branches/" + url.PathEscape(strings.TrimSpace(branch)) + "/" + noun
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
