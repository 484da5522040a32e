package mcp

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/novadb/novadb-mcp-demo/index"
)

type searchObjectsToolInput struct {
	Branch string             `json:"branch" jsonschema:"Branch ID or 'draft'"`
	Filter *objectFilterInput `json:"filter,omitempty" jsonschema:"Search condition; omit to match all objects"`
	SortBy []sortKeyInput     `json:"sortBy,omitempty" jsonschema:"Ordered sort keys"`
	Skip   int                `json:"skip,omitempty" jsonschema:"Number of results to skip"`
	Take   *int               `json:"take,omitempty" jsonschema:"Page size (default 5)"`
}

func (in searchObjectsToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.Filter),
		validation.Field(&in.SortBy),
		validation.Field(&in.Skip, validation.Min(0)),
		validation.Field(&in.Take, takeRules...),
	)
}

func (s *server) handleSearchObjectsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in searchObjectsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.index.SearchObjects(ctx, trimmed(in.Branch), index.SearchObjectsRequest{
		Filter: in.Filter.toFilter(),
		SortBy: toSortKeys(in.SortBy),
		Skip:   in.Skip,
		Take:   takeOr(in.Take, defaultToolTake),
	}))
}

type countObjectsToolInput struct {
	Branch string             `json:"branch" jsonschema:"Branch ID or 'draft'"`
	Filter *objectFilterInput `json:"filter,omitempty" jsonschema:"Search condition; omit to count all objects"`
}

func (in countObjectsToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.Filter),
	)
}

func (s *server) handleCountObjectsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in countObjectsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.index.CountObjects(ctx, trimmed(in.Branch), in.Filter.toFilter()))
}

type objectOccurrencesToolInput struct {
	Branch                   string             `json:"branch" jsonschema:"Branch ID or 'draft'"`
	Filter                   *objectFilterInput `json:"filter,omitempty" jsonschema:"Search condition; omit to match all objects"`
	GetModifiedByOccurrences bool               `json:"getModifiedByOccurrences,omitempty" jsonschema:"Count by last modifier"`
	GetTypeOccurrences       bool               `json:"getTypeOccurrences,omitempty" jsonschema:"Count by object type"`
	GetDeletedOccurrences    bool               `json:"getDeletedOccurrences,omitempty" jsonschema:"Count by deleted flag"`
	Skip                     int                `json:"skip,omitempty" jsonschema:"Number of facet entries to skip"`
	Take                     *int               `json:"take,omitempty" jsonschema:"Facet entries per page (default 5)"`
}

func (in objectOccurrencesToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.Filter),
		validation.Field(&in.Skip, validation.Min(0)),
		validation.Field(&in.Take, takeRules...),
	)
}

func (s *server) handleObjectOccurrencesTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in objectOccurrencesToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.index.ObjectOccurrences(ctx, trimmed(in.Branch), index.ObjectOccurrencesRequest{
		Filter:                   in.Filter.toFilter(),
		GetModifiedByOccurrences: in.GetModifiedByOccurrences,
		GetTypeOccurrences:       in.GetTypeOccurrences,
		GetDeletedOccurrences:    in.GetDeletedOccurrences,
		Skip:                     in.Skip,
		Take:                     takeOr(in.Take, defaultToolTake),
	}))
}

type suggestionsToolInput struct {
	Branch             string                  `json:"branch" jsonschema:"Branch ID or 'draft'"`
	Pattern            string                  `json:"pattern,omitempty" jsonschema:"Partial text to complete"`
	SuggestDisplayName *bool                   `json:"suggestDisplayName,omitempty" jsonschema:"Suggest display names (default true)"`
	SuggestAttributes  []suggestAttributeInput `json:"suggestAttributes,omitempty" jsonschema:"Attributes to suggest values from"`
	Filter             *objectFilterInput      `json:"filter,omitempty" jsonschema:"Restrict the objects suggestions come from"`
	Take               *int                    `json:"take,omitempty" jsonschema:"Number of suggestions (default 10)"`
	SortByValue        *bool                   `json:"sortByValue,omitempty" jsonschema:"Sort alphabetically instead of by relevance (default false)"`
	Analyze            *bool                   `json:"analyze,omitempty" jsonschema:"Analyze the pattern like a search phrase (default true)"`
	Fuzzy              *bool                   `json:"fuzzy,omitempty" jsonschema:"Allow fuzzy matches (default false)"`
	FuzzyMinSimilarity *float64                `json:"fuzzyMinSimilarity,omitempty" jsonschema:"Minimum similarity 0..1 for fuzzy matches (default 0.5)"`
	FuzzyPrefixLength  *int                    `json:"fuzzyPrefixLength,omitempty" jsonschema:"Number of leading characters that must match exactly (default 0)"`
	SuggestFullText    *bool                   `json:"suggestFullText,omitempty" jsonschema:"Suggest from the full-text index"`
}

func (in suggestionsToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.SuggestAttributes),
		validation.Field(&in.Filter),
		validation.Field(&in.Take, takeRules...),
		validation.Field(&in.FuzzyMinSimilarity, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&in.FuzzyPrefixLength, validation.Min(0)),
	)
}

func (s *server) handleSuggestionsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in suggestionsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	req := index.SuggestionsRequest{
		Pattern:            in.Pattern,
		SuggestDisplayName: in.SuggestDisplayName,
		Filter:             in.Filter.toFilter(),
		Take:               takeOr(in.Take, defaultToolSuggestionTake),
		SortByValue:        in.SortByValue,
		Analyze:            in.Analyze,
		Fuzzy:              in.Fuzzy,
		FuzzyMinSimilarity: in.FuzzyMinSimilarity,
		FuzzyPrefixLength:  in.FuzzyPrefixLength,
		SuggestFullText:    in.SuggestFullText,
	}
	for _, a := range in.SuggestAttributes {
		req.SuggestAttributes = append(req.SuggestAttributes, index.SuggestAttribute{AttrID: a.AttrID, LangID: a.LangID, VariantID: a.VariantID})
	}
	return jsonCall(s.index.Suggestions(ctx, trimmed(in.Branch), req))
}

type searchCommentsToolInput struct {
	Branch      string              `json:"branch" jsonschema:"Branch ID or 'draft'"`
	Filter      *commentFilterInput `json:"filter,omitempty" jsonschema:"Comment search condition"`
	SortField   *int                `json:"sortField,omitempty" jsonschema:"Sort field: 0=Id 1=User 2=Created 3=Modified 4=ObjectId 5=ObjectType"`
	SortReverse *bool               `json:"sortReverse,omitempty" jsonschema:"Sort descending"`
	Skip        int                 `json:"skip,omitempty" jsonschema:"Number of results to skip"`
	Take        *int                `json:"take,omitempty" jsonschema:"Page size (default 5)"`
}

func (in searchCommentsToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.SortField, validation.Min(0), validation.Max(int(index.MaxCommentSortField))),
		validation.Field(&in.Skip, validation.Min(0)),
		validation.Field(&in.Take, takeRules...),
	)
}

func (s *server) handleSearchCommentsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in searchCommentsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	req := index.SearchCommentsRequest{
		Filter: in.Filter.toFilter(),
		Skip:   in.Skip,
		Take:   takeOr(in.Take, defaultToolTake),
	}
	if in.SortField != nil {
		req.Sort = &index.CommentSort{
			Field:   index.CommentSortField(*in.SortField),
			Reverse: in.SortReverse,
		}
	}
	return jsonCall(s.index.SearchComments(ctx, trimmed(in.Branch), req))
}

type countCommentsToolInput struct {
	Branch string              `json:"branch" jsonschema:"Branch ID or 'draft'"`
	Filter *commentFilterInput `json:"filter,omitempty" jsonschema:"Comment search condition; omit to count all"`
}

func (in countCommentsToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
	)
}

func (s *server) handleCountCommentsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in countCommentsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.index.CountComments(ctx, trimmed(in.Branch), in.Filter.toFilter()))
}

type workItemOccurrencesToolInput struct {
	Skip int  `json:"skip,omitempty" jsonschema:"Number of branches to skip"`
	Take *int `json:"take,omitempty" jsonschema:"Branches per page (default 5)"`
}

func (in workItemOccurrencesToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Skip, validation.Min(0)),
		validation.Field(&in.Take, takeRules...),
	)
}

func (s *server) handleWorkItemOccurrencesTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in workItemOccurrencesToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.index.WorkItemOccurrences(ctx, in.Skip, takeOr(in.Take, defaultToolTake)))
}

type commentOccurrencesToolInput struct {
	Branch                       string              `json:"branch" jsonschema:"Branch ID or 'draft'"`
	Filter                       *commentFilterInput `json:"filter,omitempty" jsonschema:"Comment search condition"`
	GetUserOccurrences           bool                `json:"getUserOccurrences,omitempty" jsonschema:"Count by author"`
	GetMentionedUsersOccurrences bool                `json:"getMentionedUsersOccurrences,omitempty" jsonschema:"Count by mentioned user"`
	GetObjectTypeOccurrences     bool                `json:"getObjectTypeOccurrences,omitempty" jsonschema:"Count by object type"`
	Skip                         int                 `json:"skip,omitempty" jsonschema:"Number of facet entries to skip"`
	Take                         *int                `json:"take,omitempty" jsonschema:"Facet entries per page (default 5)"`
}

func (in commentOccurrencesToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.Skip, validation.Min(0)),
		validation.Field(&in.Take, takeRules...),
	)
}

func (s *server) handleCommentOccurrencesTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in commentOccurrencesToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.index.CommentOccurrences(ctx, trimmed(in.Branch), index.CommentOccurrencesRequest{
		Filter:                       in.Filter.toFilter(),
		GetUserOccurrences:           in.GetUserOccurrences,
		GetMentionedUsersOccurrences: in.GetMentionedUsersOccurrences,
		GetObjectTypeOccurrences:     in.GetObjectTypeOccurrences,
		Skip:                         in.Skip,
		Take:                         takeOr(in.Take, defaultToolTake),
	}))
}

type objectXMLLinkCountToolInput struct {
	Branch    string  `json:"branch" jsonschema:"Branch ID or 'draft'"`
	ObjectIDs []int64 `json:"objectIds" jsonschema:"Object IDs to check for incoming XML links"`
}

func (in objectXMLLinkCountToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.ObjectIDs, validation.Required),
	)
}

func (s *server) handleObjectXMLLinkCountTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in objectXMLLinkCountToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.index.ObjectXMLLinkCount(ctx, trimmed(in.Branch), in.ObjectIDs))
}

type matchStringsToolInput struct {
	Query         string   `json:"query" jsonschema:"Lucene query"`
	UseOrOperator bool     `json:"useOrOperator,omitempty" jsonschema:"Join terms with OR instead of AND"`
	Strings       []string `json:"strings" jsonschema:"Strings to test"`
}

func (in matchStringsToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Query, validation.Required),
		validation.Field(&in.Strings, validation.Required),
	)
}

func (s *server) handleMatchStringsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in matchStringsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.index.MatchStrings(ctx, index.MatchStringsRequest{
		Query:         in.Query,
		UseOrOperator: in.UseOrOperator,
		Strings:       in.Strings,
	}))
}
