package mcp

import (
	"context"
	"regexp"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/novadb/novadb-mcp-demo/cms"
)

var xhtmlDivBody = regexp.MustCompile(`(?s)^\s*<div[\s>/].*</div>\s*$`)

var commentBodyRules = []validation.Rule{
	validation.Required,
	validation.Match(xhtmlDivBody).Error("must be XHTML with a <div> root element"),
}

var idRules = []validation.Rule{validation.Required, validation.Min(int64(1))}

func idString(id int64) string { return strconv.FormatInt(id, 10) }

type getCommentsToolInput struct {
	BranchRef *int64 `json:"branchRef,omitempty" jsonschema:"Only comments on this branch"`
	ObjectRef *int64 `json:"objectRef,omitempty" jsonschema:"Only comments on this object"`
	User      string `json:"user,omitempty" jsonschema:"Only comments by this author"`
	IsDeleted *bool  `json:"isDeleted,omitempty" jsonschema:"Only deleted (true) or live (false) comments"`
	Continue  string `json:"continue,omitempty" jsonschema:"Continuation token from the previous page"`
	Take      *int   `json:"take,omitempty" jsonschema:"Page size (default 5)"`
}

func (in getCommentsToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Take, takeRules...),
	)
}

func (s *server) handleGetCommentsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in getCommentsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.GetComments(ctx, cms.CommentsQuery{
		BranchRef: in.BranchRef,
		ObjectRef: in.ObjectRef,
		User:      trimmed(in.User),
		IsDeleted: in.IsDeleted,
		Continue:  trimmed(in.Continue),
		Take:      takeOr(in.Take, defaultToolTake),
	}))
}

type commentIDToolInput struct {
	CommentID int64 `json:"commentId" jsonschema:"Comment ID"`
}

func (in commentIDToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.CommentID, idRules...),
	)
}

func (s *server) handleGetCommentTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in commentIDToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.GetComment(ctx, idString(in.CommentID)))
}

type createCommentToolInput struct {
	BranchID  int64  `json:"branchId" jsonschema:"Branch ID"`
	ObjectRef int64  `json:"objectRef" jsonschema:"ID of the commented object"`
	Body      string `json:"body" jsonschema:"XHTML body with a <div> root, e.g. '<div>Looks good</div>'"`
	Username  string `json:"username,omitempty" jsonschema:"Acting user name"`
}

func (in createCommentToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.BranchID, idRules...),
		validation.Field(&in.ObjectRef, idRules...),
		validation.Field(&in.Body, commentBodyRules...),
	)
}

func (s *server) handleCreateCommentTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in createCommentToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.CreateComment(ctx, in.BranchID, in.ObjectRef, in.Body, trimmed(in.Username)))
}

type updateCommentToolInput struct {
	CommentID int64  `json:"commentId" jsonschema:"Comment ID"`
	Body      string `json:"body" jsonschema:"New XHTML body with a <div> root"`
	Username  string `json:"username,omitempty" jsonschema:"Acting user name"`
}

func (in updateCommentToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.CommentID, idRules...),
		validation.Field(&in.Body, commentBodyRules...),
	)
}

func (s *server) handleUpdateCommentTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in updateCommentToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.UpdateComment(ctx, idString(in.CommentID), in.Body, trimmed(in.Username)))
}

type deleteCommentToolInput struct {
	CommentID int64  `json:"commentId" jsonschema:"Comment ID"`
	Username  string `json:"username,omitempty" jsonschema:"Acting user name"`
}

func (in deleteCommentToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.CommentID, idRules...),
	)
}

func (s *server) handleDeleteCommentTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in deleteCommentToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.DeleteComment(ctx, idString(in.CommentID), trimmed(in.Username)))
}
