package mcp

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type getBranchToolInput struct {
	ID         string `json:"id" jsonschema:"Branch ID or 'draft'"`
	Attributes string `json:"attributes,omitempty" jsonschema:"Comma-separated attribute IDs to return"`
	Variants   string `json:"variants,omitempty" jsonschema:"Comma-separated variant IDs to return"`
	Languages  string `json:"languages,omitempty" jsonschema:"Comma-separated language IDs to return (201=EN, 202=DE)"`
}

func (in getBranchToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ID, validation.Required),
	)
}

func (s *server) handleGetBranchTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in getBranchToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.GetBranch(ctx, trimmed(in.ID), valueQuery(in.Attributes, in.Variants, in.Languages)))
}

type createBranchToolInput struct {
	Values   []valueInput `json:"values" jsonschema:"Branch values; include 1000 (name per language) and 4000 (parent branch ID)"`
	Comment  string       `json:"comment,omitempty" jsonschema:"Audit comment"`
	Username string       `json:"username,omitempty" jsonschema:"Acting user name for the audit trail"`
}

func (in createBranchToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Values, validation.Required),
	)
}

func (s *server) handleCreateBranchTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in createBranchToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	values, err := toValues(in.Values)
	if err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.CreateBranch(ctx, values, audit(in.Comment, in.Username)))
}

type updateBranchToolInput struct {
	ID       string       `json:"id" jsonschema:"Branch ID"`
	Values   []valueInput `json:"values" jsonschema:"Values to change; unsent attributes stay as they are"`
	Comment  string       `json:"comment,omitempty" jsonschema:"Audit comment"`
	Username string       `json:"username,omitempty" jsonschema:"Acting user name for the audit trail"`
}

func (in updateBranchToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ID, validation.Required),
		validation.Field(&in.Values, validation.Required),
	)
}

func (s *server) handleUpdateBranchTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in updateBranchToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	values, err := toValues(in.Values)
	if err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.UpdateBranch(ctx, trimmed(in.ID), values, audit(in.Comment, in.Username)))
}

type deleteBranchToolInput struct {
	ID       string `json:"id" jsonschema:"Branch ID"`
	Comment  string `json:"comment,omitempty" jsonschema:"Audit comment"`
	Username string `json:"username,omitempty" jsonschema:"Acting user name for the audit trail"`
}

func (in deleteBranchToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ID, validation.Required),
	)
}

func (s *server) handleDeleteBranchTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in deleteBranchToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.DeleteBranch(ctx, trimmed(in.ID), audit(in.Comment, in.Username)))
}
