package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/novadb/novadb-mcp-demo/cms"
)

type getObjectToolInput struct {
	Branch     string `json:"branch" jsonschema:"Branch ID or 'draft'"`
	ID         string `json:"id" jsonschema:"Object ID, GUID or ApiIdentifier"`
	Inherited  *bool  `json:"inherited,omitempty" jsonschema:"Include values inherited from parent branches (recommended true)"`
	Attributes string `json:"attributes,omitempty" jsonschema:"Comma-separated attribute IDs to return"`
	Variants   string `json:"variants,omitempty" jsonschema:"Comma-separated variant IDs to return"`
	Languages  string `json:"languages,omitempty" jsonschema:"Comma-separated language IDs to return (201=EN, 202=DE)"`
}

func (in getObjectToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.ID, validation.Required),
	)
}

func (s *server) handleGetObjectTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in getObjectToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.GetObject(ctx, trimmed(in.Branch), trimmed(in.ID), cms.ObjectQuery{
		Inherited:  in.Inherited,
		ValueQuery: valueQuery(in.Attributes, in.Variants, in.Languages),
	}))
}

type getObjectsToolInput struct {
	Branch     string `json:"branch" jsonschema:"Branch ID or 'draft'"`
	IDs        string `json:"ids" jsonschema:"Comma-separated object IDs, GUIDs or ApiIdentifiers"`
	Inherited  *bool  `json:"inherited,omitempty" jsonschema:"Include values inherited from parent branches (recommended true)"`
	Attributes string `json:"attributes,omitempty" jsonschema:"Comma-separated attribute IDs to return"`
	Variants   string `json:"variants,omitempty" jsonschema:"Comma-separated variant IDs to return"`
	Languages  string `json:"languages,omitempty" jsonschema:"Comma-separated language IDs to return (201=EN, 202=DE)"`
}

func (in getObjectsToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.IDs, validation.Required),
	)
}

func (s *server) handleGetObjectsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in getObjectsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.GetObjects(ctx, trimmed(in.Branch), trimmed(in.IDs), cms.ObjectQuery{
		Inherited:  in.Inherited,
		ValueQuery: valueQuery(in.Attributes, in.Variants, in.Languages),
	}))
}

type getTypedObjectsToolInput struct {
	Branch     string `json:"branch" jsonschema:"Branch ID or 'draft'"`
	Type       string `json:"type" jsonschema:"Object type ID, GUID or ApiIdentifier; 0 lists meta-types"`
	Deleted    *bool  `json:"deleted,omitempty" jsonschema:"List deleted objects instead of live ones"`
	Inherited  *bool  `json:"inherited,omitempty" jsonschema:"Include values inherited from parent branches (recommended true)"`
	Continue   string `json:"continue,omitempty" jsonschema:"Continuation token from the previous page"`
	Take       *int   `json:"take,omitempty" jsonschema:"Page size (default 5)"`
	Attributes string `json:"attributes,omitempty" jsonschema:"Comma-separated attribute IDs to return"`
	Variants   string `json:"variants,omitempty" jsonschema:"Comma-separated variant IDs to return"`
	Languages  string `json:"languages,omitempty" jsonschema:"Comma-separated language IDs to return (201=EN, 202=DE)"`
}

func (in getTypedObjectsToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.Type, validation.Required),
		validation.Field(&in.Take, takeRules...),
	)
}

func (s *server) handleGetTypedObjectsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in getTypedObjectsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.GetTypedObjects(ctx, trimmed(in.Branch), trimmed(in.Type), cms.TypedObjectsQuery{
		Deleted:    in.Deleted,
		Inherited:  in.Inherited,
		Continue:   trimmed(in.Continue),
		Take:       takeOr(in.Take, defaultToolTake),
		ValueQuery: valueQuery(in.Attributes, in.Variants, in.Languages),
	}))
}

type writeObjectsToolInput struct {
	Branch   string        `json:"branch" jsonschema:"Branch ID or 'draft'"`
	Objects  []objectInput `json:"objects" jsonschema:"Objects with meta and values"`
	Comment  string        `json:"comment,omitempty" jsonschema:"Audit comment"`
	Username string        `json:"username,omitempty" jsonschema:"Acting user name for the audit trail"`
}

func (in writeObjectsToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.Objects, validation.Required),
	)
}

func (s *server) handleCreateObjectsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in writeObjectsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	objects, err := toObjects(in.Objects)
	if err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.CreateObjects(ctx, trimmed(in.Branch), objects, audit(in.Comment, in.Username)))
}

func (s *server) handleUpdateObjectsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in writeObjectsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	for i, o := range in.Objects {
		if !o.hasIdentity() {
			return nil, nil, invalidArgument(fmt.Errorf("objects[%d].meta: id, guid or apiIdentifier is required on update", i))
		}
	}
	objects, err := toObjects(in.Objects)
	if err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.UpdateObjects(ctx, trimmed(in.Branch), objects, audit(in.Comment, in.Username)))
}

type deleteObjectsToolInput struct {
	Branch    string   `json:"branch" jsonschema:"Branch ID or 'draft'"`
	ObjectIDs []string `json:"objectIds" jsonschema:"Object IDs, GUIDs or ApiIdentifiers to delete"`
	Comment   string   `json:"comment,omitempty" jsonschema:"Audit comment"`
	Username  string   `json:"username,omitempty" jsonschema:"Acting user name for the audit trail"`
}

func (in deleteObjectsToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.ObjectIDs, validation.Required, validation.Each(validation.Required)),
	)
}

func (s *server) handleDeleteObjectsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in deleteObjectsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	ids := make([]string, 0, len(in.ObjectIDs))
	for _, id := range in.ObjectIDs {
		ids = append(ids, trimmed(id))
	}
	return jsonCall(s.cms.DeleteObjects(ctx, trimmed(in.Branch), ids, audit(in.Comment, in.Username)))
}

const codeGenLanguageCSharp = "csharp"

var codeGenLanguageRule = validation.In(codeGenLanguageCSharp).Error("must be csharp")

type codeGeneratorTypesToolInput struct {
	Branch     string `json:"branch" jsonschema:"Branch ID or 'draft'"`
	Language   string `json:"language" jsonschema:"Target language; only 'csharp' is supported"`
	IDs        string `json:"ids,omitempty" jsonschema:"Comma-separated type IDs; empty generates all types"`
	TargetPath string `json:"targetPath,omitempty" jsonschema:"Workspace-relative output file (disk mode)"`
}

func (in codeGeneratorTypesToolInput) Validate() error {
	lang := strings.ToLower(trimmed(in.Language))
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.Language, validation.Required, validation.By(func(any) error {
			return codeGenLanguageRule.Validate(lang)
		})),
	)
}

func (s *server) handleCodeGeneratorTypesTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in codeGeneratorTypesToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	branch := trimmed(in.Branch)
	lang := strings.ToLower(trimmed(in.Language))
	return s.deliverDownload(ctx, download{
		tool:        toolCMSCodeGeneratorTypes,
		targetPath:  in.TargetPath,
		defaultPath: fmt.Sprintf("codegen-%s-%s.cs", branch, lang),
	}, func(ctx context.Context) (*http.Response, error) {
		return s.cms.CodeGeneratorTypes(ctx, branch, lang, trimmed(in.IDs))
	})
}

type codeGeneratorTypeToolInput struct {
	Branch   string `json:"branch" jsonschema:"Branch ID or 'draft'"`
	Language string `json:"language" jsonschema:"Target language; only 'csharp' is supported"`
	Type     string `json:"type" jsonschema:"Object type ID, GUID or ApiIdentifier"`
}

func (in codeGeneratorTypeToolInput) Validate() error {
	lang := strings.ToLower(trimmed(in.Language))
	return validation.ValidateStruct(&in,
		validation.Field(&in.Branch, validation.Required),
		validation.Field(&in.Language, validation.Required, validation.By(func(any) error {
			return codeGenLanguageRule.Validate(lang)
		})),
		validation.Field(&in.Type, validation.Required),
	)
}

// handleCodeGeneratorTypeTool returns the generated source inline in every
// payload mode; the inline limit still bounds it.
func (s *server) handleCodeGeneratorTypeTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in codeGeneratorTypeToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	resp, err := s.cms.CodeGeneratorType(ctx, trimmed(in.Branch), strings.ToLower(trimmed(in.Language)), trimmed(in.Type))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	content, err := readInlinePayloadStrict(contextReader{ctx: ctx, r: resp.Body}, s.cfg.InlineMaxBytes, "text/plain", toolCMSCodeGeneratorType)
	if err != nil {
		return nil, nil, err
	}
	return textResult(content.render()), nil, nil
}

func valueQuery(attributes, variants, languages string) cms.ValueQuery {
	return cms.ValueQuery{
		Attributes: trimmed(attributes),
		Variants:   trimmed(variants),
		Languages:  trimmed(languages),
	}
}

func audit(comment, username string) cms.Audit {
	return cms.Audit{Comment: trimmed(comment), Username: trimmed(username)}
}
