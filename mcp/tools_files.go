package mcp

import (
	"context"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/novadb/novadb-mcp-demo/cms"
)

// Chunk-carrying inputs take sourcePath in disk mode and contentBase64 in
// inline mode; the payload strategy rejects the other one.
type jobInputUploadToolInput struct {
	SourcePath    string `json:"sourcePath,omitempty" jsonschema:"Workspace-relative file to upload (disk mode)"`
	ContentBase64 string `json:"contentBase64,omitempty" jsonschema:"Base64 chunk content (inline mode)"`
	Filename      string `json:"filename,omitempty" jsonschema:"File name sent to NovaDB; defaults to the source basename in disk mode"`
}

type jobInputContinueToolInput struct {
	Token         string `json:"token" jsonschema:"Upload token from novadb_cms_job_input_upload"`
	SourcePath    string `json:"sourcePath,omitempty" jsonschema:"Workspace-relative file to upload (disk mode)"`
	ContentBase64 string `json:"contentBase64,omitempty" jsonschema:"Base64 chunk content (inline mode)"`
	Filename      string `json:"filename,omitempty" jsonschema:"File name sent to NovaDB; defaults to the source basename in disk mode"`
}

func (in jobInputContinueToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Token, validation.Required),
	)
}

type uploadTokenToolInput struct {
	Token string `json:"token" jsonschema:"Upload token"`
}

func (in uploadTokenToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Token, validation.Required),
	)
}

func (s *server) openChunk(tool, sourcePath, contentBase64, filename string) (uploadBody, error) {
	body, err := s.payload.openUpload(uploadSource{
		tool:          tool,
		sourcePath:    sourcePath,
		contentBase64: contentBase64,
		filename:      filename,
	})
	if err != nil {
		return uploadBody{}, err
	}
	s.payloadLog.Debug("mcp.payload.upload.open", "tool", tool, "filename", body.filename, "bytes", body.size)
	return body, nil
}

func (s *server) handleJobInputUploadTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in jobInputUploadToolInput) (*mcpsdk.CallToolResult, any, error) {
	chunk, err := s.openChunk(toolCMSJobInputUpload, in.SourcePath, in.ContentBase64, in.Filename)
	if err != nil {
		return nil, nil, err
	}
	defer chunk.Close()
	return jsonCall(s.cms.JobInputUpload(ctx, cms.Upload{Filename: chunk.filename, Reader: chunk.reader}))
}

func (s *server) handleJobInputContinueTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in jobInputContinueToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	token := trimmed(in.Token)
	if err := s.uploads.check(uploadKindJobInput, token); err != nil {
		return nil, nil, err
	}
	chunk, err := s.openChunk(toolCMSJobInputContinue, in.SourcePath, in.ContentBase64, in.Filename)
	if err != nil {
		return nil, nil, err
	}
	defer chunk.Close()
	return jsonCall(s.cms.JobInputContinue(ctx, token, cms.Upload{Filename: chunk.filename, Reader: chunk.reader}))
}

func (s *server) handleJobInputCancelTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in uploadTokenToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	token := trimmed(in.Token)
	if err := s.uploads.check(uploadKindJobInput, token); err != nil {
		return nil, nil, err
	}
	raw, err := s.cms.JobInputCancel(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	s.uploads.record(uploadKindJobInput, token, uploadCancelled)
	return jsonResult(raw)
}

type uploadFileToolInput struct {
	SourcePath    string `json:"sourcePath,omitempty" jsonschema:"Workspace-relative file to upload (disk mode)"`
	ContentBase64 string `json:"contentBase64,omitempty" jsonschema:"Base64 chunk content (inline mode)"`
	Filename      string `json:"filename,omitempty" jsonschema:"File name sent to NovaDB; defaults to the source basename in disk mode"`
	Extension     string `json:"extension" jsonschema:"File extension without dot, e.g. 'png'"`
	Commit        bool   `json:"commit" jsonschema:"true stores the file after this chunk"`
}

func (in uploadFileToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Extension, validation.Required),
	)
}

type uploadFileContinueToolInput struct {
	Token         string `json:"token" jsonschema:"Upload token from novadb_cms_upload_file"`
	SourcePath    string `json:"sourcePath,omitempty" jsonschema:"Workspace-relative file to upload (disk mode)"`
	ContentBase64 string `json:"contentBase64,omitempty" jsonschema:"Base64 chunk content (inline mode)"`
	Filename      string `json:"filename,omitempty" jsonschema:"File name sent to NovaDB; defaults to the source basename in disk mode"`
	Extension     string `json:"extension" jsonschema:"File extension without dot, e.g. 'png'"`
	Commit        bool   `json:"commit" jsonschema:"true stores the file after this chunk"`
}

func (in uploadFileContinueToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Token, validation.Required),
		validation.Field(&in.Extension, validation.Required),
	)
}

func normalizeExtension(ext string) string {
	return strings.TrimPrefix(trimmed(ext), ".")
}

func (s *server) handleUploadFileTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in uploadFileToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	chunk, err := s.openChunk(toolCMSUploadFile, in.SourcePath, in.ContentBase64, in.Filename)
	if err != nil {
		return nil, nil, err
	}
	defer chunk.Close()
	return jsonCall(s.cms.FileUploadStart(ctx, cms.Upload{Filename: chunk.filename, Reader: chunk.reader}, normalizeExtension(in.Extension), in.Commit))
}

func (s *server) handleUploadFileContinueTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in uploadFileContinueToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	token := trimmed(in.Token)
	if err := s.uploads.check(uploadKindFile, token); err != nil {
		return nil, nil, err
	}
	chunk, err := s.openChunk(toolCMSUploadFileContinue, in.SourcePath, in.ContentBase64, in.Filename)
	if err != nil {
		return nil, nil, err
	}
	defer chunk.Close()
	raw, err := s.cms.FileUploadContinue(ctx, token, cms.Upload{Filename: chunk.filename, Reader: chunk.reader}, normalizeExtension(in.Extension), in.Commit)
	if err != nil {
		return nil, nil, err
	}
	if in.Commit {
		s.uploads.record(uploadKindFile, token, uploadCommitted)
	}
	return jsonResult(raw)
}

func (s *server) handleUploadFileCancelTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in uploadTokenToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	token := trimmed(in.Token)
	if err := s.uploads.check(uploadKindFile, token); err != nil {
		return nil, nil, err
	}
	raw, err := s.cms.FileUploadCancel(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	s.uploads.record(uploadKindFile, token, uploadCancelled)
	return jsonResult(raw)
}

type getFileToolInput struct {
	Name       string `json:"name" jsonschema:"fileIdentifier plus extension, e.g. '5fe618811cca585a2826a2da06e3ce1b.png' (attributes 11000 and 11005)"`
	TargetPath string `json:"targetPath,omitempty" jsonschema:"Workspace-relative output file (disk mode)"`
}

func (in getFileToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required),
	)
}

func (s *server) handleGetFileTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in getFileToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	name := trimmed(in.Name)
	return s.deliverDownload(ctx, download{
		tool:        toolCMSGetFile,
		targetPath:  in.TargetPath,
		defaultPath: name,
	}, func(ctx context.Context) (*http.Response, error) {
		return s.cms.GetFile(ctx, name)
	})
}
