package mcp

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/novadb/novadb-mcp-demo/cms"
)

type getJobsToolInput struct {
	BranchID      int64  `json:"branchId" jsonschema:"Branch ID"`
	DefinitionRef *int64 `json:"definitionRef,omitempty" jsonschema:"Only jobs of this job definition"`
	State         *int   `json:"state,omitempty" jsonschema:"Job state: 0=New 1=Running 2=Succeeded 3=Error 4=KillRequested 5=RestartRequested"`
	TriggerRef    *int64 `json:"triggerRef,omitempty" jsonschema:"Only jobs started by this trigger"`
	CreatedBy     string `json:"createdBy,omitempty" jsonschema:"Only jobs created by this user"`
	IsDeleted     *bool  `json:"isDeleted,omitempty" jsonschema:"Only deleted (true) or live (false) jobs"`
	Continue      string `json:"continue,omitempty" jsonschema:"Continuation token from the previous page"`
	Take          *int   `json:"take,omitempty" jsonschema:"Page size (default 5)"`
}

func (in getJobsToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.BranchID, idRules...),
		validation.Field(&in.State, validation.Min(cms.JobStateNew), validation.Max(cms.JobStateRestartRequested)),
		validation.Field(&in.Take, takeRules...),
	)
}

func (s *server) handleGetJobsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in getJobsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.GetJobs(ctx, cms.JobsQuery{
		BranchID:      in.BranchID,
		DefinitionRef: in.DefinitionRef,
		State:         in.State,
		TriggerRef:    in.TriggerRef,
		CreatedBy:     trimmed(in.CreatedBy),
		IsDeleted:     in.IsDeleted,
		Continue:      trimmed(in.Continue),
		Take:          takeOr(in.Take, defaultToolTake),
	}))
}

type jobIDToolInput struct {
	JobID int64 `json:"jobId" jsonschema:"Job ID"`
}

func (in jobIDToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.JobID, idRules...),
	)
}

func (s *server) handleGetJobTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in jobIDToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.GetJob(ctx, idString(in.JobID)))
}

func (s *server) handleGetJobProgressTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in jobIDToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.JobProgress(ctx, idString(in.JobID)))
}

func (s *server) handleGetJobObjectIDsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in jobIDToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.JobObjectIDs(ctx, idString(in.JobID)))
}

func (s *server) handleGetJobArtifactsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in jobIDToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.JobArtifacts(ctx, idString(in.JobID)))
}

type jobDownloadToolInput struct {
	JobID      int64  `json:"jobId" jsonschema:"Job ID"`
	TargetPath string `json:"targetPath,omitempty" jsonschema:"Workspace-relative output file (disk mode)"`
}

func (in jobDownloadToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.JobID, idRules...),
	)
}

func (s *server) handleGetJobLogsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in jobDownloadToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	id := idString(in.JobID)
	return s.deliverDownload(ctx, download{
		tool:        toolCMSGetJobLogs,
		targetPath:  in.TargetPath,
		defaultPath: fmt.Sprintf("job-%s-logs.txt", id),
	}, func(ctx context.Context) (*http.Response, error) {
		return s.cms.JobLogs(ctx, id)
	})
}

func (s *server) handleGetJobArtifactsZipTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in jobDownloadToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	id := idString(in.JobID)
	return s.deliverDownload(ctx, download{
		tool:        toolCMSGetJobArtifactsZ,
		targetPath:  in.TargetPath,
		defaultPath: fmt.Sprintf("job-%s-artifacts.zip", id),
	}, func(ctx context.Context) (*http.Response, error) {
		return s.cms.JobArtifactsZip(ctx, id)
	})
}

type jobArtifactToolInput struct {
	JobID      int64  `json:"jobId" jsonschema:"Job ID"`
	Path       string `json:"path" jsonschema:"Artifact path as listed by novadb_cms_get_job_artifacts"`
	TargetPath string `json:"targetPath,omitempty" jsonschema:"Workspace-relative output file (disk mode)"`
}

func (in jobArtifactToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.JobID, idRules...),
		validation.Field(&in.Path, validation.Required, validation.By(artifactPathRule)),
	)
}

func artifactPathRule(value any) error {
	p, _ := value.(string)
	return cms.CheckArtifactPath(p)
}

func (s *server) handleGetJobArtifactTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in jobArtifactToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	id := idString(in.JobID)
	artifact := strings.Trim(trimmed(in.Path), "/")
	return s.deliverDownload(ctx, download{
		tool:        toolCMSGetJobArtifact,
		targetPath:  in.TargetPath,
		defaultPath: path.Join(fmt.Sprintf("job-%s-artifacts", id), artifact),
	}, func(ctx context.Context) (*http.Response, error) {
		return s.cms.JobArtifact(ctx, id, artifact)
	})
}

type jobMetricsToolInput struct {
	JobID    int64 `json:"jobId" jsonschema:"Job ID"`
	MaxItems *int  `json:"maxItems,omitempty" jsonschema:"Maximum number of data points"`
}

func (in jobMetricsToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.JobID, idRules...),
		validation.Field(&in.MaxItems, validation.NilOrNotEmpty, validation.Min(1)),
	)
}

func (s *server) handleGetJobMetricsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in jobMetricsToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.JobMetrics(ctx, idString(in.JobID), in.MaxItems))
}

type jobParameterInput struct {
	Name   string   `json:"name" jsonschema:"Parameter name"`
	Values []string `json:"values" jsonschema:"Parameter values"`
}

func (p jobParameterInput) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
	)
}

type jobInputFileInput struct {
	Token string `json:"token" jsonschema:"Token returned by novadb_cms_job_input_upload"`
	Name  string `json:"name" jsonschema:"Original file name"`
}

func (f jobInputFileInput) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Token, validation.Required),
		validation.Field(&f.Name, validation.Required),
	)
}

type createJobToolInput struct {
	BranchID        int64               `json:"branchId" jsonschema:"Branch ID the job runs against"`
	JobDefinitionID int64               `json:"jobDefinitionId" jsonschema:"Job definition ID"`
	ScopeIDs        []int64             `json:"scopeIds,omitempty" jsonschema:"Scope object IDs"`
	ObjIDs          []int64             `json:"objIds,omitempty" jsonschema:"Object IDs to process"`
	Parameters      []jobParameterInput `json:"parameters,omitempty" jsonschema:"Named job parameters"`
	InputFile       *jobInputFileInput  `json:"inputFile,omitempty" jsonschema:"Uploaded job input file"`
	Language        *int                `json:"language,omitempty" jsonschema:"Language ID (201=EN, 202=DE)"`
	Username        string              `json:"username,omitempty" jsonschema:"Acting user name"`
}

func (in createJobToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.BranchID, idRules...),
		validation.Field(&in.JobDefinitionID, idRules...),
		validation.Field(&in.Parameters),
		validation.Field(&in.InputFile),
	)
}

func (s *server) handleCreateJobTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in createJobToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	req := cms.CreateJobRequest{
		BranchID:        in.BranchID,
		JobDefinitionID: in.JobDefinitionID,
		ScopeIDs:        in.ScopeIDs,
		ObjIDs:          in.ObjIDs,
		Language:        in.Language,
	}
	for _, p := range in.Parameters {
		values := p.Values
		if values == nil {
			values = []string{}
		}
		req.Parameters = append(req.Parameters, cms.JobParameter{Name: trimmed(p.Name), Values: values})
	}
	if in.InputFile != nil {
		req.InputFile = &cms.JobInputFile{Token: trimmed(in.InputFile.Token), Name: trimmed(in.InputFile.Name)}
	}
	return jsonCall(s.cms.CreateJob(ctx, req, trimmed(in.Username)))
}

type updateJobToolInput struct {
	JobID       int64  `json:"jobId" jsonschema:"Job ID"`
	RetainUntil string `json:"retainUntil,omitempty" jsonschema:"Keep the job until this RFC 3339 date-time"`
	State       *int   `json:"state,omitempty" jsonschema:"Requested state: 4=KillRequested or 5=RestartRequested"`
	Username    string `json:"username,omitempty" jsonschema:"Acting user name"`
}

func (in updateJobToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.JobID, idRules...),
		validation.Field(&in.RetainUntil, validation.Date(time.RFC3339).Error("must be an RFC 3339 date-time")),
		validation.Field(&in.State, validation.NilOrNotEmpty,
			validation.In(cms.JobStateKillRequested, cms.JobStateRestartRequested).Error("must be 4 (kill) or 5 (restart)")),
	)
}

func (s *server) handleUpdateJobTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in updateJobToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	req := cms.UpdateJobRequest{State: in.State}
	if retain := trimmed(in.RetainUntil); retain != "" {
		req.RetainUntil = &retain
	}
	return jsonCall(s.cms.UpdateJob(ctx, idString(in.JobID), req, trimmed(in.Username)))
}

type deleteJobToolInput struct {
	JobID    int64  `json:"jobId" jsonschema:"Job ID"`
	Username string `json:"username,omitempty" jsonschema:"Acting user name"`
}

func (in deleteJobToolInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.JobID, idRules...),
	)
}

func (s *server) handleDeleteJobTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in deleteJobToolInput) (*mcpsdk.CallToolResult, any, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	return jsonCall(s.cms.DeleteJob(ctx, idString(in.JobID), trimmed(in.Username)))
}
