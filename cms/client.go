package cms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/novadb/novadb-mcp-demo/client"
)

// DefaultTake is the page size applied to cursor-paginated list endpoints
// when the caller does not set one.
const DefaultTake = 20

// UsernameHeader attributes a write to an acting user without a separate
// login.
const UsernameHeader = "X-CmsApi-Username"

// Transport is the subset of *client.Client used by Client.
type Transport interface {
	Get(ctx context.Context, path string, query client.Query) (json.RawMessage, error)
	Post(ctx context.Context, path string, query client.Query, body any, headers http.Header) (json.RawMessage, error)
	Patch(ctx context.Context, path string, query client.Query, body any, headers http.Header) (json.RawMessage, error)
	Delete(ctx context.Context, path string, query client.Query, body any, headers http.Header) (json.RawMessage, error)
	GetRaw(ctx context.Context, path string, query client.Query) (*http.Response, error)
	PostForm(ctx context.Context, path string, query client.Query, form *client.Form) (json.RawMessage, error)
	PutForm(ctx context.Context, path string, query client.Query, form *client.Form) (json.RawMessage, error)
}

// Client maps CMS nouns onto REST paths under the CMS API root. Responses are
// returned as the server sent them.
type Client struct {
	t Transport
}

// NewClient wraps transport.
func NewClient(t Transport) *Client {
	return &Client{t: t}
}

// Audit carries optional attribution for write calls.
type Audit struct {
	Comment  string
	Username string
}

func (a Audit) comment() *string {
	if a.Comment == "" {
		return nil
	}
	c := a.Comment
	return &c
}

func usernameHeader(username string) http.Header {
	if strings.TrimSpace(username) == "" {
		return nil
	}
	h := http.Header{}
	h.Set(UsernameHeader, username)
	return h
}

// ValueQuery filters the value matrix returned for an object or branch.
// Each field is a comma-separated list of IDs, GUIDs or ApiIdentifiers.
type ValueQuery struct {
	Attributes string
	Variants   string
	Languages  string
}

func (q ValueQuery) apply(query client.Query) client.Query {
	return query.
		Set("attributes", q.Attributes).
		Set("variants", q.Variants).
		Set("languages", q.Languages)
}

// ObjectQuery is the parameter set for single and multi object reads.
type ObjectQuery struct {
	Inherited *bool
	ValueQuery
}

func (q ObjectQuery) apply(query client.Query) client.Query {
	return q.ValueQuery.apply(query.Set("inherited", q.Inherited))
}

// TypedObjectsQuery pages through objects of one type.
type TypedObjectsQuery struct {
	Deleted   *bool
	Inherited *bool
	Continue  string
	Take      int
	ValueQuery
}

// GetObject fetches one object by ID, GUID or ApiIdentifier.
func (c *Client) GetObject(ctx context.Context, branch, id string, q ObjectQuery) (json.RawMessage, error) {
	return c.t.Get(ctx, "/branches/"+seg(branch)+"/objects/"+seg(id), q.apply(client.NewQuery()))
}

// GetObjects fetches several objects; ids is comma separated.
func (c *Client) GetObjects(ctx context.Context, branch, ids string, q ObjectQuery) (json.RawMessage, error) {
	return c.t.Get(ctx, "/branches/"+seg(branch)+"/objects", q.apply(client.NewQuery().Set("ids", ids)))
}

// GetTypedObjects lists objects of typ, DefaultTake per page unless set.
func (c *Client) GetTypedObjects(ctx context.Context, branch, typ string, q TypedObjectsQuery) (json.RawMessage, error) {
	query := client.NewQuery().
		Set("deleted", q.Deleted).
		Set("inherited", q.Inherited).
		Set("continue", q.Continue).
		Set("take", takeOrDefault(q.Take, DefaultTake))
	return c.t.Get(ctx, "/branches/"+seg(branch)+"/types/"+seg(typ)+"/objects", q.ValueQuery.apply(query))
}

type objectsBody struct {
	Comment *string  `json:"comment"`
	Objects []Object `json:"objects"`
}

// CreateObjects creates objects and returns the server's created-ID list.
func (c *Client) CreateObjects(ctx context.Context, branch string, objects []Object, a Audit) (json.RawMessage, error) {
	return c.t.Post(ctx, "/branches/"+seg(branch)+"/objects", nil, objectsBody{Comment: a.comment(), Objects: nonNilObjects(objects)}, usernameHeader(a.Username))
}

// UpdateObjects writes values for existing objects. Multi-value attributes
// use set semantics: entries not sent are deleted.
func (c *Client) UpdateObjects(ctx context.Context, branch string, objects []Object, a Audit) (json.RawMessage, error) {
	return c.t.Patch(ctx, "/branches/"+seg(branch)+"/objects", nil, objectsBody{Comment: a.comment(), Objects: nonNilObjects(objects)}, usernameHeader(a.Username))
}

// DeleteObjects soft-deletes objects.
func (c *Client) DeleteObjects(ctx context.Context, branch string, objectIDs []string, a Audit) (json.RawMessage, error) {
	if objectIDs == nil {
		objectIDs = []string{}
	}
	body := struct {
		Comment   *string  `json:"comment"`
		ObjectIDs []string `json:"objectIds"`
	}{Comment: a.comment(), ObjectIDs: objectIDs}
	return c.t.Delete(ctx, "/branches/"+seg(branch)+"/objects", nil, body, usernameHeader(a.Username))
}

// GetBranch fetches a branch object.
func (c *Client) GetBranch(ctx context.Context, id string, q ValueQuery) (json.RawMessage, error) {
	return c.t.Get(ctx, "/branches/"+seg(id), q.apply(client.NewQuery()))
}

type valuesBody struct {
	Comment *string `json:"comment"`
	Values  []Value `json:"values"`
}

// CreateBranch creates a branch from its attribute values.
func (c *Client) CreateBranch(ctx context.Context, values []Value, a Audit) (json.RawMessage, error) {
	return c.t.Post(ctx, "/branches", nil, valuesBody{Comment: a.comment(), Values: nonNilValues(values)}, usernameHeader(a.Username))
}

// UpdateBranch changes the given branch values.
func (c *Client) UpdateBranch(ctx context.Context, id string, values []Value, a Audit) (json.RawMessage, error) {
	return c.t.Patch(ctx, "/branches/"+seg(id), nil, valuesBody{Comment: a.comment(), Values: nonNilValues(values)}, usernameHeader(a.Username))
}

// DeleteBranch deletes a branch.
func (c *Client) DeleteBranch(ctx context.Context, id string, a Audit) (json.RawMessage, error) {
	body := struct {
		Comment *string `json:"comment"`
	}{Comment: a.comment()}
	return c.t.Delete(ctx, "/branches/"+seg(id), nil, body, usernameHeader(a.Username))
}

// CommentsQuery filters the comment list.
type CommentsQuery struct {
	BranchRef *int64
	ObjectRef *int64
	User      string
	IsDeleted *bool
	Continue  string
	Take      int
}

// GetComments lists comments, DefaultTake per page unless set.
func (c *Client) GetComments(ctx context.Context, q CommentsQuery) (json.RawMessage, error) {
	query := client.NewQuery().
		Set("branchRef", q.BranchRef).
		Set("objectRef", q.ObjectRef).
		Set("user", q.User).
		Set("isDeleted", q.IsDeleted).
		Set("continue", q.Continue).
		Set("take", takeOrDefault(q.Take, DefaultTake))
	return c.t.Get(ctx, "/comments", query)
}

// GetComment fetches one comment.
func (c *Client) GetComment(ctx context.Context, id string) (json.RawMessage, error) {
	return c.t.Get(ctx, "/comments/"+seg(id), nil)
}

// CreateComment attaches an XHTML comment body to an object.
func (c *Client) CreateComment(ctx context.Context, branchID, objectRef int64, body, username string) (json.RawMessage, error) {
	payload := struct {
		BranchID  int64  `json:"branchId"`
		ObjectRef int64  `json:"objectRef"`
		Body      string `json:"body"`
	}{BranchID: branchID, ObjectRef: objectRef, Body: body}
	return c.t.Post(ctx, "/comments", nil, payload, usernameHeader(username))
}

// UpdateComment replaces a comment body.
func (c *Client) UpdateComment(ctx context.Context, id, body, username string) (json.RawMessage, error) {
	payload := struct {
		Body string `json:"body"`
	}{Body: body}
	return c.t.Patch(ctx, "/comments/"+seg(id), nil, payload, usernameHeader(username))
}

// DeleteComment deletes a comment. No request body is sent.
func (c *Client) DeleteComment(ctx context.Context, id, username string) (json.RawMessage, error) {
	return c.t.Delete(ctx, "/comments/"+seg(id), nil, nil, usernameHeader(username))
}

// CodeGeneratorTypes generates source for the given types (comma-separated
// ids, all types when empty). The caller closes the response body.
func (c *Client) CodeGeneratorTypes(ctx context.Context, branch, language, ids string) (*http.Response, error) {
	return c.t.GetRaw(ctx, "/branches/"+seg(branch)+"/generators/"+seg(language)+"/types", client.NewQuery().Set("ids", ids))
}

// CodeGeneratorType generates source for a single type.
func (c *Client) CodeGeneratorType(ctx context.Context, branch, language, typ string) (*http.Response, error) {
	return c.t.GetRaw(ctx, "/branches/"+seg(branch)+"/generators/"+seg(language)+"/types/"+seg(typ), nil)
}

// JobsQuery filters the job list of a branch.
type JobsQuery struct {
	BranchID      int64
	DefinitionRef *int64
	State         *int
	TriggerRef    *int64
	CreatedBy     string
	IsDeleted     *bool
	Continue      string
	Take          int
}

// GetJobs lists jobs, DefaultTake per page unless set.
func (c *Client) GetJobs(ctx context.Context, q JobsQuery) (json.RawMessage, error) {
	query := client.NewQuery().
		Set("branchId", q.BranchID).
		Set("definitionRef", q.DefinitionRef).
		Set("state", q.State).
		Set("triggerRef", q.TriggerRef).
		Set("createdBy", q.CreatedBy).
		Set("isDeleted", q.IsDeleted).
		Set("continue", q.Continue).
		Set("take", takeOrDefault(q.Take, DefaultTake))
	return c.t.Get(ctx, "/jobs", query)
}

// GetJob fetches one job.
func (c *Client) GetJob(ctx context.Context, id string) (json.RawMessage, error) {
	return c.t.Get(ctx, "/jobs/"+seg(id), nil)
}

// JobLogs streams the job log. The caller closes the response body.
func (c *Client) JobLogs(ctx context.Context, id string) (*http.Response, error) {
	return c.t.GetRaw(ctx, "/jobs/"+seg(id)+"/logs", nil)
}

// CreateJobRequest describes a new server-side job.
type CreateJobRequest struct {
	BranchID        int64          `json:"branchId"`
	JobDefinitionID int64          `json:"jobDefinitionId"`
	ScopeIDs        []int64        `json:"scopeIds,omitempty"`
	ObjIDs          []int64        `json:"objIds,omitempty"`
	Parameters      []JobParameter `json:"parameters,omitempty"`
	InputFile       *JobInputFile  `json:"inputFile,omitempty"`
	Language        *int           `json:"language,omitempty"`
}

// CreateJob starts a job.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest, username string) (json.RawMessage, error) {
	return c.t.Post(ctx, "/jobs", nil, req, usernameHeader(username))
}

// UpdateJobRequest changes retention or requests a state transition. Unset
// fields are sent as null.
type UpdateJobRequest struct {
	RetainUntil *string `json:"retainUntil"`
	State       *int    `json:"state"`
}

// UpdateJob patches a job.
func (c *Client) UpdateJob(ctx context.Context, id string, req UpdateJobRequest, username string) (json.RawMessage, error) {
	return c.t.Patch(ctx, "/jobs/"+seg(id), nil, req, usernameHeader(username))
}

// DeleteJob deletes a job. No request body is sent.
func (c *Client) DeleteJob(ctx context.Context, id, username string) (json.RawMessage, error) {
	return c.t.Delete(ctx, "/jobs/"+seg(id), nil, nil, usernameHeader(username))
}

// JobMetrics returns job metrics, optionally capped at maxItems entries.
func (c *Client) JobMetrics(ctx context.Context, id string, maxItems *int) (json.RawMessage, error) {
	return c.t.Get(ctx, "/jobs/"+seg(id)+"/metrics", client.NewQuery().Set("maxItems", maxItems))
}

// JobProgress returns the job's progress record.
func (c *Client) JobProgress(ctx context.Context, id string) (json.RawMessage, error) {
	return c.t.Get(ctx, "/jobs/"+seg(id)+"/progress", nil)
}

// JobObjectIDs returns the IDs of objects the job touched.
func (c *Client) JobObjectIDs(ctx context.Context, id string) (json.RawMessage, error) {
	return c.t.Get(ctx, "/jobs/"+seg(id)+"/objectIds", nil)
}

// JobArtifacts lists a job's artifacts.
func (c *Client) JobArtifacts(ctx context.Context, id string) (json.RawMessage, error) {
	return c.t.Get(ctx, "/jobs/"+seg(id)+"/artifacts", nil)
}

// JobArtifact streams one artifact. path keeps its slashes; each segment is
// escaped on its own.
func (c *Client) JobArtifact(ctx context.Context, id, path string) (*http.Response, error) {
	if err := CheckArtifactPath(path); err != nil {
		return nil, err
	}
	return c.t.GetRaw(ctx, "/jobs/"+seg(id)+"/artifacts/"+segments(path), nil)
}

// JobArtifactsZip streams all artifacts as one zip archive.
func (c *Client) JobArtifactsZip(ctx context.Context, id string) (*http.Response, error) {
	return c.t.GetRaw(ctx, "/jobs/"+seg(id)+"/artifacts.zip", nil)
}

// Upload is one chunk of a chunked upload. Reader is streamed, not buffered.
type Upload struct {
	Filename string
	Reader   io.Reader
}

func (u Upload) validate() error {
	if u.Reader == nil {
		return fmt.Errorf("cms: upload reader required")
	}
	if strings.TrimSpace(u.Filename) == "" {
		return fmt.Errorf("cms: upload filename required")
	}
	return nil
}

// JobInputUpload sends the first chunk of a job input file and returns the
// server response carrying the upload token.
func (c *Client) JobInputUpload(ctx context.Context, u Upload) (json.RawMessage, error) {
	if err := u.validate(); err != nil {
		return nil, err
	}
	return c.t.PostForm(ctx, "/jobInput", nil, client.NewForm().File("file", u.Filename, u.Reader))
}

// JobInputContinue sends a further chunk for token.
func (c *Client) JobInputContinue(ctx context.Context, token string, u Upload) (json.RawMessage, error) {
	if err := u.validate(); err != nil {
		return nil, err
	}
	return c.t.PostForm(ctx, "/jobInput/"+seg(token), nil, client.NewForm().File("file", u.Filename, u.Reader))
}

// JobInputCancel discards every chunk uploaded under token.
func (c *Client) JobInputCancel(ctx context.Context, token string) (json.RawMessage, error) {
	return c.t.Delete(ctx, "/jobInput/"+seg(token), nil, nil, nil)
}

func fileUploadForm(u Upload, extension string, commit bool) *client.Form {
	return client.NewForm().
		Field("Extension", extension).
		Field("Commit", strconv.FormatBool(commit)).
		File("File", u.Filename, u.Reader)
}

// FileUploadStart begins a chunked file upload. With commit=true the single
// chunk is the whole file and the response carries the durable identifier.
func (c *Client) FileUploadStart(ctx context.Context, u Upload, extension string, commit bool) (json.RawMessage, error) {
	if err := u.validate(); err != nil {
		return nil, err
	}
	return c.t.PostForm(ctx, "/fileUpload", nil, fileUploadForm(u, extension, commit))
}

// FileUploadContinue appends a chunk; commit=true finalizes the upload.
func (c *Client) FileUploadContinue(ctx context.Context, token string, u Upload, extension string, commit bool) (json.RawMessage, error) {
	if err := u.validate(); err != nil {
		return nil, err
	}
	return c.t.PutForm(ctx, "/fileUpload/"+seg(token), nil, fileUploadForm(u, extension, commit))
}

// FileUploadCancel discards an unfinished upload.
func (c *Client) FileUploadCancel(ctx context.Context, token string) (json.RawMessage, error) {
	return c.t.Delete(ctx, "/fileUpload/"+seg(token), nil, nil, nil)
}

// GetFile streams a stored file. name is the file identifier (attribute
// 11000) followed by its extension (attribute 11005).
func (c *Client) GetFile(ctx context.Context, name string) (*http.Response, error) {
	return c.t.GetRaw(ctx, "/files/"+seg(name), nil)
}

func seg(s string) string {
	return url.PathEscape(strings.TrimSpace(s))
}

// CheckArtifactPath rejects empty artifact paths and paths with "." or ".."
// segments, which would leave the job's artifact directory.
func CheckArtifactPath(p string) error {
	trimmedPath := strings.Trim(strings.TrimSpace(p), "/")
	if trimmedPath == "" {
		return fmt.Errorf("cms: artifact path required")
	}
	for _, part := range strings.Split(strings.ReplaceAll(trimmedPath, `\`, "/"), "/") {
		switch part {
		case ".", "..":
			return fmt.Errorf("cms: artifact path %q must not contain %q segments", p, part)
		}
	}
	return nil
}

func segments(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func takeOrDefault(take, def int) int {
	if take <= 0 {
		return def
	}
	return take
}

func nonNilObjects(in []Object) []Object {
	if in == nil {
		return []Object{}
	}
	return in
}

func nonNilValues(in []Value) []Value {
	if in == nil {
		return []Value{}
	}
	return in
}
