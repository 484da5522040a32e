package cms

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/novadb/novadb-mcp-demo/client"
	"github.com/novadb/novadb-mcp-demo/internal/novatest"
)

const testTypeRef = 500

func newTestCMS(t *testing.T) (*novatest.Server, *Client) {
	t.Helper()
	srv := novatest.Start(t)
	user, password := srv.CMSCredentials()
	transport, err := client.New(srv.CMSBaseURL(), user, password, client.WithHTTPClient(srv.HTTPClient()), client.WithTracing(false))
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	return srv, NewClient(transport)
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out
}

type objectResponse struct {
	Meta struct {
		ID      int64 `json:"id"`
		TypeRef int   `json:"typeRef"`
	} `json:"meta"`
	Values []Value `json:"values"`
}

func TestCreateThenReadRoundTrip(t *testing.T) {
	t.Parallel()
	_, c := newTestCMS(t)
	ctx := context.Background()

	raw, err := c.CreateObjects(ctx, DraftBranch, []Object{{
		Meta:   ObjectMeta{TypeRef: testTypeRef},
		Values: []Value{{Attribute: AttributeName, Language: LanguageEN, Value: String("Acme")}},
	}}, Audit{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	created := decode[struct {
		CreatedObjectIDs []int64 `json:"createdObjectIds"`
	}](t, raw)
	if len(created.CreatedObjectIDs) != 1 || created.CreatedObjectIDs[0] <= 0 {
		t.Fatalf("unexpected created ids %v", created.CreatedObjectIDs)
	}

	id := created.CreatedObjectIDs[0]
	raw, err = c.GetObject(ctx, DraftBranch, jsonID(id), ObjectQuery{Inherited: boolPtr(true)})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	obj := decode[objectResponse](t, raw)
	if obj.Meta.TypeRef != testTypeRef {
		t.Fatalf("typeRef = %d", obj.Meta.TypeRef)
	}
	found := false
	for _, v := range obj.Values {
		s, ok := v.Value.StringValue()
		if v.Attribute == AttributeName && v.Language == LanguageEN && v.Variant == 0 && ok && s == "Acme" {
			found = true
		}
	}
	if !found {
		t.Fatalf("value not round-tripped: %+v", obj.Values)
	}
}

func TestMultiValueOrderRoundTrips(t *testing.T) {
	t.Parallel()
	_, c := newTestCMS(t)
	ctx := context.Background()

	values := []Value{
		{Attribute: 2000, Value: Int(30), SortReverse: intPtr(2)},
		{Attribute: 2000, Value: Int(10), SortReverse: intPtr(0)},
		{Attribute: 2000, Value: Int(20), SortReverse: intPtr(1)},
	}
	raw, err := c.CreateObjects(ctx, DraftBranch, []Object{{Meta: ObjectMeta{TypeRef: testTypeRef}, Values: values}}, Audit{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := decode[struct {
		CreatedObjectIDs []int64 `json:"createdObjectIds"`
	}](t, raw).CreatedObjectIDs[0]

	raw, err = c.GetObject(ctx, DraftBranch, jsonID(id), ObjectQuery{Inherited: boolPtr(true), ValueQuery: ValueQuery{Attributes: "2000"}})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	obj := decode[objectResponse](t, raw)
	bySort := map[int]float64{}
	for _, v := range obj.Values {
		if v.Attribute != 2000 || v.SortReverse == nil {
			continue
		}
		n, _ := v.Value.NumberValue()
		bySort[*v.SortReverse] = n
	}
	for key, want := range map[int]float64{0: 10, 1: 20, 2: 30} {
		if bySort[key] != want {
			t.Fatalf("sortReverse %d = %v, want %v (all %v)", key, bySort[key], want, bySort)
		}
	}
}

func TestTypedObjectsCursorPaging(t *testing.T) {
	t.Parallel()
	srv, c := newTestCMS(t)
	ctx := context.Background()
	for _, name := range []string{"one", "two", "three"} {
		srv.SeedObject(DraftBranch, testTypeRef, name)
	}

	type page struct {
		Objects  []objectResponse `json:"objects"`
		Continue string           `json:"continue"`
	}
	seen := map[int64]bool{}
	token := ""
	for i := 0; i < 3; i++ {
		raw, err := c.GetTypedObjects(ctx, DraftBranch, "500", TypedObjectsQuery{Take: 1, Continue: token})
		if err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
		p := decode[page](t, raw)
		if len(p.Objects) != 1 {
			t.Fatalf("page %d: %d objects", i, len(p.Objects))
		}
		if seen[p.Objects[0].Meta.ID] {
			t.Fatalf("page %d repeated object %d", i, p.Objects[0].Meta.ID)
		}
		seen[p.Objects[0].Meta.ID] = true
		if i < 2 && p.Continue == "" {
			t.Fatalf("page %d: expected continue token", i)
		}
		if i == 2 && p.Continue != "" {
			t.Fatalf("last page carries continue token %q", p.Continue)
		}
		token = p.Continue
	}
}

func TestTypedObjectsDefaultTake(t *testing.T) {
	t.Parallel()
	srv, c := newTestCMS(t)
	if _, err := c.GetTypedObjects(context.Background(), DraftBranch, "500", TypedObjectsQuery{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	req, _ := srv.LastRequest()
	q, _ := url.ParseQuery(req.RawQuery)
	if q.Get("take") != "20" {
		t.Fatalf("take = %q, want 20", q.Get("take"))
	}
	if q.Has("continue") || q.Has("deleted") {
		t.Fatalf("unset filters leaked into query %q", req.RawQuery)
	}
}

func TestAuditAttribution(t *testing.T) {
	t.Parallel()
	srv, c := newTestCMS(t)
	ctx := context.Background()
	objects := []Object{{Meta: ObjectMeta{TypeRef: testTypeRef}}}

	if _, err := c.CreateObjects(ctx, DraftBranch, objects, Audit{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	req, _ := srv.LastRequest()
	if got := req.Header.Get(UsernameHeader); got != "" {
		t.Fatalf("unexpected username header %q", got)
	}
	if !strings.Contains(string(req.Body), `"comment":null`) {
		t.Fatalf("expected null comment, body %s", req.Body)
	}

	if _, err := c.CreateObjects(ctx, DraftBranch, objects, Audit{Comment: "import", Username: "jdoe"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	req, _ = srv.LastRequest()
	if got := req.Header.Get(UsernameHeader); got != "jdoe" {
		t.Fatalf("username header = %q", got)
	}
	if !strings.Contains(string(req.Body), `"comment":"import"`) {
		t.Fatalf("expected comment, body %s", req.Body)
	}
}

func TestUpdateUsesSetSemantics(t *testing.T) {
	t.Parallel()
	srv, c := newTestCMS(t)
	ctx := context.Background()
	id := srv.SeedObject(DraftBranch, testTypeRef, "before")

	ref := id
	_, err := c.UpdateObjects(ctx, DraftBranch, []Object{{
		Meta:   ObjectMeta{ID: &ref, TypeRef: testTypeRef},
		Values: []Value{{Attribute: AttributeName, Language: LanguageDE, Value: String("nachher")}},
	}}, Audit{Username: "editor"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	obj, ok := srv.Object(id)
	if !ok {
		t.Fatalf("object %d vanished", id)
	}
	if len(obj.Values) != 1 || obj.Values[0].Language != LanguageDE {
		t.Fatalf("omitted entries should be deleted, got %+v", obj.Values)
	}
	if obj.Modifier != "editor" {
		t.Fatalf("modifier = %q", obj.Modifier)
	}
}

func TestDeleteObjectsAndBranchLifecycle(t *testing.T) {
	t.Parallel()
	srv, c := newTestCMS(t)
	ctx := context.Background()
	id := srv.SeedObject(DraftBranch, testTypeRef, "doomed")

	raw, err := c.DeleteObjects(ctx, DraftBranch, []string{jsonID(id)}, Audit{})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := decode[struct {
		DeletedObjects int `json:"deletedObjects"`
	}](t, raw).DeletedObjects; got != 1 {
		t.Fatalf("deletedObjects = %d", got)
	}

	raw, err = c.CreateBranch(ctx, []Value{
		{Attribute: AttributeName, Language: LanguageEN, Value: String("Sprint 7")},
		{Attribute: 4000, Value: Int(2100347)},
	}, Audit{Comment: "new sprint"})
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	branchID := jsonID(decode[struct {
		CreatedObjectIDs []int64 `json:"createdObjectIds"`
	}](t, raw).CreatedObjectIDs[0])

	if _, err := c.UpdateBranch(ctx, branchID, []Value{{Attribute: 4002, Value: Int(1)}}, Audit{}); err != nil {
		t.Fatalf("update branch: %v", err)
	}
	if _, err := c.GetBranch(ctx, branchID, ValueQuery{}); err != nil {
		t.Fatalf("get branch: %v", err)
	}
	raw, err = c.DeleteBranch(ctx, branchID, Audit{})
	if err != nil {
		t.Fatalf("delete branch: %v", err)
	}
	if string(raw) != "{}" {
		t.Fatalf("delete branch response %s", raw)
	}
	if _, err := c.GetBranch(ctx, branchID, ValueQuery{}); !client.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestCommentLifecycle(t *testing.T) {
	t.Parallel()
	srv, c := newTestCMS(t)
	ctx := context.Background()
	objectID := srv.SeedObject(DraftBranch, testTypeRef, "commented")

	raw, err := c.CreateComment(ctx, 2100347, objectID, "<div>first</div>", "jdoe")
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	commentID := jsonID(decode[struct {
		ID int64 `json:"id"`
	}](t, raw).ID)

	if _, err := c.UpdateComment(ctx, commentID, "<div>edited</div>", ""); err != nil {
		t.Fatalf("update comment: %v", err)
	}
	raw, err = c.GetComments(ctx, CommentsQuery{ObjectRef: &objectID})
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if !strings.Contains(string(raw), "edited") {
		t.Fatalf("edited comment missing from %s", raw)
	}

	if _, err := c.DeleteComment(ctx, commentID, "jdoe"); err != nil {
		t.Fatalf("delete comment: %v", err)
	}
	req, _ := srv.LastRequest()
	if len(req.Body) != 0 || req.Header.Get("Content-Type") != "" {
		t.Fatalf("delete comment must not send a body: %q %q", req.Body, req.Header.Get("Content-Type"))
	}
	if _, err := c.GetComment(ctx, commentID); !client.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := c.CreateComment(ctx, 2100347, objectID, "plain text", ""); err == nil {
		t.Fatalf("expected server to reject non-XHTML body")
	}
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func TestJobsAndArtifacts(t *testing.T) {
	t.Parallel()
	srv, c := newTestCMS(t)
	ctx := context.Background()
	jobID := jsonID(srv.SeedJob(2100347, "step 1\nstep 2\n", map[string][]byte{
		"out/report 1.txt": []byte("report body"),
	}))

	resp, err := c.JobLogs(ctx, jobID)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if got := readAll(t, resp); got != "step 1\nstep 2\n" {
		t.Fatalf("logs = %q", got)
	}

	resp, err = c.JobArtifact(ctx, jobID, "out/report 1.txt")
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if got := readAll(t, resp); got != "report body" {
		t.Fatalf("artifact = %q", got)
	}
	req, _ := srv.LastRequest()
	if !strings.HasSuffix(req.Path, "/artifacts/out/report 1.txt") {
		t.Fatalf("artifact path = %q", req.Path)
	}

	raw, err := c.JobMetrics(ctx, jobID, intPtr(1))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if n := len(decode[struct {
		Items []any `json:"items"`
	}](t, raw).Items); n != 1 {
		t.Fatalf("metrics items = %d", n)
	}

	if _, err := c.UpdateJob(ctx, jobID, UpdateJobRequest{State: intPtr(JobStateKillRequested)}, ""); err != nil {
		t.Fatalf("update job: %v", err)
	}
	req, _ = srv.LastRequest()
	if !strings.Contains(string(req.Body), `"retainUntil":null`) {
		t.Fatalf("unset retainUntil must be null: %s", req.Body)
	}

	for _, call := range []func(context.Context, string) (json.RawMessage, error){c.GetJob, c.JobProgress, c.JobObjectIDs, c.JobArtifacts} {
		if _, err := call(ctx, jobID); err != nil {
			t.Fatalf("job read: %v", err)
		}
	}
	resp, err = c.JobArtifactsZip(ctx, jobID)
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("zip content type %q", ct)
	}
	_ = readAll(t, resp)

	raw, err = c.GetJobs(ctx, JobsQuery{BranchID: 2100347})
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if !strings.Contains(string(raw), `"jobs"`) {
		t.Fatalf("jobs list %s", raw)
	}
	if _, err := c.DeleteJob(ctx, jobID, ""); err != nil {
		t.Fatalf("delete job: %v", err)
	}
}

func TestFileUploadChunksAndCommit(t *testing.T) {
	t.Parallel()
	srv, c := newTestCMS(t)
	ctx := context.Background()

	raw, err := c.FileUploadStart(ctx, Upload{Filename: "logo.png", Reader: strings.NewReader("part-1;")}, ".png", false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	token := decode[struct {
		Token string `json:"token"`
	}](t, raw).Token
	if token == "" {
		t.Fatalf("no token in %s", raw)
	}
	raw, err = c.FileUploadContinue(ctx, token, Upload{Filename: "logo.png", Reader: strings.NewReader("part-2")}, ".png", true)
	if err != nil {
		t.Fatalf("continue: %v", err)
	}
	name := decode[struct {
		FileName string `json:"fileName"`
	}](t, raw).FileName
	if name == "" {
		t.Fatalf("no file name in %s", raw)
	}
	resp, err := c.GetFile(ctx, name)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got := readAll(t, resp); got != "part-1;part-2" {
		t.Fatalf("file content %q", got)
	}

	_, err = c.FileUploadContinue(ctx, token, Upload{Filename: "logo.png", Reader: strings.NewReader("late")}, ".png", true)
	if err == nil {
		t.Fatalf("expected continue after commit to fail")
	}
	if state, _, _ := srv.Upload(token); state != "committed" {
		t.Fatalf("state = %s", state)
	}
}

func TestCancelledTokenCannotContinue(t *testing.T) {
	t.Parallel()
	_, c := newTestCMS(t)
	ctx := context.Background()

	raw, err := c.FileUploadStart(ctx, Upload{Filename: "a.bin", Reader: strings.NewReader("abc")}, ".bin", false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	token := decode[struct {
		Token string `json:"token"`
	}](t, raw).Token
	if _, err := c.FileUploadCancel(ctx, token); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = c.FileUploadContinue(ctx, token, Upload{Filename: "a.bin", Reader: strings.NewReader("def")}, ".bin", true)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 after cancel, got %v", err)
	}
	if _, err := c.FileUploadCancel(ctx, token); err == nil {
		t.Fatalf("second cancel should fail")
	}

	raw, err = c.FileUploadStart(ctx, Upload{Filename: "b.bin", Reader: strings.NewReader("fresh")}, ".bin", true)
	if err != nil {
		t.Fatalf("fresh upload after cancel: %v", err)
	}
	if !strings.Contains(string(raw), "fileName") {
		t.Fatalf("fresh upload not committed: %s", raw)
	}
}

func TestJobInputUploadFeedsJob(t *testing.T) {
	t.Parallel()
	_, c := newTestCMS(t)
	ctx := context.Background()

	raw, err := c.JobInputUpload(ctx, Upload{Filename: "import.xlsx", Reader: strings.NewReader("chunk-a")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	token := decode[struct {
		Token string `json:"token"`
	}](t, raw).Token
	if _, err := c.JobInputContinue(ctx, token, Upload{Filename: "import.xlsx", Reader: strings.NewReader("chunk-b")}); err != nil {
		t.Fatalf("continue: %v", err)
	}
	raw, err = c.CreateJob(ctx, CreateJobRequest{
		BranchID:        2100347,
		JobDefinitionID: 9,
		InputFile:       &JobInputFile{Token: token, Name: "import.xlsx"},
		Parameters:      []JobParameter{{Name: "mode", Values: []string{"full"}}},
	}, "importer")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if !strings.Contains(string(raw), `"id"`) {
		t.Fatalf("create job response %s", raw)
	}

	raw, err = c.JobInputUpload(ctx, Upload{Filename: "other.csv", Reader: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	other := decode[struct {
		Token string `json:"token"`
	}](t, raw).Token
	if _, err := c.JobInputCancel(ctx, other); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := c.JobInputContinue(ctx, other, Upload{Filename: "other.csv", Reader: strings.NewReader("y")}); err == nil {
		t.Fatalf("continue after cancel should fail")
	}
}

func TestUploadRequiresReaderAndFilename(t *testing.T) {
	t.Parallel()
	srv, c := newTestCMS(t)
	if _, err := c.FileUploadStart(context.Background(), Upload{Filename: "x"}, ".bin", true); err == nil {
		t.Fatalf("expected error without reader")
	}
	if _, err := c.JobInputUpload(context.Background(), Upload{Reader: strings.NewReader("x")}); err == nil {
		t.Fatalf("expected error without filename")
	}
	if n := srv.RequestCount(); n != 0 {
		t.Fatalf("invalid uploads reached the server %d times", n)
	}
}

func TestCodeGenerator(t *testing.T) {
	t.Parallel()
	_, c := newTestCMS(t)
	ctx := context.Background()

	resp, err := c.CodeGeneratorTypes(ctx, DraftBranch, "csharp", "500,501")
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	code := readAll(t, resp)
	if !strings.Contains(code, "Type500") || !strings.Contains(code, "Type501") {
		t.Fatalf("generated code %q", code)
	}
	resp, err = c.CodeGeneratorType(ctx, DraftBranch, "csharp", "500")
	if err != nil {
		t.Fatalf("type: %v", err)
	}
	if code := readAll(t, resp); !strings.Contains(code, "Type500") {
		t.Fatalf("generated code %q", code)
	}
	if _, err := c.CodeGeneratorType(ctx, DraftBranch, "cobol", "500"); err == nil {
		t.Fatalf("expected unsupported language to fail")
	}
}

func jsonID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestJobArtifactRejectsDotSegments(t *testing.T) {
	t.Parallel()
	srv, c := newTestCMS(t)
	for _, p := range []string{"", "/", "..", "../secret", "out/./report.txt", "out/../../x", `out\..\x`} {
		before := srv.RequestCount()
		if _, err := c.JobArtifact(context.Background(), "1", p); err == nil {
			t.Fatalf("%q: expected error", p)
		}
		if after := srv.RequestCount(); after != before {
			t.Fatalf("%q: request sent", p)
		}
	}
	for _, p := range []string{"report.txt", "out/report 1.txt", "out/..report", "/out/a.b/"} {
		if err := CheckArtifactPath(p); err != nil {
			t.Fatalf("%q: unexpected error %v", p, err)
		}
	}
}
