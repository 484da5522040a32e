package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/novadb/novadb-mcp-demo/internal/correlation"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cli, err := New(srv.URL+"/apis/cms/v1", "alice", "s3cret", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return cli, srv
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "nova.example.com/apis/cms/v1", "ftp://nova"} {
		if _, err := New(raw, "u", "p"); err == nil {
			t.Fatalf("expected error for base URL %q", raw)
		}
	}
}

func TestBuildURLOmitsEmptyParams(t *testing.T) {
	t.Parallel()

	cli, err := New("https://nova.example.com/apis/cms/v1/", "u", "p")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	var nilInt *int
	var nilBool *bool
	take := 5
	inherited := false
	cases := []struct {
		name  string
		query Query
		want  string
	}{
		{
			name: "no params",
			want: "https://nova.example.com/apis/cms/v1/branches/draft/objects",
		},
		{
			name:  "omits nil, nil pointers and empty strings",
			query: NewQuery().Set("a", nil).Set("b", "").Set("c", nilInt).Set("d", nilBool),
			want:  "https://nova.example.com/apis/cms/v1/branches/draft/objects",
		},
		{
			name:  "renders bools and ints canonically in insertion order",
			query: NewQuery().Set("take", 20).Set("inherited", true).Set("deleted", false),
			want:  "https://nova.example.com/apis/cms/v1/branches/draft/objects?take=20&inherited=true&deleted=false",
		},
		{
			name:  "dereferences pointers",
			query: NewQuery().Set("take", &take).Set("inherited", &inherited),
			want:  "https://nova.example.com/apis/cms/v1/branches/draft/objects?take=5&inherited=false",
		},
		{
			name:  "escapes reserved characters",
			query: NewQuery().Set("continue", "a&b=c d"),
			want:  "https://nova.example.com/apis/cms/v1/branches/draft/objects?continue=a%26b%3Dc+d",
		},
		{
			name:  "keeps zero values",
			query: NewQuery().Set("skip", 0).Set("ratio", 0.5),
			want:  "https://nova.example.com/apis/cms/v1/branches/draft/objects?skip=0&ratio=0.5",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := cli.BuildURL("/branches/draft/objects", tc.query); got != tc.want {
				t.Fatalf("BuildURL = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGetSendsAuthAndParsesJSON(t *testing.T) {
	t.Parallel()

	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:s3cret"))
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != wantAuth {
			t.Errorf("authorization = %q, want %q", got, wantAuth)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("accept = %q", got)
		}
		if r.URL.Path != "/apis/cms/v1/branches/draft/objects/1001" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("inherited"); got != "true" {
			t.Errorf("inherited = %q", got)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = io.WriteString(w, `{"meta":{"id":1001,"typeRef":500}}`)
	})

	raw, err := cli.Get(context.Background(), "/branches/draft/objects/1001", NewQuery().Set("inherited", true))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var out struct {
		Meta struct {
			ID      int `json:"id"`
			TypeRef int `json:"typeRef"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Meta.ID != 1001 || out.Meta.TypeRef != 500 {
		t.Fatalf("unexpected object %+v", out)
	}
}

func TestNon2xxReturnsAPIErrorWithStatusAndBody(t *testing.T) {
	t.Parallel()

	statuses := []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError}
	for _, status := range statuses {
		status := status
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()
			body := `{"title":"boom","detail":"line one\nline two"}`
			cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				_, _ = io.WriteString(w, body)
			})
			_, err := cli.Post(context.Background(), "/comments", nil, map[string]string{"body": "x"}, nil)
			if err == nil {
				t.Fatalf("expected error")
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if apiErr.Status != status {
				t.Fatalf("status = %d, want %d", apiErr.Status, status)
			}
			want := "HTTP " + strconv.Itoa(status) + ": " + body
			if msg := err.Error(); msg != want {
				t.Fatalf("error = %q, want %q", msg, want)
			}
		})
	}
}

func TestPostAndPatchEncodeJSONWithHeaders(t *testing.T) {
	t.Parallel()

	for _, method := range []string{http.MethodPost, http.MethodPatch} {
		method := method
		t.Run(method, func(t *testing.T) {
			t.Parallel()
			cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != method {
					t.Errorf("method = %s", r.Method)
				}
				if got := r.Header.Get("Content-Type"); got != "application/json" {
					t.Errorf("content-type = %q", got)
				}
				if got := r.Header.Get("X-CmsApi-Username"); got != "bob" {
					t.Errorf("username header = %q", got)
				}
				var body map[string]any
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decode body: %v", err)
				}
				if _, ok := body["comment"]; !ok {
					t.Errorf("expected comment key in %v", body)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"updatedObjects":1}`)
			})
			headers := http.Header{}
			headers.Set("X-CmsApi-Username", "bob")
			payload := map[string]any{"comment": nil, "objects": []any{}}
			var (
				raw json.RawMessage
				err error
			)
			if method == http.MethodPost {
				raw, err = cli.Post(context.Background(), "/branches/draft/objects", nil, payload, headers)
			} else {
				raw, err = cli.Patch(context.Background(), "/branches/draft/objects", nil, payload, headers)
			}
			if err != nil {
				t.Fatalf("%s: %v", method, err)
			}
			if string(raw) != `{"updatedObjects":1}` {
				t.Fatalf("unexpected response %s", raw)
			}
		})
	}
}

func TestDeleteWithoutBodyReturnsEmptyObject(t *testing.T) {
	t.Parallel()

	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "" {
			t.Errorf("expected no content type without body, got %q", got)
		}
		if r.ContentLength > 0 {
			t.Errorf("expected empty body, got %d bytes", r.ContentLength)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	raw, err := cli.Delete(context.Background(), "/comments/7", nil, nil, nil)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if string(raw) != `{}` {
		t.Fatalf("expected {}, got %s", raw)
	}
}

func TestDeleteWithBodySendsJSON(t *testing.T) {
	t.Parallel()

	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content-type = %q", got)
		}
		var body struct {
			ObjectIDs []string `json:"objectIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(body.ObjectIDs) != 2 {
			t.Errorf("objectIds = %v", body.ObjectIDs)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"deletedObjects":2}`)
	})
	raw, err := cli.Delete(context.Background(), "/branches/draft/objects", nil, map[string]any{"objectIds": []string{"1", "2"}}, nil)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if string(raw) != `{"deletedObjects":2}` {
		t.Fatalf("unexpected response %s", raw)
	}
}

func TestNonJSONBodyIsRejected(t *testing.T) {
	t.Parallel()

	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>login</html>")
	})
	if _, err := cli.Get(context.Background(), "/branches/draft", nil); err == nil {
		t.Fatalf("expected error for html body")
	}
}

func TestDeleteWithTextAcknowledgementReturnsEmptyObject(t *testing.T) {
	t.Parallel()

	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "OK")
	})
	raw, err := cli.Delete(context.Background(), "/fileUpload/tok-1", nil, nil, nil)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if string(raw) != `{}` {
		t.Fatalf("expected {}, got %s", raw)
	}
}

func TestDeleteWithMalformedJSONStillFails(t *testing.T) {
	t.Parallel()

	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "{broken")
	})
	if _, err := cli.Delete(context.Background(), "/branches/9", nil, nil, nil); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestGetRawStreamsBody(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("log line\n", 1024)
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "" {
			t.Errorf("raw requests must not force an accept header, got %q", got)
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, payload)
	})
	resp, err := cli.GetRaw(context.Background(), "/jobs/9/logs", nil)
	if err != nil {
		t.Fatalf("get raw: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("content type = %q", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("body mismatch: %d bytes", len(data))
	}
}

func TestGetRawNon2xx(t *testing.T) {
	t.Parallel()

	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such file", http.StatusNotFound)
	})
	_, err := cli.GetRaw(context.Background(), "/files/missing.png", nil)
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !strings.Contains(err.Error(), "no such file") {
		t.Fatalf("error %q missing body", err)
	}
}

func TestCorrelationHeaderForwarded(t *testing.T) {
	t.Parallel()

	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(correlation.Header); got != "cid-123" {
			t.Errorf("correlation header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{}`)
	})
	ctx := correlation.With(context.Background(), "cid-123")
	if _, err := cli.Get(ctx, "/jobs/1", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestHTTPTimeoutBoundsRequests(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	cli, err := New(srv.URL, "u", "p", WithHTTPClient(srv.Client()), WithHTTPTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := cli.Get(context.Background(), "/slow", nil); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestPostFormStreamsMultipart(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("\x89PNG", 4096)
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.FormValue("Extension"); got != ".png" {
			t.Errorf("Extension = %q", got)
		}
		if got := r.FormValue("Commit"); got != "true" {
			t.Errorf("Commit = %q", got)
		}
		file, header, err := r.FormFile("File")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "logo.png" {
			t.Errorf("filename = %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != content {
			t.Errorf("file content mismatch: %d bytes", len(data))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"fileIdentifier":"abc.png"}`)
	})
	form := NewForm().
		Field("Extension", ".png").
		Field("Commit", "true").
		File("File", "logo.png", strings.NewReader(content))
	raw, err := cli.PostForm(context.Background(), "/upload", nil, form)
	if err != nil {
		t.Fatalf("post form: %v", err)
	}
	if string(raw) != `{"fileIdentifier":"abc.png"}` {
		t.Fatalf("unexpected response %s", raw)
	}
}

func TestPutFormSurfacesServerError(t *testing.T) {
	t.Parallel()

	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, "token expired")
	})
	form := NewForm().Field("Commit", "false").File("File", "part.bin", strings.NewReader("chunk"))
	_, err := cli.PutForm(context.Background(), "/upload", NewQuery().Set("token", "t1"), form)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 APIError, got %v", err)
	}
}
