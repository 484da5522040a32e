package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/novadb/novadb-mcp-demo/client"
)

func TestClassifyToolError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       error
		code      string
		retryable bool
		status    int
	}{
		{name: "unauthorized", err: &client.APIError{Status: 401, Body: []byte("nope")}, code: "unauthorized", status: 401},
		{name: "forbidden", err: &client.APIError{Status: 403}, code: "forbidden", status: 403},
		{name: "not found", err: fmt.Errorf("get object: %w", &client.APIError{Status: 404}), code: "not_found", status: 404},
		{name: "conflict", err: &client.APIError{Status: 409}, code: "http_409", status: 409},
		{name: "rate limited", err: &client.APIError{Status: 429}, code: "http_429", retryable: true, status: 429},
		{name: "server error", err: &client.APIError{Status: 503}, code: "http_503", retryable: true, status: 503},
		{name: "path escape", err: fmt.Errorf("%w: %q", errPathEscape, "../x"), code: "path_escape"},
		{name: "too large", err: inlinePayloadTooLargeError("tool", 10, 5), code: "payload_too_large"},
		{name: "terminal token", err: fmt.Errorf("%w: gone", errUploadTokenTerminal), code: "upload_token_terminal"},
		{name: "invalid argument", err: invalidArgument(errors.New("branch: cannot be blank")), code: "invalid_argument"},
		{name: "ozzo errors", err: validation.Errors{"branch": errors.New("cannot be blank")}, code: "invalid_argument"},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), code: "timeout", retryable: true},
		{name: "cancelled", err: context.Canceled, code: "cancelled"},
		{name: "refused", err: errors.New("dial tcp 127.0.0.1:1: connection refused"), code: "unavailable", retryable: true},
		{name: "required heuristic", err: errors.New("token is required"), code: "invalid_argument"},
		{name: "fallback", err: errors.New("boom"), code: "tool_error"},
	}
	for _, tc := range cases {
		env := classifyToolError(tc.err)
		if env.ErrorCode != tc.code {
			t.Fatalf("%s: expected %q, got %q (%s)", tc.name, tc.code, env.ErrorCode, env.Detail)
		}
		if env.Retryable != tc.retryable {
			t.Fatalf("%s: expected retryable=%v", tc.name, tc.retryable)
		}
		if env.HTTPStatus != tc.status {
			t.Fatalf("%s: expected http_status %d, got %d", tc.name, tc.status, env.HTTPStatus)
		}
	}
}

func TestClassifyToolErrorStripsSentinelLine(t *testing.T) {
	t.Parallel()

	env := classifyToolError(invalidArgument(errors.New("objects: cannot be blank.")))
	if env.Detail != "objects: cannot be blank." {
		t.Fatalf("unexpected detail %q", env.Detail)
	}
	env = classifyToolError(invalidArgument(errors.New("")))
	if env.Detail != errInvalidArgument.Error() {
		t.Fatalf("expected sentinel text for empty cause, got %q", env.Detail)
	}
}

func TestToolErrorEncodesEnvelope(t *testing.T) {
	t.Parallel()

	err := toolError{Envelope: classifyToolError(&client.APIError{Status: 404, Body: []byte(`{"detail":"missing"}`)})}
	var decoded struct {
		Error map[string]any `json:"error"`
	}
	if jerr := json.Unmarshal([]byte(err.Error()), &decoded); jerr != nil {
		t.Fatalf("decode: %v", jerr)
	}
	if decoded.Error["error_code"] != "not_found" {
		t.Fatalf("unexpected envelope %v", decoded.Error)
	}
	if decoded.Error["http_status"] != float64(404) {
		t.Fatalf("expected http_status 404, got %v", decoded.Error["http_status"])
	}
	if !strings.Contains(decoded.Error["detail"].(string), "missing") {
		t.Fatalf("expected response body in detail, got %v", decoded.Error["detail"])
	}
}

func TestInvalidArgumentNil(t *testing.T) {
	t.Parallel()
	if invalidArgument(nil) != nil {
		t.Fatalf("expected nil")
	}
}
