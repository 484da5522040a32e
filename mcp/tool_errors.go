package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/novadb/novadb-mcp-demo/client"
)

var (
	errInvalidArgument     = errors.New("invalid argument")
	errPathEscape          = errors.New("path escapes the workspace directory")
	errPayloadTooLarge     = errors.New("payload too large")
	errUploadTokenTerminal = errors.New("upload token is no longer active")
)

type toolErrorEnvelope struct {
	ErrorCode  string `json:"error_code"`
	Detail     string `json:"detail,omitempty"`
	Retryable  bool   `json:"retryable"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

func withStructuredToolErrors[In, Out any](h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input In) (*mcpsdk.CallToolResult, Out, error) {
		res, out, err := h(ctx, req, input)
		if err == nil {
			return res, out, nil
		}
		var zero Out
		return nil, zero, toolError{Envelope: classifyToolError(err)}
	}
}

type toolError struct {
	Envelope toolErrorEnvelope
}

func (e toolError) Error() string {
	envelope := map[string]any{"error": e.Envelope}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return `{"error":{"error_code":"tool_error","detail":"failed to encode error envelope"}}`
	}
	return string(encoded)
}

// invalidArgument marks err as a caller mistake detected before any I/O.
func invalidArgument(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(errInvalidArgument, err)
}

func classifyToolError(err error) toolErrorEnvelope {
	env := toolErrorEnvelope{ErrorCode: "tool_error", Detail: strings.TrimSpace(err.Error())}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		env.HTTPStatus = apiErr.Status
		env.Detail = strings.TrimSpace(apiErr.Error())
		switch apiErr.Status {
		case http.StatusUnauthorized:
			env.ErrorCode = "unauthorized"
		case http.StatusForbidden:
			env.ErrorCode = "forbidden"
		case http.StatusNotFound:
			env.ErrorCode = "not_found"
		default:
			env.ErrorCode = "http_" + strconv.Itoa(apiErr.Status)
		}
		switch {
		case apiErr.Status == http.StatusTooManyRequests, apiErr.Status == http.StatusRequestTimeout, apiErr.Status >= 500:
			env.Retryable = true
		}
		return env
	}

	switch {
	case errors.Is(err, errPathEscape):
		env.ErrorCode = "path_escape"
		env.Detail = stripSentinel(env.Detail, errPathEscape)
		return env
	case errors.Is(err, errPayloadTooLarge):
		env.ErrorCode = "payload_too_large"
		return env
	case errors.Is(err, errUploadTokenTerminal):
		env.ErrorCode = "upload_token_terminal"
		return env
	case errors.Is(err, errInvalidArgument):
		env.ErrorCode = "invalid_argument"
		env.Detail = stripSentinel(env.Detail, errInvalidArgument)
		return env
	}
	var verrs validation.Errors
	var verr validation.Error
	if errors.As(err, &verrs) || errors.As(err, &verr) {
		env.ErrorCode = "invalid_argument"
		return env
	}
	if errors.Is(err, context.DeadlineExceeded) {
		env.ErrorCode = "timeout"
		env.Retryable = true
		return env
	}
	if errors.Is(err, context.Canceled) {
		env.ErrorCode = "cancelled"
		return env
	}

	lower := strings.ToLower(env.Detail)
	switch {
	case strings.Contains(lower, "required"),
		strings.Contains(lower, "must be"),
		strings.Contains(lower, "invalid"),
		strings.Contains(lower, "decode "):
		env.ErrorCode = "invalid_argument"
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline"):
		env.ErrorCode = "timeout"
		env.Retryable = true
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"):
		env.ErrorCode = "unavailable"
		env.Retryable = true
	}
	return env
}

// stripSentinel drops the sentinel's own line from a joined error message so
// the detail carries only the specific cause.
func stripSentinel(detail string, sentinel error) string {
	lines := strings.Split(detail, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == sentinel.Error() {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.TrimSpace(strings.Join(kept, "\n"))
	if out == "" {
		return sentinel.Error()
	}
	return out
}
