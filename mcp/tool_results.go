package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}

// jsonResult pretty-prints an API response. Bodiless responses render as
// an empty object.
func jsonResult(raw json.RawMessage) (*mcpsdk.CallToolResult, any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return textResult("{}"), nil, nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return textResult(string(trimmed)), nil, nil
	}
	return textResult(buf.String()), nil, nil
}

// jsonCall adapts a client call returning raw JSON into a tool result.
func jsonCall(raw json.RawMessage, err error) (*mcpsdk.CallToolResult, any, error) {
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(raw)
}

// deliverDownload validates the destination, opens the stream and hands it
// to the payload strategy. The response body is always closed.
func (s *server) deliverDownload(ctx context.Context, d download, open func(context.Context) (*http.Response, error)) (*mcpsdk.CallToolResult, any, error) {
	if err := s.payload.checkTarget(d); err != nil {
		return nil, nil, err
	}
	resp, err := open(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	d.body = resp.Body
	d.contentType = resp.Header.Get("Content-Type")
	text, err := s.payload.deliver(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	return textResult(text), nil, nil
}
