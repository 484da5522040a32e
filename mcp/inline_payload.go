package mcp

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// DefaultInlineMaxBytes bounds inline downloads and uploads unless
// configured otherwise.
const DefaultInlineMaxBytes int64 = 2 * 1024 * 1024

const base64Marker = "[base64] "

func normalizedInlineMaxBytes(raw int64) int64 {
	if raw <= 0 {
		return DefaultInlineMaxBytes
	}
	return raw
}

func inlinePayloadTooLargeError(tool string, sizeBytes, limit int64) error {
	tool = strings.TrimSpace(tool)
	if tool == "" {
		tool = "operation"
	}
	return fmt.Errorf("%w: %s payload is at least %d bytes and exceeds the inline limit of %d bytes (%s). Restart the server with --payload-mode=disk or raise --inline-max-bytes",
		errPayloadTooLarge, tool, sizeBytes, limit, humanize.IBytes(uint64(limit)))
}

type inlinePayloadContent struct {
	Bytes  int64
	Text   string
	Base64 string
	IsText bool
}

// render returns the tool result text: the body itself for text, or the
// base64 marker followed by the encoded bytes.
func (c inlinePayloadContent) render() string {
	if c.IsText {
		return c.Text
	}
	return base64Marker + c.Base64
}

// textualContentType reports whether ct names a text, JSON or XML media type.
func textualContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(ct))
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case strings.Contains(mediaType, "json"), strings.Contains(mediaType, "xml"):
		return true
	}
	return false
}

func encodeInlinePayload(payload []byte, contentType string) inlinePayloadContent {
	out := inlinePayloadContent{Bytes: int64(len(payload))}
	if textualContentType(contentType) || utf8.Valid(payload) {
		out.Text = string(payload)
		out.IsText = true
		return out
	}
	out.Base64 = base64.StdEncoding.EncodeToString(payload)
	return out
}

func readInlinePayloadStrict(reader io.Reader, configuredLimit int64, contentType, tool string) (inlinePayloadContent, error) {
	if reader == nil {
		return inlinePayloadContent{IsText: true}, nil
	}
	limit := normalizedInlineMaxBytes(configuredLimit)
	lr := io.LimitReader(reader, limit+1)
	buf, err := io.ReadAll(lr)
	if err != nil {
		return inlinePayloadContent{}, err
	}
	if int64(len(buf)) > limit {
		return inlinePayloadContent{}, inlinePayloadTooLargeError(tool, int64(len(buf)), limit)
	}
	return encodeInlinePayload(buf, contentType), nil
}

// decodeInlineUpload decodes a base64 upload argument, enforcing the inline
// limit on the decoded size.
func decodeInlineUpload(encoded string, configuredLimit int64, tool string) ([]byte, error) {
	encoded = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(encoded), strings.TrimSpace(base64Marker)))
	if encoded == "" {
		return nil, invalidArgument(fmt.Errorf("contentBase64 is required in inline payload mode"))
	}
	limit := normalizedInlineMaxBytes(configuredLimit)
	if int64(base64.StdEncoding.DecodedLen(len(encoded))) > limit+2 {
		return nil, inlinePayloadTooLargeError(tool, int64(base64.StdEncoding.DecodedLen(len(encoded))), limit)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, invalidArgument(fmt.Errorf("decode contentBase64: %w", err))
	}
	if int64(len(data)) > limit {
		return nil, inlinePayloadTooLargeError(tool, int64(len(data)), limit)
	}
	return data, nil
}
