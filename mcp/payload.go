package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"pkt.systems/pslog"
)

// download is a response body on its way to the caller.
type download struct {
	tool        string
	body        io.Reader
	contentType string
	// targetPath is the caller-chosen workspace-relative destination; empty
	// selects defaultPath.
	targetPath  string
	defaultPath string
}

// uploadSource is the caller's description of an upload chunk.
type uploadSource struct {
	tool          string
	sourcePath    string
	contentBase64 string
	filename      string
}

// uploadBody is an opened upload chunk. Close releases any file handle.
type uploadBody struct {
	filename string
	reader   io.Reader
	size     int64
	closer   io.Closer
}

func (u uploadBody) Close() error {
	if u.closer == nil {
		return nil
	}
	return u.closer.Close()
}

// payloadStrategy moves binary payloads between NovaDB and the MCP client.
// A server uses exactly one strategy for its lifetime.
type payloadStrategy interface {
	mode() PayloadMode
	// checkTarget validates a download destination before any network I/O.
	checkTarget(d download) error
	// deliver consumes d.body and returns the tool result text.
	deliver(ctx context.Context, d download) (string, error)
	// openUpload resolves src into a readable chunk.
	openUpload(src uploadSource) (uploadBody, error)
}

func newPayloadStrategy(cfg Config, fs afero.Fs, logger pslog.Logger) (payloadStrategy, error) {
	switch cfg.PayloadMode {
	case PayloadModeInline:
		return &inlineStrategy{limit: normalizedInlineMaxBytes(cfg.InlineMaxBytes), logger: logger}, nil
	case PayloadModeDisk, "":
		root, err := filepath.Abs(cfg.WorkspaceDir)
		if err != nil {
			return nil, fmt.Errorf("resolve workspace directory: %w", err)
		}
		if fs == nil {
			fs = afero.NewOsFs()
		}
		return &diskStrategy{fs: fs, root: filepath.Clean(root), logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported payload mode %q", cfg.PayloadMode)
	}
}

var drivePrefix = regexp.MustCompile(`^[A-Za-z]:`)

// resolveWorkspacePath maps a caller-supplied relative path into root. It
// rejects absolute paths, drive prefixes and anything that cleans to a
// location outside root.
func resolveWorkspacePath(root, rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", invalidArgument(fmt.Errorf("path is required"))
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) || drivePrefix.MatchString(rel) {
		return "", fmt.Errorf("%w: absolute paths are not allowed (%q); use a path relative to the workspace directory", errPathEscape, rel)
	}
	root = filepath.Clean(root)
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	resolved := filepath.Clean(filepath.Join(root, rel))
	if resolved != root && !strings.HasPrefix(resolved, prefix) {
		return "", fmt.Errorf("%w: %q", errPathEscape, rel)
	}
	return resolved, nil
}

type diskStrategy struct {
	fs     afero.Fs
	root   string
	logger pslog.Logger
}

func (d *diskStrategy) mode() PayloadMode { return PayloadModeDisk }

func (d *diskStrategy) target(dl download) (string, error) {
	rel := strings.TrimSpace(dl.targetPath)
	if rel == "" {
		rel = dl.defaultPath
	}
	return resolveWorkspacePath(d.root, rel)
}

func (d *diskStrategy) checkTarget(dl download) error {
	_, err := d.target(dl)
	return err
}

type fileMetadata struct {
	FilePath    string `json:"filePath"`
	SizeBytes   int64  `json:"sizeBytes"`
	Size        string `json:"size"`
	ContentType string `json:"contentType"`
}

func (d *diskStrategy) deliver(ctx context.Context, dl download) (out string, err error) {
	path, err := d.target(dl)
	if err != nil {
		return "", err
	}
	if err := d.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", path, err)
	}
	f, err := d.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
		if err != nil {
			if rerr := d.fs.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				d.logger.Warn("mcp.payload.disk.cleanup_failed", "path", path, "error", rerr)
			}
		}
	}()
	written, err := io.Copy(f, contextReader{ctx: ctx, r: dl.body})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	d.logger.Debug("mcp.payload.disk.written", "tool", dl.tool, "path", path, "bytes", written)
	encoded, err := json.MarshalIndent(fileMetadata{
		FilePath:    path,
		SizeBytes:   written,
		Size:        humanize.IBytes(uint64(written)),
		ContentType: dl.contentType,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func (d *diskStrategy) openUpload(src uploadSource) (uploadBody, error) {
	if strings.TrimSpace(src.contentBase64) != "" {
		return uploadBody{}, invalidArgument(fmt.Errorf("contentBase64 is not accepted in disk payload mode; pass sourcePath relative to the workspace directory"))
	}
	if strings.TrimSpace(src.sourcePath) == "" {
		return uploadBody{}, invalidArgument(fmt.Errorf("sourcePath is required in disk payload mode"))
	}
	path, err := resolveWorkspacePath(d.root, src.sourcePath)
	if err != nil {
		return uploadBody{}, err
	}
	info, err := d.fs.Stat(path)
	if err != nil {
		return uploadBody{}, invalidArgument(fmt.Errorf("sourcePath %q: %w", src.sourcePath, err))
	}
	if info.IsDir() {
		return uploadBody{}, invalidArgument(fmt.Errorf("sourcePath %q is a directory", src.sourcePath))
	}
	f, err := d.fs.Open(path)
	if err != nil {
		return uploadBody{}, fmt.Errorf("open %s: %w", path, err)
	}
	name := strings.TrimSpace(src.filename)
	if name == "" {
		name = filepath.Base(path)
	}
	return uploadBody{filename: name, reader: f, size: info.Size(), closer: f}, nil
}

type inlineStrategy struct {
	limit  int64
	logger pslog.Logger
}

func (s *inlineStrategy) mode() PayloadMode { return PayloadModeInline }

// checkTarget ignores targetPath: inline results are never written locally.
func (s *inlineStrategy) checkTarget(download) error { return nil }

func (s *inlineStrategy) deliver(ctx context.Context, dl download) (string, error) {
	content, err := readInlinePayloadStrict(contextReader{ctx: ctx, r: dl.body}, s.limit, dl.contentType, dl.tool)
	if err != nil {
		return "", err
	}
	s.logger.Debug("mcp.payload.inline.read", "tool", dl.tool, "bytes", content.Bytes, "text", content.IsText)
	return content.render(), nil
}

func (s *inlineStrategy) openUpload(src uploadSource) (uploadBody, error) {
	if strings.TrimSpace(src.sourcePath) != "" {
		return uploadBody{}, invalidArgument(fmt.Errorf("sourcePath is not accepted in inline payload mode; pass contentBase64 and filename"))
	}
	name := strings.TrimSpace(src.filename)
	if name == "" {
		return uploadBody{}, invalidArgument(fmt.Errorf("filename is required in inline payload mode"))
	}
	data, err := decodeInlineUpload(src.contentBase64, s.limit, src.tool)
	if err != nil {
		return uploadBody{}, err
	}
	return uploadBody{filename: name, reader: bytes.NewReader(data), size: int64(len(data))}, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	if c.r == nil {
		return 0, io.EOF
	}
	return c.r.Read(p)
}
