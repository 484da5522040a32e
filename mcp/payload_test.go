package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"pkt.systems/pslog"
)

func TestResolveWorkspacePath(t *testing.T) {
	t.Parallel()

	root := filepath.Join(string(filepath.Separator), "work")
	cases := []struct {
		rel    string
		want   string
		escape bool
	}{
		{rel: "out.txt", want: filepath.Join(root, "out.txt")},
		{rel: "logs/job.txt", want: filepath.Join(root, "logs", "job.txt")},
		{rel: "a/../b.txt", want: filepath.Join(root, "b.txt")},
		{rel: ".", want: root},
		{rel: "../x", escape: true},
		{rel: "a/../../b", escape: true},
		{rel: "/etc/passwd", escape: true},
		{rel: `\share\x`, escape: true},
		{rel: `C:\x`, escape: true},
		{rel: "c:relative", escape: true},
	}
	for _, tc := range cases {
		got, err := resolveWorkspacePath(root, tc.rel)
		if tc.escape {
			if !errors.Is(err, errPathEscape) {
				t.Fatalf("%q: expected path escape, got %q, %v", tc.rel, got, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.rel, err)
		}
		if got != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.rel, tc.want, got)
		}
	}

	fsRoot := string(filepath.Separator)
	got, err := resolveWorkspacePath(fsRoot, "tmp/out.txt")
	if err != nil || got != filepath.Join(fsRoot, "tmp", "out.txt") {
		t.Fatalf("filesystem root workspace: got %q, %v", got, err)
	}
	if got, err := resolveWorkspacePath(fsRoot, "."); err != nil || got != fsRoot {
		t.Fatalf("filesystem root itself: got %q, %v", got, err)
	}
	if _, err := resolveWorkspacePath(root+string(filepath.Separator), "../x"); !errors.Is(err, errPathEscape) {
		t.Fatalf("trailing separator root must still guard, got %v", err)
	}
	if got, err := resolveWorkspacePath(root+string(filepath.Separator), "a.txt"); err != nil || got != filepath.Join(root, "a.txt") {
		t.Fatalf("trailing separator root: got %q, %v", got, err)
	}

	if _, err := resolveWorkspacePath(root, "  "); !errors.Is(err, errInvalidArgument) {
		t.Fatalf("expected invalid argument for empty path, got %v", err)
	}
}

func newTestDiskStrategy(t *testing.T) (*diskStrategy, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	ps, err := newPayloadStrategy(Config{PayloadMode: PayloadModeDisk, WorkspaceDir: "/work"}, fs, pslog.NoopLogger())
	if err != nil {
		t.Fatalf("payload strategy: %v", err)
	}
	disk, ok := ps.(*diskStrategy)
	if !ok {
		t.Fatalf("expected disk strategy, got %T", ps)
	}
	return disk, fs
}

func TestDiskStrategyDeliverWritesFile(t *testing.T) {
	t.Parallel()

	disk, fs := newTestDiskStrategy(t)
	out, err := disk.deliver(context.Background(), download{
		tool:        toolCMSGetJobLogs,
		body:        strings.NewReader("line 1\nline 2\n"),
		contentType: "text/plain",
		defaultPath: "job-7-logs.txt",
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	var meta fileMetadata
	if err := json.Unmarshal([]byte(out), &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	want := filepath.Join(disk.root, "job-7-logs.txt")
	if meta.FilePath != want || meta.SizeBytes != 14 || meta.ContentType != "text/plain" || meta.Size != "14 B" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	data, err := afero.ReadFile(fs, want)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "line 1\nline 2\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestDiskStrategyTargetPathOverridesDefault(t *testing.T) {
	t.Parallel()

	disk, fs := newTestDiskStrategy(t)
	if _, err := disk.deliver(context.Background(), download{
		body:        strings.NewReader("zip"),
		targetPath:  "nested/dir/a.zip",
		defaultPath: "ignored.zip",
	}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if ok, _ := afero.Exists(fs, filepath.Join(disk.root, "nested", "dir", "a.zip")); !ok {
		t.Fatalf("expected nested target to be written")
	}
	if ok, _ := afero.Exists(fs, filepath.Join(disk.root, "ignored.zip")); ok {
		t.Fatalf("default path must not be written when targetPath is set")
	}
}

func TestDiskStrategyRejectsEscapingTarget(t *testing.T) {
	t.Parallel()

	disk, _ := newTestDiskStrategy(t)
	d := download{body: strings.NewReader("x"), targetPath: "../outside.txt"}
	if err := disk.checkTarget(d); !errors.Is(err, errPathEscape) {
		t.Fatalf("expected path escape from checkTarget, got %v", err)
	}
	if _, err := disk.deliver(context.Background(), d); !errors.Is(err, errPathEscape) {
		t.Fatalf("expected path escape from deliver, got %v", err)
	}
}

func TestDiskStrategyOpenUpload(t *testing.T) {
	t.Parallel()

	disk, fs := newTestDiskStrategy(t)
	if err := afero.WriteFile(fs, filepath.Join(disk.root, "in", "data.csv"), []byte("a,b\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	body, err := disk.openUpload(uploadSource{sourcePath: "in/data.csv"})
	if err != nil {
		t.Fatalf("open upload: %v", err)
	}
	defer body.Close()
	if body.filename != "data.csv" || body.size != 4 {
		t.Fatalf("unexpected upload body %+v", body)
	}
	data, _ := io.ReadAll(body.reader)
	if string(data) != "a,b\n" {
		t.Fatalf("unexpected upload content %q", data)
	}

	named, err := disk.openUpload(uploadSource{sourcePath: "in/data.csv", filename: "renamed.csv"})
	if err != nil {
		t.Fatalf("open named upload: %v", err)
	}
	_ = named.Close()
	if named.filename != "renamed.csv" {
		t.Fatalf("expected explicit filename, got %q", named.filename)
	}

	for _, src := range []uploadSource{
		{contentBase64: "YQ==", filename: "a"},
		{},
		{sourcePath: "missing.csv"},
		{sourcePath: "in"},
	} {
		if _, err := disk.openUpload(src); !errors.Is(err, errInvalidArgument) {
			t.Fatalf("%+v: expected invalid argument, got %v", src, err)
		}
	}
	if _, err := disk.openUpload(uploadSource{sourcePath: "../secret"}); !errors.Is(err, errPathEscape) {
		t.Fatalf("expected path escape, got %v", err)
	}
}

func TestInlineStrategyDeliver(t *testing.T) {
	t.Parallel()

	inline := &inlineStrategy{limit: 16, logger: pslog.NoopLogger()}
	if err := inline.checkTarget(download{targetPath: "../ignored"}); err != nil {
		t.Fatalf("inline checkTarget must ignore targetPath: %v", err)
	}

	text, err := inline.deliver(context.Background(), download{body: strings.NewReader("hello"), contentType: "text/plain"})
	if err != nil {
		t.Fatalf("deliver text: %v", err)
	}
	if text != "hello" {
		t.Fatalf("unexpected text %q", text)
	}

	binary := []byte{0xff, 0x00, 0xfe}
	out, err := inline.deliver(context.Background(), download{body: strings.NewReader(string(binary)), contentType: "application/zip"})
	if err != nil {
		t.Fatalf("deliver binary: %v", err)
	}
	if out != base64Marker+base64.StdEncoding.EncodeToString(binary) {
		t.Fatalf("unexpected binary rendering %q", out)
	}

	_, err = inline.deliver(context.Background(), download{tool: "t", body: strings.NewReader(strings.Repeat("x", 17))})
	if !errors.Is(err, errPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
	if !strings.Contains(err.Error(), "--payload-mode=disk") {
		t.Fatalf("expected remedy in error, got %v", err)
	}
}

func TestInlineStrategyOpenUpload(t *testing.T) {
	t.Parallel()

	inline := &inlineStrategy{limit: 8, logger: pslog.NoopLogger()}
	body, err := inline.openUpload(uploadSource{contentBase64: base64.StdEncoding.EncodeToString([]byte("abc")), filename: "a.txt"})
	if err != nil {
		t.Fatalf("open upload: %v", err)
	}
	data, _ := io.ReadAll(body.reader)
	if string(data) != "abc" || body.size != 3 || body.filename != "a.txt" {
		t.Fatalf("unexpected body %+v %q", body, data)
	}

	if _, err := inline.openUpload(uploadSource{sourcePath: "a.txt", filename: "a.txt"}); !errors.Is(err, errInvalidArgument) {
		t.Fatalf("expected sourcePath rejection, got %v", err)
	}
	if _, err := inline.openUpload(uploadSource{contentBase64: "YQ=="}); !errors.Is(err, errInvalidArgument) {
		t.Fatalf("expected filename requirement, got %v", err)
	}
}

func TestDecodeInlineUpload(t *testing.T) {
	t.Parallel()

	data, err := decodeInlineUpload(base64Marker+base64.StdEncoding.EncodeToString([]byte("hi")), 8, "t")
	if err != nil || string(data) != "hi" {
		t.Fatalf("marker-prefixed decode: %q, %v", data, err)
	}
	if _, err := decodeInlineUpload("", 8, "t"); !errors.Is(err, errInvalidArgument) {
		t.Fatalf("expected invalid argument for empty content, got %v", err)
	}
	if _, err := decodeInlineUpload("!!!", 8, "t"); !errors.Is(err, errInvalidArgument) {
		t.Fatalf("expected invalid argument for bad base64, got %v", err)
	}
	big := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 32)))
	if _, err := decodeInlineUpload(big, 8, "t"); !errors.Is(err, errPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
	exact := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 9)))
	if _, err := decodeInlineUpload(exact, 8, "t"); !errors.Is(err, errPayloadTooLarge) {
		t.Fatalf("expected payload too large one byte over the limit, got %v", err)
	}
}

func TestParsePayloadMode(t *testing.T) {
	t.Parallel()

	cases := map[string]PayloadMode{
		"":         PayloadModeDisk,
		"disk":     PayloadModeDisk,
		" Inline ": PayloadModeInline,
	}
	for raw, want := range cases {
		got, err := ParsePayloadMode(raw)
		if err != nil || got != want {
			t.Fatalf("%q: expected %q, got %q, %v", raw, want, got, err)
		}
	}
	if _, err := ParsePayloadMode("memory"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestTextualContentType(t *testing.T) {
	t.Parallel()

	for ct, want := range map[string]bool{
		"text/plain; charset=utf-8": true,
		"application/json":          true,
		"application/problem+json":  true,
		"application/xml":           true,
		"application/zip":           false,
		"image/png":                 false,
	} {
		if got := textualContentType(ct); got != want {
			t.Fatalf("%q: expected %v", ct, want)
		}
	}
}

func TestContextReaderStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := io.ReadAll(contextReader{ctx: ctx, r: strings.NewReader("data")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancelled, got %v", err)
	}
}
