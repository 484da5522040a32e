package mcp

import (
	"strings"
	"testing"
)

func TestBuildToolDescriptionsCoverage(t *testing.T) {
	t.Parallel()

	descriptions := buildToolDescriptions(Config{})
	if len(descriptions) != len(mcpToolNames) {
		t.Fatalf("expected %d tool descriptions, got %d", len(mcpToolNames), len(descriptions))
	}
	seen := map[string]bool{}
	for _, name := range mcpToolNames {
		if seen[name] {
			t.Fatalf("duplicate tool name %s", name)
		}
		seen[name] = true
		if !strings.HasPrefix(name, "novadb_cms_") && !strings.HasPrefix(name, "novadb_index_") {
			t.Fatalf("tool %s lacks the novadb prefix", name)
		}
		if strings.TrimSpace(descriptions[name]) == "" {
			t.Fatalf("empty description for %s", name)
		}
	}
}

func TestBuildToolDescriptionsIncludeOperationalSections(t *testing.T) {
	t.Parallel()

	descriptions := buildToolDescriptions(Config{})
	required := []string{"Purpose:", "Use when:", "Requires:", "Effects:", "Retry:", "Next:"}
	for _, name := range mcpToolNames {
		description := descriptions[name]
		for _, marker := range required {
			if !strings.Contains(description, marker) {
				t.Fatalf("description for %s missing marker %q: %q", name, marker, description)
			}
		}
	}
}

func TestBuildToolDescriptionsCarryDomainCaveats(t *testing.T) {
	t.Parallel()

	descriptions := buildToolDescriptions(Config{})
	cases := []struct {
		tool string
		want []string
	}{
		{toolCMSGetObject, []string{"inherited=true"}},
		{toolCMSGetTypedObject, []string{"novadb_index_search_objects", "5"}},
		{toolCMSCreateObjects, []string{"sortReverse", "201=EN", "202=DE"}},
		{toolCMSUpdateObjects, []string{"SET SEMANTICS", "sortReverse"}},
		{toolCMSDeleteObjects, []string{toolIndexObjectXMLLinkCount}},
		{toolCMSCreateBranch, []string{"4000", "4004"}},
		{toolCMSCreateComment, []string{"<div>"}},
		{toolCMSGetJobs, []string{"RestartRequested"}},
		{toolCMSGetFile, []string{"11000", "11005"}},
		{toolCMSUploadFileCancel, []string{"upload_token_terminal"}},
		{toolIndexSearchObjects, []string{"asynchronously"}},
		{toolIndexMatchStrings, []string{"Lucene"}},
	}
	for _, tc := range cases {
		for _, want := range tc.want {
			if !strings.Contains(descriptions[tc.tool], want) {
				t.Fatalf("description for %s missing %q: %q", tc.tool, want, descriptions[tc.tool])
			}
		}
	}
}

func TestBuildToolDescriptionsFollowPayloadMode(t *testing.T) {
	t.Parallel()

	disk := buildToolDescriptions(Config{PayloadMode: PayloadModeDisk})
	if !strings.Contains(disk[toolCMSGetJobLogs], "targetPath") {
		t.Fatalf("disk download description should mention targetPath: %q", disk[toolCMSGetJobLogs])
	}
	if !strings.Contains(disk[toolCMSJobInputUpload], "sourcePath") {
		t.Fatalf("disk upload description should mention sourcePath: %q", disk[toolCMSJobInputUpload])
	}

	inline := buildToolDescriptions(Config{PayloadMode: PayloadModeInline, InlineMaxBytes: 1024})
	if !strings.Contains(inline[toolCMSGetJobLogs], "1.0 KiB") {
		t.Fatalf("inline download description should mention the limit: %q", inline[toolCMSGetJobLogs])
	}
	if !strings.Contains(inline[toolCMSGetJobLogs], "[base64]") {
		t.Fatalf("inline download description should mention the base64 marker: %q", inline[toolCMSGetJobLogs])
	}
	if !strings.Contains(inline[toolCMSUploadFile], "contentBase64") {
		t.Fatalf("inline upload description should mention contentBase64: %q", inline[toolCMSUploadFile])
	}
}

func TestDefaultServerInstructionsNamePayloadMode(t *testing.T) {
	t.Parallel()

	if got := defaultServerInstructions(Config{}); !strings.Contains(got, "disk mode") {
		t.Fatalf("expected disk default, got %q", got)
	}
	if got := defaultServerInstructions(Config{PayloadMode: PayloadModeInline}); !strings.Contains(got, "inline mode") {
		t.Fatalf("expected inline mode, got %q", got)
	}
}
