package version

import (
	"strings"
	"testing"
)

func TestCurrentPrefersBuildVersion(t *testing.T) {
	prev := buildVersion
	t.Cleanup(func() { buildVersion = prev })

	buildVersion = "v3.1.4"
	if got := Current(); got != "3.1.4" {
		t.Fatalf("expected 3.1.4, got %q", got)
	}
}

func TestCurrentNeverEmpty(t *testing.T) {
	prev := buildVersion
	t.Cleanup(func() { buildVersion = prev })

	buildVersion = ""
	if got := strings.TrimSpace(Current()); got == "" {
		t.Fatal("expected a version string")
	}
}
