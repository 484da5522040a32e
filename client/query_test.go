package client

import "testing"

type branchRef struct{ name string }

func (b branchRef) String() string { return "branch-" + b.name }

func TestQueryEncode(t *testing.T) {
	t.Run("repeated keys", func(t *testing.T) {
		got := NewQuery().Set("id", 1).Set("id", 2).Encode()
		if got != "id=1&id=2" {
			t.Fatalf("Encode() = %q, want %q", got, "id=1&id=2")
		}
	})

	t.Run("stringer values", func(t *testing.T) {
		got := NewQuery().Set("ref", branchRef{name: "draft"}).Set("empty", branchRef{}).Encode()
		if got != "ref=branch-draft&empty=branch-" {
			t.Fatalf("Encode() = %q", got)
		}
	})

	t.Run("unsupported kinds dropped", func(t *testing.T) {
		got := NewQuery().Set("ids", []int{1, 2}).Set("take", 10).Encode()
		if got != "take=10" {
			t.Fatalf("Encode() = %q, want %q", got, "take=10")
		}
	})
}
