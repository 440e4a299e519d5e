package domain_test

import (
	"testing"

	"supplyfuse/internal/domain"
)

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"Draft emergency POs.":       "draft emergency pos",
		"  draft   emergency POs ":   "draft emergency pos",
		"Approve: expedited (rush)!": "approve expedited rush",
		"":                           "",
	}
	for in, want := range cases {
		if got := domain.NormalizeKey(in); got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
	a := domain.ActionKey("Draft emergency POs.", []string{"PROD-2", "PROD-1"})
	b := domain.ActionKey("draft emergency POs", []string{"PROD-1", "PROD-2"})
	if a != b || a != "draft emergency pos|PROD-1,PROD-2" {
		t.Fatalf("keys differ: %q %q", a, b)
	}
}
