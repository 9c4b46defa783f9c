package ids

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    string
		want    string
		wantErr bool
	}{
		{name: "simple", raw: "auth", kind: "task", want: "auth"},
		{name: "uppercase folded", raw: "Auth-Service", kind: "task", want: "auth-service"},
		{name: "spaces to hyphens", raw: "fix login bug", kind: "task", want: "fix-login-bug"},
		{name: "underscores to hyphens", raw: "fix_login_bug", kind: "task", want: "fix-login-bug"},
		{name: "prefix stripped", raw: "T-auth", kind: "task", want: "auth"},
		{name: "repeated prefix stripped", raw: "T-T-T-auth", kind: "task", want: "auth"},
		{name: "wrong-kind prefix kept", raw: "p-auth", kind: "task", want: "p-auth"},
		{name: "punctuation dropped", raw: "what?!", kind: "task", want: "what"},
		{name: "doubled hyphens collapse", raw: "a--b", kind: "task", want: "a-b"},
		{name: "edge hyphens trimmed", raw: "-auth-", kind: "task", want: "auth"},
		{name: "empty after cleanup", raw: "???", kind: "task", wantErr: true},
		{name: "only prefix", raw: "T-", kind: "task", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw, tt.kind)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%q) = %q, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCleanPrereq(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"T-auth", "auth"},
		{"auth", "auth"},
		{"P-site", "site"},
		{"T-T-auth", "auth"},
		{"E-F-x", "x"},
		{"t-auth", "t-auth"}, // prefixes are case-sensitive on disk
	}
	for _, tt := range tests {
		if got := CleanPrereq(tt.in); got != tt.want {
			t.Errorf("CleanPrereq(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanPrereqHostileInput(t *testing.T) {
	hostile := strings.Repeat("T-", 100) + "x"
	got := CleanPrereq(hostile)
	// The strip cap stops after ten rounds; the point is termination,
	// not full cleaning.
	if !strings.HasSuffix(got, "x") {
		t.Errorf("CleanPrereq lost the payload: %q", got)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("auth-service-2", true); err != nil {
		t.Errorf("valid ID rejected: %v", err)
	}
	if err := Validate(strings.Repeat("a", 33), true); err == nil {
		t.Error("33-char new ID accepted")
	}
	if err := Validate(strings.Repeat("a", 33), false); err != nil {
		t.Errorf("33-char existing ID rejected: %v", err)
	}
	if err := Validate(strings.Repeat("a", 256), false); err == nil {
		t.Error("256-char existing ID accepted")
	}
	for _, bad := range []string{"", "-auth", "auth-", "a--b", "Auth", "a_b", "a.b"} {
		if err := Validate(bad, true); err == nil {
			t.Errorf("Validate(%q) accepted", bad)
		}
	}
}

func TestFromTitleCapsLength(t *testing.T) {
	id, err := FromTitle(strings.Repeat("word ", 20), "task")
	if err != nil {
		t.Fatal(err)
	}
	if len(id) > MaxNewIDLength {
		t.Errorf("derived ID too long: %d chars", len(id))
	}
	if strings.HasSuffix(id, "-") {
		t.Errorf("derived ID ends with hyphen: %q", id)
	}
}

func TestWithSuffix(t *testing.T) {
	if got := WithSuffix("auth", 2); got != "auth-2" {
		t.Errorf("WithSuffix = %q, want auth-2", got)
	}
	long := strings.Repeat("a", MaxNewIDLength)
	got := WithSuffix(long, 10)
	if len(got) > MaxNewIDLength {
		t.Errorf("suffixed ID exceeds cap: %d chars", len(got))
	}
	if !strings.HasSuffix(got, "-10") {
		t.Errorf("suffix lost: %q", got)
	}
}

func TestKindFromPrefix(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"P-site", "project"},
		{"E-users", "epic"},
		{"F-login", "feature"},
		{"T-auth", "task"},
		{"auth", ""},
	}
	for _, tt := range tests {
		if got := KindFromPrefix(tt.id); got != tt.want {
			t.Errorf("KindFromPrefix(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
