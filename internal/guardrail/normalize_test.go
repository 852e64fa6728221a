package guardrail

import "testing"

func TestCorrect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tok  string
		want string
		ok   bool
	}{
		{"secruity", "security", true},
		{"paswords", "passwords", true},
		{"exfiltrated", "exfiltrate", true},
		{"explicit", "", false},
		{"explicitly", "", false},
		{"destory", "destroy", true},
		{"everythin", "everything", true},
		{"credential", "credentials", true},
		{"passport", "", false},
		{"securities", "", false},
		{"securely", "", false},
		{"hello", "", false},
		{"create", "", false},
	}
	for _, tt := range tests {
		got, ok := correct(tt.tok)
		if got != tt.want || ok != tt.ok {
			t.Errorf("correct(%q) = (%q, %v), want (%q, %v)", tt.tok, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	got, changed := canonicalize("Bypass the secruity, please!")
	if !changed {
		t.Fatal("canonicalize reported no change")
	}
	if got != "bypass the security please" {
		t.Errorf("canonicalize = %q, want %q", got, "bypass the security please")
	}
	for _, clean := range []string{
		"Send email to Bob",
		"Be explicit about the meeting time with Bob tomorrow",
	} {
		if got, changed := canonicalize(clean); changed {
			t.Errorf("canonicalize(%q) = %q, want no change", clean, got)
		}
	}
}
