package goRecovery

import "testing"

func TestClassifyLogin(t *testing.T) {
	tests := []struct {
		login string
		want  LoginType
	}{
		{"ann@example.com", LoginEmail},
		{"  Ann@Example.COM ", LoginEmail},
		{"+1 (555) 123-4567", LoginPhone},
		{"89161234567", LoginPhone},
		{"12345", LoginOther},
		{"ann", LoginOther},
		{"ann@localhost", LoginOther},
		{"", LoginOther},
	}

	for _, tc := range tests {
		if got := ClassifyLogin(tc.login); got != tc.want {
			t.Fatalf("ClassifyLogin(%q) = %q, want %q", tc.login, got, tc.want)
		}
	}
}
