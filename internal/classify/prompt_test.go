package classify

import (
	"strings"
	"testing"
)

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain object passes through",
			raw:  `{"money": 5}`,
			want: `{"money": 5}`,
		},
		{
			name: "json code fence stripped",
			raw:  "```json\n{\"money\": 5}\n```",
			want: `{"money": 5}`,
		},
		{
			name: "bare code fence stripped",
			raw:  "```\n{\"money\": 5}\n```",
			want: `{"money": 5}`,
		},
		{
			name: "surrounding prose removed",
			raw:  "Here is the result: {\"money\": 5} hope that helps",
			want: `{"money": 5}`,
		},
		{
			name: "null preserved",
			raw:  " null ",
			want: "null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.raw); got != tt.want {
				t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestBuildClassifyPrompt(t *testing.T) {
	prompt := buildClassifyPrompt([]string{"Food", "Transport"})

	for _, want := range []string{"STRICT JSON", "account_from", "Food", "Transport"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildClassifyPrompt_NoCategories(t *testing.T) {
	prompt := buildClassifyPrompt(nil)
	if strings.Contains(prompt, "Use ONLY the following categories") {
		t.Error("prompt should omit category block when none are known")
	}
}
