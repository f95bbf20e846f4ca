package utils

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "plain object",
			response: `{"names": ["Introduction"]}`,
			want:     `{"names": ["Introduction"]}`,
		},
		{
			name:     "markdown fenced",
			response: "```json\n{\"score\": 0.8}\n```",
			want:     `{"score": 0.8}`,
		},
		{
			name:     "prose around object",
			response: `Here are the sections: {"names": ["A", "B"]} Hope that helps!`,
			want:     `{"names": ["A", "B"]}`,
		},
		{
			name:     "array",
			response: `[{"n": 1}, {"n": 2}]`,
			want:     `[{"n": 1}, {"n": 2}]`,
		},
		{
			name:     "braces inside strings",
			response: `{"text": "a { nested } brace"}`,
			want:     `{"text": "a { nested } brace"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.response)
			if err != nil {
				t.Fatalf("ExtractJSON failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractJSONNoJSON(t *testing.T) {
	for _, response := range []string{"", "just prose, nothing structured", "{broken"} {
		if _, err := ExtractJSON(response); !errors.Is(err, ErrNoJSONFound) {
			t.Errorf("ExtractJSON(%q) err = %v, want ErrNoJSONFound", response, err)
		}
	}
}

func TestExtractJSONTo(t *testing.T) {
	var out struct {
		Names []string `json:"names"`
	}
	err := ExtractJSONTo("```json\n{\"names\": [\"Alpha\", \"Beta\"]}\n```", &out)
	if err != nil {
		t.Fatalf("ExtractJSONTo failed: %v", err)
	}
	if len(out.Names) != 2 || out.Names[0] != "Alpha" {
		t.Errorf("got %+v", out)
	}
}
