package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"key": "value"}`, `{"key": "value"}`},
		{"json fence", "```json\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"bare fence", "```\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"surrounding whitespace", "  \n  {\"key\": \"value\"}  \n  ", `{"key": "value"}`},
		{"multiline body", "```json\n{\n  \"a\": 1\n}\n```", "{\n  \"a\": 1\n}"},
		{"empty", "", ""},
		{"whitespace only", "  \n\t ", ""},
		{"prose passes through", "not json at all", "not json at all"},
	}
	for _, tc := range cases {
		if got := ExtractJSON(tc.in); got != tc.want {
			t.Errorf("%s: ExtractJSON = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&APIError{Provider: "openai", Status: 429}, true},
		{&APIError{Provider: "openai", Status: 503}, true},
		{&APIError{Provider: "openai", Status: 400}, false},
		{&APIError{Provider: "openai", Status: 401}, false},
		{fmt.Errorf("wrapped: %w", &APIError{Provider: "ollama", Status: 500}), true},
		{context.Canceled, false},
		{errors.New("schema validation failed"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
