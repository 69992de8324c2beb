package llm

import "strings"

// ExtractJSON strips markdown code fences from an LLM response and returns
// the raw JSON text, or "" if the response is empty. No parsing happens
// here; callers validate the text against their own schema.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines) - 1
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		text = strings.Join(lines[1:endIdx], "\n")
	}

	return strings.TrimSpace(text)
}
