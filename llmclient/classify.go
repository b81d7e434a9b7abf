// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llmclient

import "strings"

func buildClassificationPrompt(text string, candidates []string) string {
	var b strings.Builder
	b.WriteString("Candidates: ")
	b.WriteString(strings.Join(candidates, ", "))
	b.WriteString("\n\nText: ")
	b.WriteString(text)
	return b.String()
}

// normalizeClassifierOutput maps a raw model reply back onto one of
// candidates, tolerating case differences and surrounding punctuation/
// whitespace the model may add despite being asked not to.
func normalizeClassifierOutput(raw string, candidates []string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.Trim(cleaned, ".\"'` ")
	for _, c := range candidates {
		if strings.ToLower(c) == cleaned {
			return c
		}
	}
	for _, c := range candidates {
		if strings.Contains(cleaned, strings.ToLower(c)) {
			return c
		}
	}
	return ""
}
