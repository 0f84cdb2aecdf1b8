package llm

import (
	"strings"
)

// extractJSON finds the first JSON value opening with open ('{' or '[') in a
// model reply: inside a ```json block, a bare ``` block, or inline text.
func extractJSON(response string, open byte) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			content := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(content, string(open)) {
				return content
			}
		}
	}

	if start := strings.IndexByte(response, open); start != -1 {
		return extractBalanced(response, start)
	}
	return ""
}

// extractBalanced returns the JSON value starting at start, skipping brackets
// inside strings, or "" if it is never closed.
func extractBalanced(s string, start int) string {
	open := s[start]
	var closer byte
	switch open {
	case '{':
		closer = '}'
	case '[':
		closer = ']'
	default:
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// cleanSQL trims whitespace and stray markdown fences from generated SQL.
// Semicolons are left alone so the validator sees what the model wrote.
func cleanSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	if strings.HasPrefix(sql, "```") {
		sql = strings.TrimPrefix(sql, "```sql")
		sql = strings.TrimPrefix(sql, "```")
		sql = strings.TrimSuffix(sql, "```")
	}
	return strings.TrimSpace(sql)
}
