package domain

import "encoding/json"

// ExtractJSONObject returns the first balanced, well-formed JSON object
// found anywhere in text. Judge models often wrap their JSON in prose,
// so this scans rather than unmarshals the whole response. Returns
// ErrNoJSONFound when nothing parses.
func ExtractJSONObject(text string) (string, error) {
	return extractBalanced(text, '{', '}')
}

// ExtractJSONArray is ExtractJSONObject for top-level arrays.
func ExtractJSONArray(text string) (string, error) {
	return extractBalanced(text, '[', ']')
}

func extractBalanced(text string, openCh, closeCh byte) (string, error) {
	for start := 0; start < len(text); start++ {
		if text[start] != openCh {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			ch := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case openCh:
				depth++
			case closeCh:
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, nil
					}
					// Keep scanning past an unbalanced or invalid candidate.
					i = len(text)
				}
			}
		}
	}
	return "", ErrNoJSONFound
}
