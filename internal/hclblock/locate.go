// Package hclblock finds and replaces single named configuration blocks in
// HCL-style text without a full grammar parser. The locator walks the file
// byte by byte, tracking string and comment state and a running brace depth,
// so nested blocks and braces inside strings or comments never confuse the
// span calculation.
package hclblock

import (
	"errors"
	"strings"
)

// ErrUnbalanced reports a block whose header matched but whose braces never
// return to the surrounding depth before end of file. Truncated or corrupt
// files produce this; appending a fallback block to them would make things
// worse, so the caller must treat it as a failed patch.
var ErrUnbalanced = errors.New("block braces never balance before end of file")

// LocateResult is the byte span [Start, End) of a matched block, header
// included, closing brace included.
type LocateResult struct {
	Start int
	End   int
	Found bool
}

// Locate returns the span of the first top-level block whose header matches
// signature. Header matching is token based: the signature and the file text
// are compared token by token with arbitrary whitespace between tokens, so
// formatting differences do not matter. When the header occurs more than
// once at the top level the first occurrence wins.
func Locate(content, signature string) (LocateResult, error) {
	tokens := strings.Fields(signature)
	if len(tokens) == 0 {
		return LocateResult{}, nil
	}

	depth := 0
	i := 0
	n := len(content)
	for i < n {
		c := content[i]
		switch {
		case c == '"':
			i = skipString(content, i)
		case c == '#':
			i = skipLineComment(content, i)
		case c == '/' && i+1 < n && content[i+1] == '/':
			i = skipLineComment(content, i)
		case c == '/' && i+1 < n && content[i+1] == '*':
			i = skipBlockComment(content, i)
		case c == '{':
			depth++
			i++
		case c == '}':
			if depth > 0 {
				depth--
			}
			i++
		default:
			if depth == 0 && atTokenStart(content, i) {
				if headerEnd, ok := matchHeader(content, i, tokens); ok {
					blockEnd, isBlock, err := matchBlockEnd(content, headerEnd)
					if err != nil {
						return LocateResult{}, err
					}
					if isBlock {
						return LocateResult{Start: i, End: blockEnd, Found: true}, nil
					}
					// Header text matched an attribute, not a block;
					// keep scanning.
				}
			}
			i++
		}
	}
	return LocateResult{}, nil
}

// matchHeader matches the signature tokens starting at offset start. Tokens
// must match byte for byte; any run of whitespace separates them. Returns the
// offset just past the last token.
func matchHeader(content string, start int, tokens []string) (int, bool) {
	i := start
	for idx, token := range tokens {
		if idx > 0 {
			j := skipSpace(content, i)
			if j == i {
				return 0, false
			}
			i = j
		}
		if !strings.HasPrefix(content[i:], token) {
			return 0, false
		}
		i += len(token)
	}
	// The header must be followed by whitespace and the opening brace, not
	// be a prefix of a longer identifier.
	if i < len(content) {
		c := content[i]
		if c != '{' && c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return 0, false
		}
	}
	return i, true
}

// matchBlockEnd consumes whitespace after the header, requires an opening
// brace, then scans forward counting braces outside strings and comments
// until the depth returns to the level before the block's own opening brace.
// Returns the offset just past the closing brace. A header not followed by
// an opening brace is not a block at all (isBlock false, no error).
func matchBlockEnd(content string, headerEnd int) (end int, isBlock bool, err error) {
	i := skipSpace(content, headerEnd)
	if i >= len(content) || content[i] != '{' {
		return 0, false, nil
	}
	depth := 1
	i++
	n := len(content)
	for i < n {
		c := content[i]
		switch {
		case c == '"':
			i = skipString(content, i)
		case c == '#':
			i = skipLineComment(content, i)
		case c == '/' && i+1 < n && content[i+1] == '/':
			i = skipLineComment(content, i)
		case c == '/' && i+1 < n && content[i+1] == '*':
			i = skipBlockComment(content, i)
		case c == '{':
			depth++
			i++
		case c == '}':
			depth--
			i++
			if depth == 0 {
				return i, true, nil
			}
		default:
			i++
		}
	}
	return 0, false, ErrUnbalanced
}

// atTokenStart reports whether offset i begins a token: start of file or
// preceded by whitespace, brace, or comma.
func atTokenStart(content string, i int) bool {
	if i == 0 {
		return true
	}
	switch content[i-1] {
	case ' ', '\t', '\n', '\r', '{', '}', ',':
		return true
	}
	return false
}

func skipSpace(content string, i int) int {
	for i < len(content) {
		switch content[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

// skipString consumes a double-quoted string starting at the opening quote,
// honoring backslash escapes. Unterminated strings run to end of file.
func skipString(content string, i int) int {
	i++
	for i < len(content) {
		switch content[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1
		default:
			i++
		}
	}
	return i
}

func skipLineComment(content string, i int) int {
	for i < len(content) && content[i] != '\n' {
		i++
	}
	return i
}

func skipBlockComment(content string, i int) int {
	i += 2
	for i+1 < len(content) {
		if content[i] == '*' && content[i+1] == '/' {
			return i + 2
		}
		i++
	}
	return len(content)
}

// HeaderSignature derives a block signature from block text: the header is
// everything before the opening brace, collapsed to single spaces. Returns
// "" when the text has no brace-delimited block shape.
func HeaderSignature(blockText string) string {
	brace := strings.IndexByte(blockText, '{')
	if brace < 0 {
		return ""
	}
	return strings.Join(strings.Fields(blockText[:brace]), " ")
}
