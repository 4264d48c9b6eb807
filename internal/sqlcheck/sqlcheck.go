package sqlcheck

import (
	"strings"
)

// Kind classifies a statement by its shape, not its semantics.
type Kind string

const (
	KindSelect     Kind = "select"
	KindDML        Kind = "dml"
	KindDDL        Kind = "ddl"
	KindUnparsable Kind = "unparsable"
)

// Result reports the outcome of validating one raw SQL string.
// CleanedSQL is non-empty if and only if IsValid is true.
type Result struct {
	IsValid    bool
	CleanedSQL string
	Kind       Kind
	ReadonlyOK bool
}

var dmlKeywords = map[string]struct{}{
	"INSERT": {},
	"UPDATE": {},
	"DELETE": {},
}

var ddlKeywords = map[string]struct{}{
	"CREATE":   {},
	"DROP":     {},
	"ALTER":    {},
	"TRUNCATE": {},
}

var prosePrefixes = []string{
	"here is the sql:",
	"the sql query is:",
	"sql query:",
	"query:",
	"sql:",
}

// Validate cleans model output and decides whether it is an acceptable
// single SQL statement under the requested mode. Multi-statement input is
// rejected regardless of mode; in readonly mode only SELECT statements free
// of DML/DDL keywords pass. On any failure the cleaned SQL is empty.
func Validate(raw string, readonly bool) Result {
	cleaned := Clean(raw)
	if cleaned == "" {
		return Result{Kind: KindUnparsable}
	}

	masked := maskLiterals(cleaned)
	if hasStackedStatements(masked) {
		return Result{Kind: classify(masked)}
	}

	cleaned = strings.TrimRight(cleaned, "; \t\n\r")
	masked = strings.TrimRight(masked, "; \t\n\r")
	if cleaned == "" {
		return Result{Kind: KindUnparsable}
	}

	kind := classify(masked)
	if kind == KindUnparsable {
		return Result{Kind: KindUnparsable}
	}

	readonlyOK := kind == KindSelect && !containsAnyKeyword(masked, dmlKeywords) && !containsAnyKeyword(masked, ddlKeywords)
	if readonly && !readonlyOK {
		return Result{Kind: kind, ReadonlyOK: false}
	}

	return Result{
		IsValid:    true,
		CleanedSQL: cleaned,
		Kind:       kind,
		ReadonlyOK: readonlyOK,
	}
}

// Clean strips markdown fences, explanatory prefixes, and leading comments
// from model output, returning the bare statement text.
func Clean(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return ""
	}

	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```sql")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.Index(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	for _, prefix := range prosePrefixes {
		if len(cleaned) >= len(prefix) && strings.EqualFold(cleaned[:len(prefix)], prefix) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
			break
		}
	}

	cleaned = stripLeadingComments(cleaned)
	return strings.TrimSpace(cleaned)
}

func stripLeadingComments(text string) string {
	for {
		text = strings.TrimSpace(text)
		switch {
		case strings.HasPrefix(text, "--"):
			idx := strings.IndexByte(text, '\n')
			if idx < 0 {
				return ""
			}
			text = text[idx+1:]
		case strings.HasPrefix(text, "/*"):
			idx := strings.Index(text, "*/")
			if idx < 0 {
				return ""
			}
			text = text[idx+2:]
		default:
			return text
		}
	}
}

// maskLiterals blanks the contents of quoted strings and identifiers so
// keyword scans do not trip on literal text like 'DROP ME'.
func maskLiterals(text string) string {
	out := []rune(text)
	var quote rune
	for i := 0; i < len(out); i++ {
		ch := out[i]
		if quote != 0 {
			if ch == quote {
				// doubled quote is an escaped quote inside the literal
				if i+1 < len(out) && out[i+1] == quote {
					out[i+1] = ' '
					i++
					continue
				}
				quote = 0
				continue
			}
			out[i] = ' '
			continue
		}
		if ch == '\'' || ch == '"' {
			quote = ch
		}
	}
	return string(out)
}

// hasStackedStatements reports whether a semicolon is followed by further
// non-whitespace content, the statement-stacking signature.
func hasStackedStatements(masked string) bool {
	idx := strings.IndexByte(masked, ';')
	if idx < 0 {
		return false
	}
	rest := strings.TrimLeft(masked[idx+1:], "; \t\n\r")
	return rest != ""
}

func classify(masked string) Kind {
	switch leadingKeyword(masked) {
	case "SELECT", "WITH":
		return KindSelect
	case "INSERT", "UPDATE", "DELETE":
		return KindDML
	case "CREATE", "DROP", "ALTER", "TRUNCATE":
		return KindDDL
	}
	return KindUnparsable
}

func leadingKeyword(masked string) string {
	fields := strings.FieldsFunc(masked, func(r rune) bool {
		return !isWordRune(r)
	})
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func containsAnyKeyword(masked string, keywords map[string]struct{}) bool {
	fields := strings.FieldsFunc(masked, func(r rune) bool {
		return !isWordRune(r)
	})
	for _, field := range fields {
		if _, ok := keywords[strings.ToUpper(field)]; ok {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_':
		return true
	default:
		return false
	}
}
