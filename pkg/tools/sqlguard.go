package tools

import (
	"strings"

	"dwagent/pkg/taxonomy"
)

// SplitStatements splits raw SQL on statement boundaries, honoring single and
// double quoted strings, line comments, and block comments. Empty statements
// are dropped.
func SplitStatements(raw string) []string {
	var statements []string
	var current strings.Builder

	inSingle, inDouble, inLineComment, inBlockComment := false, false, false, false

	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case inLineComment:
			if ch == '\n' {
				inLineComment = false
			}
			current.WriteRune(ch)
		case inBlockComment:
			if ch == '*' && next == '/' {
				inBlockComment = false
				current.WriteRune(ch)
				current.WriteRune(next)
				i++
				continue
			}
			current.WriteRune(ch)
		case inSingle:
			if ch == '\'' {
				// Doubled quote escapes inside a string literal.
				if next == '\'' {
					current.WriteRune(ch)
					current.WriteRune(next)
					i++
					continue
				}
				inSingle = false
			}
			current.WriteRune(ch)
		case inDouble:
			if ch == '"' {
				inDouble = false
			}
			current.WriteRune(ch)
		case ch == '\'':
			inSingle = true
			current.WriteRune(ch)
		case ch == '"':
			inDouble = true
			current.WriteRune(ch)
		case ch == '-' && next == '-':
			inLineComment = true
			current.WriteRune(ch)
		case ch == '/' && next == '*':
			inBlockComment = true
			current.WriteRune(ch)
		case ch == ';':
			stmt := strings.TrimSpace(current.String())
			if stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}

	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

// ValidateSingleStatement enforces the one-atomic-action constraint: the
// payload must contain exactly one SQL statement. Returns the normalized
// statement without its trailing semicolon.
func ValidateSingleStatement(raw string) (string, error) {
	statements := SplitStatements(raw)
	switch len(statements) {
	case 0:
		return "", taxonomy.Validationf("statement is empty")
	case 1:
		return statements[0], nil
	default:
		return "", taxonomy.Validationf("payload contains %d statements; exactly one atomic action is allowed per call", len(statements))
	}
}

// structural statement verbs that change or write warehouse state.
var structuralVerbs = map[string]bool{
	"CREATE":   true,
	"DROP":     true,
	"ALTER":    true,
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"MERGE":    true,
	"TRUNCATE": true,
	"COPY":     true,
}

// noise words skipped between a verb and its object kind or target.
var objectModifiers = map[string]bool{
	"OR": true, "REPLACE": true, "IF": true, "NOT": true, "EXISTS": true,
	"TRANSIENT": true, "TEMPORARY": true, "TEMP": true, "INTO": true,
	"FROM": true, "TABLE": true, "ONLY": true,
}

// ValidateQualifiedIdentifiers enforces fully-qualified resource identifiers
// on structural statements. Database-level statements need a bare name,
// schema-level statements a DATABASE.SCHEMA pair, and object-level statements
// the full DATABASE.SCHEMA.OBJECT form. Session-state statements (USE) are
// rejected outright since they subvert qualification.
func ValidateQualifiedIdentifiers(stmt string) error {
	fields := tokenize(stmt)
	if len(fields) == 0 {
		return taxonomy.Validationf("statement is empty")
	}

	verb := strings.ToUpper(fields[0])

	if verb == "USE" {
		return taxonomy.Validationf("USE changes session state; qualify identifiers as DATABASE.SCHEMA.OBJECT instead")
	}

	if !structuralVerbs[verb] {
		// Read-only statements carry no qualification requirement.
		return nil
	}

	kind, target := objectKindAndTarget(fields)
	if target == "" {
		return taxonomy.Validationf("%s statement has no target identifier", verb)
	}

	parts := identifierParts(target)
	switch kind {
	case "DATABASE":
		if parts < 1 {
			return taxonomy.Validationf("database statement target %q is malformed", target)
		}
	case "SCHEMA":
		if parts < 2 {
			return taxonomy.Validationf("schema target %q must be qualified as DATABASE.SCHEMA", target)
		}
	default:
		if parts < 3 {
			return taxonomy.Validationf("target %q must be fully qualified as DATABASE.SCHEMA.OBJECT", target)
		}
	}
	return nil
}

// objectKindAndTarget scans past modifiers after the verb to find the object
// kind keyword (DATABASE, SCHEMA, ...) and the first identifier after it.
func objectKindAndTarget(fields []string) (kind, target string) {
	kind = "OBJECT"
	for _, field := range fields[1:] {
		upper := strings.ToUpper(field)
		switch {
		case upper == "DATABASE" || upper == "SCHEMA":
			kind = upper
		case objectModifiers[upper]:
			// Skip.
		default:
			return kind, field
		}
	}
	return kind, ""
}

// tokenize splits a statement into whitespace- and paren-separated tokens.
func tokenize(stmt string) []string {
	return strings.FieldsFunc(stmt, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' || r == ')'
	})
}

// identifierParts counts the dot-separated parts of an identifier, treating
// quoted segments as single parts.
func identifierParts(identifier string) int {
	identifier = strings.TrimSuffix(identifier, ";")
	if identifier == "" {
		return 0
	}

	parts := 1
	inQuote := false
	for _, ch := range identifier {
		switch {
		case ch == '"':
			inQuote = !inQuote
		case ch == '.' && !inQuote:
			parts++
		}
	}
	return parts
}

// IsReadOnlyStatement reports whether a statement only observes state.
// Discovery calls are idempotent-safe to re-issue; the gateway may retry them
// freely on transient failures.
func IsReadOnlyStatement(stmt string) bool {
	fields := tokenize(stmt)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN", "WITH", "LIST":
		return true
	default:
		return false
	}
}
