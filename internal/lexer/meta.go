package lexer

import (
	"strings"

	"github.com/kolkov/uawk/internal/ast"
)

// ScanScriptMeta scans the leading comment block of an AWK source file and
// extracts script metadata declared via `# @desc`, `# @meta key=value`,
// `# @var name`, and `# @env name` lines. Scanning stops at the first line
// that is neither blank nor a comment. The lexer itself treats all comments
// as insignificant whitespace (see skipComment); this is a separate,
// narrower pass run once by the parser after the program is parsed, so the metadata
// comments remain fully transparent to the grammar.
func ScanScriptMeta(src []byte) *ast.ScriptMeta {
	meta := &ast.ScriptMeta{Meta: map[string]string{}}
	found := false

	for _, rawLine := range strings.Split(string(src), "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		switch {
		case strings.HasPrefix(body, "@desc"):
			meta.Desc = strings.TrimSpace(strings.TrimPrefix(body, "@desc"))
			found = true
		case strings.HasPrefix(body, "@meta"):
			kv := strings.TrimSpace(strings.TrimPrefix(body, "@meta"))
			if k, v, ok := strings.Cut(kv, "="); ok {
				meta.Meta[strings.TrimSpace(k)] = strings.TrimSpace(v)
				found = true
			}
		case strings.HasPrefix(body, "@var"):
			name := strings.TrimSpace(strings.TrimPrefix(body, "@var"))
			if name != "" {
				meta.Vars = append(meta.Vars, name)
				found = true
			}
		case strings.HasPrefix(body, "@env"):
			name := strings.TrimSpace(strings.TrimPrefix(body, "@env"))
			if name != "" {
				meta.Envs = append(meta.Envs, name)
				found = true
			}
		}
	}

	if !found {
		return nil
	}
	return meta
}
