// Package render turns stored template bodies into per-recipient subject, text and HTML.
package render

import "strings"

// Substitute replaces every "[name]" placeholder whose name is a key of vars.
// Placeholders with no matching key are left verbatim. The scan is a single left-to-right
// pass, so substituted values are never re-expanded.
func Substitute(s string, vars map[string]string) string {
	if s == "" || len(vars) == 0 || !strings.Contains(s, "[") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for {
		open := strings.IndexByte(s, '[')
		if open < 0 {
			b.WriteString(s)
			break
		}
		closeRel := strings.IndexByte(s[open+1:], ']')
		if closeRel < 0 {
			b.WriteString(s)
			break
		}
		end := open + 1 + closeRel
		name := s[open+1 : end]

		// "[a [b]" must still match "[b]".
		if inner := strings.LastIndexByte(name, '['); inner >= 0 {
			b.WriteString(s[:open+1+inner])
			s = s[open+1+inner:]
			continue
		}

		b.WriteString(s[:open])
		if v, ok := vars[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[open : end+1])
		}
		s = s[end+1:]
	}
	return b.String()
}
