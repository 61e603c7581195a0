package control

import "strings"

// expandInstanceTemplate substitutes "$VAR" references in tmpl against env,
// the same substitution rule dispatch.expandInstance and
// event/operator.go's Operator.Evaluate apply (spec.md §3.3). Duplicated
// locally rather than exported from dispatch to keep control's only
// dependency on dispatch being Supervisor's Submit/SubmitSync surface.
func expandInstanceTemplate(tmpl string, env []string) string {
	if tmpl == "" {
		return ""
	}
	values := make(map[string]string, len(env))
	for _, kv := range env {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			values[kv[:idx]] = kv[idx+1:]
		}
	}

	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '$' || i+1 >= len(tmpl) {
			b.WriteByte(tmpl[i])
			continue
		}
		j := i + 1
		for j < len(tmpl) && isVarRune(tmpl[j]) {
			j++
		}
		name := tmpl[i+1 : j]
		if name == "" {
			b.WriteByte(tmpl[i])
			continue
		}
		if v, ok := values[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(tmpl[i:j])
		}
		i = j - 1
	}
	return b.String()
}

func isVarRune(r byte) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
