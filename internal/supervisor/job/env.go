package job

import "strings"

// mergeEnv combines the triggering event's environment with the class's
// declared Env, resolving spec.md §9's class-vs-event precedence question:
// class-declared keys win over event keys, event-only keys pass through
// unchanged (SPEC_FULL.md §5.1).
func mergeEnv(classEnv, eventEnv []string) []string {
	keys := make(map[string]struct{}, len(classEnv))
	for _, kv := range classEnv {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			keys[kv[:idx]] = struct{}{}
		}
	}

	merged := make([]string, 0, len(classEnv)+len(eventEnv))
	for _, kv := range eventEnv {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		if _, overridden := keys[kv[:idx]]; overridden {
			continue
		}
		merged = append(merged, kv)
	}
	merged = append(merged, classEnv...)
	return merged
}
