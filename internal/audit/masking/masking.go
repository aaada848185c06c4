package masking

import "strings"

const maskToken = "****"

// sensitiveKeys are metadata keys whose string values carry payment
// instrument references.
var sensitiveKeys = map[string]struct{}{
	"reference":      {},
	"card_reference": {},
	"cheque_number":  {},
	"account_number": {},
}

// MaskReference redacts an instrument reference, keeping the last four
// characters for reconciliation.
func MaskReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskSensitive returns a copy of metadata with sensitive string values
// masked. Nested maps are walked; blank keys are dropped.
func MaskSensitive(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		out[trimmedKey] = maskValue(trimmedKey, value)
	}
	return out
}

func maskValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
			return MaskReference(cast)
		}
		return cast
	case map[string]any:
		return MaskSensitive(cast)
	default:
		return value
	}
}
