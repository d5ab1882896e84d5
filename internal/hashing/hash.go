package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fields that identify the client device or session rather than the
// person, and therefore cross the boundary unhashed. Everything else
// string-valued in user data is treated as PII.
var plaintextFields = map[string]struct{}{
	"client_user_agent": {},
	"click_id":          {},
	"browser_id":        {},
	"subscription_id":   {},
}

// Digest normalizes (trim, lowercase) and SHA-256 hashes a single value,
// returning the lowercase hex digest.
func Digest(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// AnonymizeUserData returns a copy of userData with every identifying
// string field hashed. List-valued fields (em, ph) are hashed
// element-wise. Non-string values pass through untouched.
func AnonymizeUserData(userData map[string]any) map[string]any {
	if userData == nil {
		return nil
	}

	out := make(map[string]any, len(userData))
	for key, value := range userData {
		if _, plain := plaintextFields[key]; plain {
			out[key] = value
			continue
		}

		switch v := value.(type) {
		case string:
			out[key] = Digest(v)
		case []string:
			hashed := make([]string, len(v))
			for i, item := range v {
				hashed[i] = Digest(item)
			}
			out[key] = hashed
		case []any:
			hashed := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					hashed = append(hashed, Digest(s))
				}
			}
			out[key] = hashed
		default:
			out[key] = value
		}
	}
	return out
}
