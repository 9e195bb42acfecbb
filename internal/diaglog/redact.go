package diaglog

import (
	"net/url"
	"strings"
)

// sensitiveKeys are replaced with "[REDACTED]" before an entry is written
var sensitiveKeys = map[string]bool{
	"password": true,
	"secret":   true,
	"token":    true,
	"username": true,
}

// Redact returns a copy of v with sensitive map values replaced and any
// URL-looking string stripped of its userinfo. v is not mutated.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if sensitiveKeys[strings.ToLower(k)] {
				out[k] = "[REDACTED]"
			} else {
				out[k] = Redact(child)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = Redact(elem)
		}
		return out
	case string:
		return redactURL(val)
	default:
		return v
	}
}

// redactURL hides credentials in broker URIs such as mqtt://user:pw@host
func redactURL(s string) string {
	if !strings.Contains(s, "://") || !strings.Contains(s, "@") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	u.User = url.User("[REDACTED]")
	return u.String()
}
