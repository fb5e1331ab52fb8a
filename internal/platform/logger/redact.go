package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
)

const redacted = "[REDACTED]"

// Keys whose values never reach the log. validation_data and text carry what
// users typed into task answers.
var redactFragments = []string{
	"token", "authorization", "password", "secret", "cookie",
	"api_key", "email", "validation_data",
}

var redactExact = map[string]bool{"text": true}

// Keys that identify a person are logged as a salted short hash so requests
// stay correlatable.
var hashFragments = []string{"user_id", "userid", "caller_id", "actor_id"}

type redactor struct {
	enabled bool
	salt    string
}

var envRedactor = sync.OnceValue(func() *redactor {
	r := &redactor{enabled: true, salt: strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		r.enabled = false
	}
	return r
})

func (r *redactor) apply(kv []interface{}) []interface{} {
	if r == nil || !r.enabled || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		out[i+1] = r.value(strings.ToLower(fmt.Sprint(out[i])), out[i+1])
	}
	return out
}

func (r *redactor) value(key string, v interface{}) interface{} {
	switch {
	case redactExact[key], containsAny(key, redactFragments):
		return redacted
	case containsAny(key, hashFragments):
		return r.hash(v)
	}
	switch t := v.(type) {
	case string:
		if looksLikeJWT(t) {
			return redacted
		}
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = r.value(strings.ToLower(k), inner)
		}
		return m
	}
	return v
}

func (r *redactor) hash(v interface{}) string {
	s := fmt.Sprint(v)
	if v == nil || s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(r.salt + s))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}

func containsAny(key string, frags []string) bool {
	for _, f := range frags {
		if strings.Contains(key, f) {
			return true
		}
	}
	return false
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}
