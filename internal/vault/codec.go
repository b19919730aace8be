package vault

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

// Salt prefixes the inner encoding of every value.
const Salt = "MELODY_FLOW_SECURE_SALT_v1_"

// Encode obfuscates s as base64(Salt + base64(s)). The empty string encodes to itself.
func Encode(s string) string {
	if s == "" {
		return ""
	}
	inner := base64.StdEncoding.EncodeToString([]byte(s))
	return base64.StdEncoding.EncodeToString([]byte(Salt + inner))
}

// Decode reverses [Encode].
//
// Values written before the salt was introduced are base64(base64(v)) and
// are decoded with two passes. Anything that fails to decode, or decodes to
// invalid UTF-8, is returned unchanged, so Decode never fails.
func Decode(s string) string {
	if s == "" {
		return ""
	}

	outer, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}

	rest, ok := strings.CutPrefix(string(outer), Salt)
	if !ok {
		rest = string(outer)
	}

	inner, err := base64.StdEncoding.DecodeString(rest)
	if err != nil || !utf8.Valid(inner) {
		return s
	}
	return string(inner)
}
