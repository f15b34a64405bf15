package bitstream

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// FormatHex renders a payload as lowercase hex without separators.
func FormatHex(payload []byte) string {
	return hex.EncodeToString(payload)
}

// FormatC renders a payload as a C initialiser line, the layout used for
// firmware command tables:
//
//	{0xaa,0xaa,0x65,0x21}, // gold_fade_in
func FormatC(payload []byte, name string) string {
	parts := make([]string, len(payload))
	for i, b := range payload {
		parts[i] = fmt.Sprintf("%#x", b)
	}
	line := "{" + strings.Join(parts, ",") + "},"
	if name != "" {
		line += " // " + name
	}
	return line
}

// ParseHex decodes a hex payload, accepting optional 0x prefixes and comma
// or space separators ("aa aa 55", "0xaa,0xaa,0x55", "aaaa55").
func ParseHex(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '{' || r == '}'
	})
	if len(fields) == 1 {
		compact := strings.TrimPrefix(strings.ToLower(fields[0]), "0x")
		if len(compact) > 2 {
			return hex.DecodeString(compact)
		}
	}
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimPrefix(strings.ToLower(f), "0x")
		if len(f) == 1 {
			f = "0" + f
		}
		b, err := hex.DecodeString(f)
		if err != nil || len(b) != 1 {
			return nil, fmt.Errorf("invalid hex byte %q", f)
		}
		out = append(out, b[0])
	}
	return out, nil
}
