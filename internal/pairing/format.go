package pairing

import "strings"

// FormatCode groups a raw pairing code into blocks of 4 joined by hyphens,
// e.g. ABCD1234EFGH becomes ABCD-1234-EFGH. Existing hyphens are dropped first.
func FormatCode(raw string) string {
	code := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", ""))

	var b strings.Builder
	for i, r := range []rune(code) {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}
