// Package phone normalizes phone numbers into the digit strings used for
// session ids, panel usernames and server names.
package phone

import "strings"

// Digits strips everything but ASCII digits.
func Digits(number string) string {
	var b strings.Builder
	b.Grow(len(number))
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Suffix returns the last n digits of number, or all of them when shorter.
func Suffix(number string, n int) string {
	d := Digits(number)
	if len(d) <= n {
		return d
	}
	return d[len(d)-n:]
}
