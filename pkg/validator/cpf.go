package validator

import "strings"

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeCPF strips punctuation from a CPF.
func NormalizeCPF(cpf string) string {
	return Digits(cpf)
}

// ValidCPF checks length and both check digits. Repeated-digit numbers
// such as 111.111.111-11 pass the checksum but are not issued.
func ValidCPF(cpf string) bool {
	d := NormalizeCPF(cpf)
	if len(d) != 11 {
		return false
	}
	if strings.Count(d, d[:1]) == 11 {
		return false
	}

	digit := func(n int) byte {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(d[i]-'0') * (n + 1 - i)
		}
		rest := (sum * 10) % 11
		if rest == 10 {
			rest = 0
		}
		return byte(rest) + '0'
	}

	return digit(9) == d[9] && digit(10) == d[10]
}
