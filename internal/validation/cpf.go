package validation

import (
	"errors"
	"strings"
)

// ErrInvalidCPF возвращается для CPF с неверными контрольными цифрами.
var ErrInvalidCPF = errors.New("CPF inválido")

// NormalizeCPF оставляет в CPF только цифры.
func NormalizeCPF(cpf string) string {
	var b strings.Builder
	for _, r := range cpf {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCPF проверяет длину и обе контрольные цифры CPF.
func ValidateCPF(cpf string) error {
	digits := NormalizeCPF(cpf)
	if len(digits) != 11 {
		return ErrInvalidCPF
	}

	allSame := true
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return ErrInvalidCPF
	}

	if checkDigit(digits[:9], 10) != digits[9] || checkDigit(digits[:10], 11) != digits[10] {
		return ErrInvalidCPF
	}
	return nil
}

// checkDigit считает контрольную цифру по модулю 11 с убывающими весами от weight.
func checkDigit(digits string, weight int) byte {
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * (weight - i)
	}
	rem := sum % 11
	if rem < 2 {
		return '0'
	}
	return byte('0' + 11 - rem)
}
