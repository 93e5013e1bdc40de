package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/pixter/pixter-backend/internal/models"
)

// Константы валидации
const (
	MinNomeLength = 2
	MaxNomeLength = 120
	MaxEmailLength = 254
	// MaxAmountCents ограничивает один платёж суммой R$ 100 000,00.
	MaxAmountCents = 10_000_000
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s deve ter pelo menos %d caracteres", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s deve ter no máximo %d caracteres", fieldName, max)
	}
	return nil
}

// ValidateNome проверяет имя пользователя.
func ValidateNome(nome string) error {
	nome = strings.TrimSpace(nome)
	if nome == "" {
		return fmt.Errorf("Nome é obrigatório")
	}
	return ValidateLength("Nome", nome, MinNomeLength, MaxNomeLength)
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("Email é obrigatório")
	}
	if len(email) > MaxEmailLength {
		return fmt.Errorf("Email inválido")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return fmt.Errorf("Email inválido")
	}
	return nil
}

// NormalizeEmail приводит email к нижнему регистру без пробелов.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateTipo проверяет тип пользователя.
func ValidateTipo(tipo string) error {
	if !models.ValidTipo(tipo) {
		return fmt.Errorf("Tipo de usuário inválido")
	}
	return nil
}

// ValidateAmountCents проверяет сумму платежа: целое положительное число сентаво.
func ValidateAmountCents(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("Valor inválido")
	}
	if amount > MaxAmountCents {
		return fmt.Errorf("Valor acima do limite permitido")
	}
	return nil
}

// ValidateTipCents проверяет чаевые: неотрицательное число сентаво.
func ValidateTipCents(tip int64) error {
	if tip < 0 || tip > MaxAmountCents {
		return fmt.Errorf("Valor da gorjeta inválido")
	}
	return nil
}
