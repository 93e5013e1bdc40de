package validation

import (
	"fmt"
	"unicode"
)

// MinPasswordLength - минимальная длина пароля для входа по email.
const MinPasswordLength = 8

// ValidatePassword проверяет пароль: не короче 8 символов, есть буквы и цифры.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("A senha deve ter pelo menos %d caracteres", MinPasswordLength)
	}

	var hasLetter, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsLetter(char):
			hasLetter = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	if !hasLetter || !hasNumber {
		return fmt.Errorf("A senha deve conter letras e números")
	}

	return nil
}
