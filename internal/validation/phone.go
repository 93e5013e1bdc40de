package validation

import (
	"errors"
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidPhone возвращается для номеров, которые нельзя привести к E.164.
var ErrInvalidPhone = errors.New("Número de telefone inválido")

// FormatPhoneNumber приводит номер к формату E.164.
// Номер без "+" считается национальным для countryCode; уже отформатированный номер не меняется.
func FormatPhoneNumber(phone, countryCode string) (string, error) {
	raw := strings.TrimSpace(phone)
	if raw == "" {
		return "", ErrInvalidPhone
	}

	cc, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(countryCode), "+"))
	if err != nil || cc <= 0 {
		return "", ErrInvalidPhone
	}

	region := phonenumbers.GetRegionCodeForCountryCode(cc)
	if region == "" || region == "ZZ" {
		return "", ErrInvalidPhone
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", ErrInvalidPhone
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
