package utils

import (
	"fmt"
	"strings"
)

// NormalizePhone reduz o telefone apenas aos dígitos, para comparação de identidade.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatPhone formata números brasileiros para exibição (ex: +55 (11) 99999-9999).
// Números fora do padrão 55 + DDD + 8/9 dígitos voltam como chegaram.
func FormatPhone(phone string) string {
	if phone == "" {
		return ""
	}

	cleaned := NormalizePhone(phone)

	if strings.HasPrefix(cleaned, "55") && (len(cleaned) == 12 || len(cleaned) == 13) {
		ddd := cleaned[2:4]
		if len(cleaned) == 13 {
			// Celular com nono dígito
			return fmt.Sprintf("+55 (%s) %s-%s", ddd, cleaned[4:9], cleaned[9:])
		}
		// Fixo ou número antigo
		return fmt.Sprintf("+55 (%s) %s-%s", ddd, cleaned[4:8], cleaned[8:])
	}

	return phone
}
