package models

import (
	"sort"
	"time"
)

// OrderingTime é o instante usado para ordenar: prefere o timestamp cru do
// banco (microssegundos preservados) e cai para o timestamp de exibição.
// Timestamp é parseado da mesma string created_at, então o fallback por
// mensagem equivale a só usar o cru quando os dois lados o têm.
func (m Message) OrderingTime() time.Time {
	if m.CreatedAtRaw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, m.CreatedAtRaw); err == nil {
			return ts
		}
	}
	return m.Timestamp
}

// CompareMessages define a ordem total dentro de uma conversa: timestamp
// primeiro, desempate pelo ID com comparação numérica ("2" antes de "10").
// IDs do banco são crescentes, então o desempate aproxima a ordem de chegada.
func CompareMessages(a, b Message) int {
	ta, tb := a.OrderingTime(), b.OrderingTime()
	if ta.Before(tb) {
		return -1
	}
	if ta.After(tb) {
		return 1
	}
	return compareIDs(a.ID, b.ID)
}

// SortMessages reordena a sequência inteira. As threads têm algumas centenas
// de mensagens no máximo, então o sort completo a cada mutação é barato.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return CompareMessages(msgs[i], msgs[j]) < 0
	})
}

// compareIDs compara IDs tratando trechos numéricos pelo valor, não pelo
// caractere (equivalente ao localeCompare com numeric: true).
func compareIDs(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			// Coleta as duas sequências de dígitos
			si := i
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			sj := j
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			na := trimLeadingZeros(a[si:i])
			nb := trimLeadingZeros(b[sj:j])
			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}
				return 1
			}
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case i < len(a):
		return 1
	case j < len(b):
		return -1
	}
	return 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func trimLeadingZeros(s string) string {
	k := 0
	for k < len(s)-1 && s[k] == '0' {
		k++
	}
	return s[k:]
}
