// Package verification calcula e confere o hash de autenticidade dos certificados.
//
// O hash nunca é armazenado: ele é recalculado a partir do token e da
// identidade do titular sempre que precisa ser conferido.
package verification

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
)

// ComputeHash retorna o SHA-256 em hexadecimal de token e holderID.
// Cada campo entra prefixado pelo seu tamanho, então ":" dentro dos valores
// não desloca a fronteira entre eles.
func ComputeHash(token, holderID string) string {
	sum := sha256.Sum256([]byte(encodeFields(token, holderID)))
	return hex.EncodeToString(sum[:])
}

// encodeFields gera "<len>:<valor>|<len>:<valor>"
func encodeFields(fields ...string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.Itoa(len(f)))
		b.WriteByte(':')
		b.WriteString(f)
	}
	return b.String()
}

// Verify confere o hash informado sem expor o hash esperado
func Verify(token, holderID, claimed string) bool {
	claimed = strings.ToLower(strings.TrimSpace(claimed))
	expected := ComputeHash(token, holderID)
	if len(claimed) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(claimed)) == 1
}

// Prefix retorna apenas os primeiros n caracteres do hash
func Prefix(hash string, n int) string {
	if n <= 0 || n >= len(hash) {
		return hash
	}
	return hash[:n]
}
