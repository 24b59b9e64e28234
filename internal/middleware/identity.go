package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"

	"github.com/gin-gonic/gin"

	"certificate-guard/internal/domain"
)

const principalHashLength = 16

// DeriveIdentity retorna "user:<hash>" para requisições com credencial e "ip:<ip>" para as demais
func DeriveIdentity(c *gin.Context) string {
	if token := GetAPIToken(c); token != "" {
		sum := sha256.Sum256([]byte(token))
		return "user:" + hex.EncodeToString(sum[:])[:principalHashLength]
	}
	return "ip:" + GetClientIP(c)
}

// GetClientIP extrai o IP do cliente considerando proxies e load balancers.
// Prioridade: X-Forwarded-For > X-Real-IP > RemoteAddr.
func GetClientIP(c *gin.Context) string {
	// O primeiro IP do X-Forwarded-For é o cliente original
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return first
		}
	}

	if xri := strings.TrimSpace(c.GetHeader("X-Real-IP")); xri != "" {
		return xri
	}

	if c.Request == nil || c.Request.RemoteAddr == "" {
		return domain.UnknownIdentity
	}

	if host, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil && host != "" {
		return host
	}
	return c.Request.RemoteAddr
}

// GetAPIToken extrai a credencial da requisição.
// Prioridade: Authorization Bearer > API_KEY > X-Api-Token.
func GetAPIToken(c *gin.Context) string {
	if auth := strings.TrimSpace(c.GetHeader("Authorization")); auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			if token := strings.TrimSpace(auth[7:]); token != "" {
				return token
			}
		}
	}

	if token := strings.TrimSpace(c.GetHeader("API_KEY")); token != "" {
		return token
	}

	return strings.TrimSpace(c.GetHeader("X-Api-Token"))
}
