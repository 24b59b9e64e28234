package domain

import "time"

// Nomes das políticas de rate limiting registradas por padrão
const (
	PolicyDefault           = "default"
	PolicyCertificateView   = "certificate_view"
	PolicyCertificateVerify = "certificate_verify"
)

// UnknownIdentity é usado quando não é possível determinar o cliente
const UnknownIdentity = "unknown"

// DefaultBlockThreshold é a quantidade de acessos que gera bloqueio do IP
const DefaultBlockThreshold = 5

// HashPrefixLength é o tamanho do trecho do hash exposto publicamente
const HashPrefixLength = 12

// RateLimitPolicy define uma política de janela fixa
type RateLimitPolicy struct {
	Name        string        `json:"name"`
	Window      time.Duration `json:"window"`
	MaxRequests int           `json:"maxRequests"`
	Description string        `json:"description,omitempty"`
}

// Validate garante que a política é utilizável
func (p RateLimitPolicy) Validate() error {
	if p.Window <= 0 {
		return &PolicyError{Policy: p.Name, Reason: "window must be greater than 0"}
	}
	if p.MaxRequests <= 0 {
		return &PolicyError{Policy: p.Name, Reason: "max requests must be greater than 0"}
	}
	return nil
}

// RateLimitEntry é o contador de uma identidade dentro de uma política
type RateLimitEntry struct {
	Key           string    `json:"key"`
	Count         int       `json:"count"`
	WindowResetAt time.Time `json:"windowResetAt"`
}

// Expired indica se a janela já terminou em relação a now
func (e *RateLimitEntry) Expired(now time.Time) bool {
	return !now.Before(e.WindowResetAt)
}

// RateLimitResult representa o resultado de uma verificação de rate limit
type RateLimitResult struct {
	Allowed           bool      `json:"allowed"`
	Identity          string    `json:"identity"`
	Policy            string    `json:"policy"`
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	ResetAt           time.Time `json:"resetAt"`
	RetryAfterSeconds int       `json:"retryAfterSeconds,omitempty"`
}

// Certificate é um certificado de conclusão de curso já emitido
type Certificate struct {
	ID          uint      `json:"id"`
	Token       string    `json:"token"`
	HolderID    string    `json:"holderId"`
	HolderName  string    `json:"holderName"`
	HolderEmail string    `json:"holderEmail,omitempty"`
	CourseTitle string    `json:"courseTitle"`
	IssuerName  string    `json:"issuerName"`
	IssuedAt    time.Time `json:"issuedAt"`
}

// CertificateView é o que a página pública do certificado recebe
type CertificateView struct {
	Token       string    `json:"token"`
	HolderName  string    `json:"holderName"`
	CourseTitle string    `json:"courseTitle"`
	IssuerName  string    `json:"issuerName"`
	IssuedAt    time.Time `json:"issuedAt"`
	HashPrefix  string    `json:"verificationHashPrefix"`
}

// AccessAuditRecord registra uma visualização pública de certificado.
// Registros nunca são alterados depois de criados.
type AccessAuditRecord struct {
	ID             uint      `json:"id"`
	CertificateID  uint      `json:"certificateId"`
	IP             string    `json:"ip"`
	RequesterEmail string    `json:"requesterEmail,omitempty"`
	AccessedAt     time.Time `json:"accessedAt"`
}

// IPBlock bloqueia um IP para um certificado específico
type IPBlock struct {
	ID            uint      `json:"id"`
	CertificateID uint      `json:"certificateId"`
	IP            string    `json:"ip"`
	BlockedAt     time.Time `json:"blockedAt"`
}

// ViewRequest são os dados de entrada de uma visualização pública
type ViewRequest struct {
	Token          string `json:"token" validate:"required,max=128,printascii"`
	IP             string `json:"ip" validate:"required,ip_or_unknown"`
	RequesterEmail string `json:"requesterEmail" validate:"omitempty,email,max=254"`
}
