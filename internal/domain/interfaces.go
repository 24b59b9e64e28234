package domain

import (
	"context"
	"time"
)

// Clock abstrai o relógio para que os testes controlem a passagem do tempo
type Clock interface {
	Now() time.Time
}

// RateLimiterStorage define a interface para armazenamento dos contadores
// Implementa o Strategy Pattern (memória ou Redis)
type RateLimiterStorage interface {
	// Increment reinicia a janela se expirada e incrementa o contador de forma atômica
	Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error)

	// Get recupera o contador atual de uma chave (nil se não existir ou expirado)
	Get(ctx context.Context, key string) (*RateLimitEntry, error)

	// Reset limpa os dados de uma chave
	Reset(ctx context.Context, key string) error

	// Health verifica se o storage está saudável
	Health(ctx context.Context) error

	// Close fecha a conexão com o storage
	Close() error
}

// RateLimiterService define a interface para o serviço de rate limiting
type RateLimiterService interface {
	// CheckAndConsume consome uma requisição da identidade na política informada
	CheckAndConsume(ctx context.Context, identity string, policy RateLimitPolicy) (*RateLimitResult, error)

	// Policy retorna a política registrada com o nome informado
	Policy(name string) (RateLimitPolicy, bool)

	// GetStatus retorna o contador atual de uma identidade
	GetStatus(ctx context.Context, identity, policyName string) (*RateLimitEntry, error)

	// Reset limpa o contador de uma identidade
	Reset(ctx context.Context, identity, policyName string) error
}

// CertificateStore é o colaborador de persistência do auditor
type CertificateStore interface {
	FindCertificateByToken(ctx context.Context, token string) (*Certificate, error)
	IsIPBlocked(ctx context.Context, certificateID uint, ip string) (bool, error)
	CreateAccessRecord(ctx context.Context, record *AccessAuditRecord) error
	// CountAccessRecords conta os acessos do par desde o último desbloqueio
	CountAccessRecords(ctx context.Context, certificateID uint, ip string) (int64, error)
	UpsertIPBlock(ctx context.Context, block *IPBlock) error

	DeleteCertificate(ctx context.Context, token string) error
	ListIPBlocks(ctx context.Context, certificateID uint) ([]*IPBlock, error)
	// DeleteIPBlock remove o bloqueio e zera a contagem do par
	DeleteIPBlock(ctx context.Context, certificateID uint, ip string) error
	ListAccessRecords(ctx context.Context, certificateID uint, limit int) ([]*AccessAuditRecord, error)

	Health(ctx context.Context) error
}

// CertificateAuditor define o fluxo de visualização pública auditada
type CertificateAuditor interface {
	ViewCertificate(ctx context.Context, req ViewRequest) (*CertificateView, error)
	VerifyCertificate(ctx context.Context, token, holderID, claimedHash string) (bool, error)
	ListBlocks(ctx context.Context, token string) ([]*IPBlock, error)
	Unblock(ctx context.Context, token, ip string) error
	InvalidateCertificate(ctx context.Context, token string) error
	ListAccess(ctx context.Context, token string, limit int) ([]*AccessAuditRecord, error)
}

// Logger define a interface para logging estruturado
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
	WithContext(ctx context.Context) Logger
}
