package repository

import (
	"time"

	"certificate-guard/internal/domain"
)

// CertificateSchema é a tabela de certificados emitidos
type CertificateSchema struct {
	ID          uint      `gorm:"primaryKey"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	Token       string    `gorm:"type:varchar(128);uniqueIndex;not null"`
	HolderID    string    `gorm:"type:varchar(128);not null"`
	HolderName  string    `gorm:"type:varchar(255);not null"`
	HolderEmail string    `gorm:"type:varchar(255)"`
	CourseTitle string    `gorm:"type:varchar(255);not null"`
	IssuerName  string    `gorm:"type:varchar(255)"`
	IssuedAt    time.Time `gorm:"not null"`
}

func (CertificateSchema) TableName() string {
	return "certificates"
}

// AccessAuditRecordSchema guarda cada visualização pública bem-sucedida
type AccessAuditRecordSchema struct {
	ID             uint      `gorm:"primaryKey"`
	CertificateID  uint      `gorm:"index:idx_access_certificate_ip,priority:1;not null"`
	IP             string    `gorm:"type:varchar(64);index:idx_access_certificate_ip,priority:2;not null"`
	RequesterEmail string    `gorm:"type:varchar(254)"`
	AccessedAt     time.Time `gorm:"index;not null"`
}

func (AccessAuditRecordSchema) TableName() string {
	return "certificate_access_logs"
}

// IPBlockSchema marca um IP bloqueado para um certificado. No máximo um por par.
type IPBlockSchema struct {
	ID            uint      `gorm:"primaryKey"`
	CertificateID uint      `gorm:"uniqueIndex:idx_block_certificate_ip,priority:1;not null"`
	IP            string    `gorm:"type:varchar(64);uniqueIndex:idx_block_certificate_ip,priority:2;not null"`
	BlockedAt     time.Time `gorm:"not null"`
}

func (IPBlockSchema) TableName() string {
	return "certificate_ip_blocks"
}

// IPUnblockSchema guarda o último acesso registrado quando o IP foi desbloqueado.
// A recontagem considera apenas acessos com id maior que LastRecordID.
type IPUnblockSchema struct {
	ID            uint      `gorm:"primaryKey"`
	CertificateID uint      `gorm:"uniqueIndex:idx_unblock_certificate_ip,priority:1;not null"`
	IP            string    `gorm:"type:varchar(64);uniqueIndex:idx_unblock_certificate_ip,priority:2;not null"`
	LastRecordID  uint      `gorm:"not null;default:0"`
	UnblockedAt   time.Time `gorm:"not null"`
}

func (IPUnblockSchema) TableName() string {
	return "certificate_ip_unblocks"
}

// Models lista os modelos para AutoMigrate
func Models() []interface{} {
	return []interface{}{
		&CertificateSchema{},
		&AccessAuditRecordSchema{},
		&IPBlockSchema{},
		&IPUnblockSchema{},
	}
}

func NewSchemaCertificate(c *domain.Certificate) *CertificateSchema {
	return &CertificateSchema{
		ID:          c.ID,
		Token:       c.Token,
		HolderID:    c.HolderID,
		HolderName:  c.HolderName,
		HolderEmail: c.HolderEmail,
		CourseTitle: c.CourseTitle,
		IssuerName:  c.IssuerName,
		IssuedAt:    c.IssuedAt.UTC(),
	}
}

func (s *CertificateSchema) EtoD() *domain.Certificate {
	return &domain.Certificate{
		ID:          s.ID,
		Token:       s.Token,
		HolderID:    s.HolderID,
		HolderName:  s.HolderName,
		HolderEmail: s.HolderEmail,
		CourseTitle: s.CourseTitle,
		IssuerName:  s.IssuerName,
		IssuedAt:    s.IssuedAt.UTC(),
	}
}

func NewSchemaAccessAuditRecord(r *domain.AccessAuditRecord) *AccessAuditRecordSchema {
	return &AccessAuditRecordSchema{
		ID:             r.ID,
		CertificateID:  r.CertificateID,
		IP:             r.IP,
		RequesterEmail: r.RequesterEmail,
		AccessedAt:     r.AccessedAt.UTC(),
	}
}

func (s *AccessAuditRecordSchema) EtoD() *domain.AccessAuditRecord {
	return &domain.AccessAuditRecord{
		ID:             s.ID,
		CertificateID:  s.CertificateID,
		IP:             s.IP,
		RequesterEmail: s.RequesterEmail,
		AccessedAt:     s.AccessedAt.UTC(),
	}
}

func NewSchemaIPBlock(b *domain.IPBlock) *IPBlockSchema {
	return &IPBlockSchema{
		ID:            b.ID,
		CertificateID: b.CertificateID,
		IP:            b.IP,
		BlockedAt:     b.BlockedAt.UTC(),
	}
}

func (s *IPBlockSchema) EtoD() *domain.IPBlock {
	return &domain.IPBlock{
		ID:            s.ID,
		CertificateID: s.CertificateID,
		IP:            s.IP,
		BlockedAt:     s.BlockedAt.UTC(),
	}
}
