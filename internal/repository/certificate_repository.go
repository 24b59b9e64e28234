// Package repository persiste certificados, trilha de acessos e bloqueios de IP via GORM.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"certificate-guard/internal/domain"
)

// CertificateRepository implementa domain.CertificateStore sobre GORM
type CertificateRepository struct {
	db *gorm.DB
}

// NewCertificateRepository cria o repositório
func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

func (r *CertificateRepository) FindCertificateByToken(ctx context.Context, token string) (*domain.Certificate, error) {
	var row CertificateSchema
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCertificateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return row.EtoD(), nil
}

// CreateCertificate registra um certificado emitido
func (r *CertificateRepository) CreateCertificate(ctx context.Context, cert *domain.Certificate) error {
	row := NewSchemaCertificate(cert)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	cert.ID = row.ID
	return nil
}

// DeleteCertificate remove o certificado. Trilha de acessos e bloqueios permanecem.
func (r *CertificateRepository) DeleteCertificate(ctx context.Context, token string) error {
	result := r.db.WithContext(ctx).Where("token = ?", token).Delete(&CertificateSchema{})
	if result.Error != nil {
		return fmt.Errorf("delete certificate: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrCertificateNotFound
	}
	return nil
}

func (r *CertificateRepository) IsIPBlocked(ctx context.Context, certificateID uint, ip string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&IPBlockSchema{}).
		Where("certificate_id = ? AND ip = ?", certificateID, ip).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check ip block: %w", err)
	}
	return count > 0, nil
}

func (r *CertificateRepository) CreateAccessRecord(ctx context.Context, record *domain.AccessAuditRecord) error {
	row := NewSchemaAccessAuditRecord(record)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create access record: %w", err)
	}
	record.ID = row.ID
	return nil
}

// CountAccessRecords conta os acessos do par registrados depois do último desbloqueio
func (r *CertificateRepository) CountAccessRecords(ctx context.Context, certificateID uint, ip string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&AccessAuditRecordSchema{}).
		Where("certificate_id = ? AND ip = ?", certificateID, ip).
		Where("id > COALESCE((SELECT last_record_id FROM certificate_ip_unblocks WHERE certificate_id = ? AND ip = ?), 0)", certificateID, ip).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count access records: %w", err)
	}
	return count, nil
}

// UpsertIPBlock cria o bloqueio; se o par já existe, nada muda
func (r *CertificateRepository) UpsertIPBlock(ctx context.Context, block *domain.IPBlock) error {
	row := NewSchemaIPBlock(block)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "certificate_id"}, {Name: "ip"}},
			DoNothing: true,
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert ip block: %w", err)
	}
	if row.ID != 0 {
		block.ID = row.ID
	}
	return nil
}

func (r *CertificateRepository) ListIPBlocks(ctx context.Context, certificateID uint) ([]*domain.IPBlock, error) {
	var rows []IPBlockSchema
	err := r.db.WithContext(ctx).
		Where("certificate_id = ?", certificateID).
		Order("blocked_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list ip blocks: %w", err)
	}

	blocks := make([]*domain.IPBlock, 0, len(rows))
	for i := range rows {
		blocks = append(blocks, rows[i].EtoD())
	}
	return blocks, nil
}

// DeleteIPBlock remove o bloqueio e marca o último acesso existente,
// para que o IP volte a ter o limite inteiro de acessos
func (r *CertificateRepository) DeleteIPBlock(ctx context.Context, certificateID uint, ip string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("certificate_id = ? AND ip = ?", certificateID, ip).Delete(&IPBlockSchema{})
		if result.Error != nil {
			return fmt.Errorf("delete ip block: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrBlockNotFound
		}

		var lastRecordID uint
		err := tx.Model(&AccessAuditRecordSchema{}).
			Select("COALESCE(MAX(id), 0)").
			Where("certificate_id = ? AND ip = ?", certificateID, ip).
			Scan(&lastRecordID).Error
		if err != nil {
			return fmt.Errorf("find last access record: %w", err)
		}

		watermark := &IPUnblockSchema{
			CertificateID: certificateID,
			IP:            ip,
			LastRecordID:  lastRecordID,
			UnblockedAt:   time.Now().UTC(),
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "certificate_id"}, {Name: "ip"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_record_id", "unblocked_at"}),
		}).Create(watermark).Error
		if err != nil {
			return fmt.Errorf("record unblock: %w", err)
		}
		return nil
	})
}

func (r *CertificateRepository) ListAccessRecords(ctx context.Context, certificateID uint, limit int) ([]*domain.AccessAuditRecord, error) {
	var rows []AccessAuditRecordSchema
	err := r.db.WithContext(ctx).
		Where("certificate_id = ?", certificateID).
		Order("accessed_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list access records: %w", err)
	}

	records := make([]*domain.AccessAuditRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].EtoD())
	}
	return records, nil
}

func (r *CertificateRepository) Health(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
