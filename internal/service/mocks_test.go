package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"certificate-guard/internal/domain"
)

// MockStorage é um mock do RateLimiterStorage para testes
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	args := m.Called(ctx, key, window)
	return args.Int(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockStorage) Get(ctx context.Context, key string) (*domain.RateLimitEntry, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RateLimitEntry), args.Error(1)
}

func (m *MockStorage) Reset(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorage) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockCertificateStore é um mock do CertificateStore para testes
type MockCertificateStore struct {
	mock.Mock
}

func (m *MockCertificateStore) FindCertificateByToken(ctx context.Context, token string) (*domain.Certificate, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Certificate), args.Error(1)
}

func (m *MockCertificateStore) IsIPBlocked(ctx context.Context, certificateID uint, ip string) (bool, error) {
	args := m.Called(ctx, certificateID, ip)
	return args.Bool(0), args.Error(1)
}

func (m *MockCertificateStore) CreateAccessRecord(ctx context.Context, record *domain.AccessAuditRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockCertificateStore) CountAccessRecords(ctx context.Context, certificateID uint, ip string) (int64, error) {
	args := m.Called(ctx, certificateID, ip)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCertificateStore) UpsertIPBlock(ctx context.Context, block *domain.IPBlock) error {
	args := m.Called(ctx, block)
	return args.Error(0)
}

func (m *MockCertificateStore) ListIPBlocks(ctx context.Context, certificateID uint) ([]*domain.IPBlock, error) {
	args := m.Called(ctx, certificateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IPBlock), args.Error(1)
}

func (m *MockCertificateStore) DeleteCertificate(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockCertificateStore) DeleteIPBlock(ctx context.Context, certificateID uint, ip string) error {
	args := m.Called(ctx, certificateID, ip)
	return args.Error(0)
}

func (m *MockCertificateStore) ListAccessRecords(ctx context.Context, certificateID uint, limit int) ([]*domain.AccessAuditRecord, error) {
	args := m.Called(ctx, certificateID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AccessAuditRecord), args.Error(1)
}

func (m *MockCertificateStore) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
