package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"certificate-guard/internal/clock"
	"certificate-guard/internal/domain"
	"certificate-guard/internal/logger"
	"certificate-guard/internal/verification"
)

var testCertificate = domain.Certificate{
	ID:          1,
	Token:       "cert-1",
	HolderID:    "user-42",
	HolderName:  "Maria Souza",
	HolderEmail: "maria@example.com",
	CourseTitle: "Pães de Fermentação Natural",
	IssuerName:  "Chef do Cotidiano",
	IssuedAt:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
}

// fakeCertificateStore guarda certificados, acessos e bloqueios em memória
type fakeCertificateStore struct {
	mu      sync.Mutex
	certs   map[string]domain.Certificate
	records []domain.AccessAuditRecord
	blocks  map[string]domain.IPBlock
	// último id de acesso no momento do desbloqueio, por par
	watermarks map[string]uint
}

func newFakeCertificateStore(certs ...domain.Certificate) *fakeCertificateStore {
	store := &fakeCertificateStore{
		certs:      make(map[string]domain.Certificate),
		blocks:     make(map[string]domain.IPBlock),
		watermarks: make(map[string]uint),
	}
	for _, c := range certs {
		store.certs[c.Token] = c
	}
	return store
}

func blockKey(certificateID uint, ip string) string {
	return fmt.Sprintf("%d|%s", certificateID, ip)
}

func (f *fakeCertificateStore) FindCertificateByToken(_ context.Context, token string) (*domain.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.certs[token]
	if !ok {
		return nil, domain.ErrCertificateNotFound
	}
	return &c, nil
}

func (f *fakeCertificateStore) IsIPBlocked(_ context.Context, certificateID uint, ip string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blocks[blockKey(certificateID, ip)]
	return ok, nil
}

func (f *fakeCertificateStore) CreateAccessRecord(_ context.Context, record *domain.AccessAuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record.ID = uint(len(f.records) + 1)
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeCertificateStore) CountAccessRecords(_ context.Context, certificateID uint, ip string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	since := f.watermarks[blockKey(certificateID, ip)]
	var n int64
	for _, r := range f.records {
		if r.CertificateID == certificateID && r.IP == ip && r.ID > since {
			n++
		}
	}
	return n, nil
}

func (f *fakeCertificateStore) DeleteCertificate(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.certs[token]; !ok {
		return domain.ErrCertificateNotFound
	}
	delete(f.certs, token)
	return nil
}

func (f *fakeCertificateStore) UpsertIPBlock(_ context.Context, block *domain.IPBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := blockKey(block.CertificateID, block.IP)
	if _, ok := f.blocks[key]; !ok {
		f.blocks[key] = *block
	}
	return nil
}

func (f *fakeCertificateStore) ListIPBlocks(_ context.Context, certificateID uint) ([]*domain.IPBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.IPBlock
	for _, b := range f.blocks {
		if b.CertificateID == certificateID {
			b := b
			out = append(out, &b)
		}
	}
	return out, nil
}

func (f *fakeCertificateStore) DeleteIPBlock(_ context.Context, certificateID uint, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := blockKey(certificateID, ip)
	if _, ok := f.blocks[key]; !ok {
		return domain.ErrBlockNotFound
	}
	delete(f.blocks, key)
	for _, r := range f.records {
		if r.CertificateID == certificateID && r.IP == ip {
			f.watermarks[key] = r.ID
		}
	}
	return nil
}

func (f *fakeCertificateStore) ListAccessRecords(_ context.Context, certificateID uint, limit int) ([]*domain.AccessAuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.AccessAuditRecord
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		if f.records[i].CertificateID == certificateID {
			r := f.records[i]
			out = append(out, &r)
		}
	}
	return out, nil
}

func (f *fakeCertificateStore) Health(context.Context) error { return nil }

func (f *fakeCertificateStore) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func newSyncAuditor(store domain.CertificateStore) *CertificateAuditor {
	cfg := DefaultAuditorConfig()
	cfg.Async = false
	return NewCertificateAuditor(store, cfg, clock.NewFake(serviceStart), logger.NewLogger("error", "text"))
}

func TestCertificateAuditor_ViewCertificate(t *testing.T) {
	store := newFakeCertificateStore(testCertificate)
	auditor := newSyncAuditor(store)

	view, err := auditor.ViewCertificate(context.Background(), domain.ViewRequest{
		Token:          "cert-1",
		IP:             "9.9.9.9",
		RequesterEmail: "visitor@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Maria Souza", view.HolderName)
	assert.Equal(t, "Pães de Fermentação Natural", view.CourseTitle)
	assert.Equal(t, testCertificate.IssuedAt, view.IssuedAt)

	fullHash := verification.ComputeHash("cert-1", "user-42")
	assert.Equal(t, fullHash[:domain.HashPrefixLength], view.HashPrefix)

	require.Equal(t, 1, store.recordCount())
	assert.Equal(t, "visitor@example.com", store.records[0].RequesterEmail)
	assert.Equal(t, serviceStart, store.records[0].AccessedAt)
}

func TestCertificateAuditor_UnknownToken(t *testing.T) {
	store := newFakeCertificateStore(testCertificate)
	auditor := newSyncAuditor(store)

	view, err := auditor.ViewCertificate(context.Background(), domain.ViewRequest{Token: "abc123", IP: "9.9.9.9"})
	assert.Nil(t, view)
	assert.ErrorIs(t, err, domain.ErrCertificateNotFound)
	assert.Equal(t, 0, store.recordCount())
}

func TestCertificateAuditor_BlocksAfterThreshold(t *testing.T) {
	store := newFakeCertificateStore(testCertificate)
	auditor := newSyncAuditor(store)
	ctx := context.Background()
	req := domain.ViewRequest{Token: "cert-1", IP: "9.9.9.9"}

	for i := 1; i <= domain.DefaultBlockThreshold; i++ {
		view, err := auditor.ViewCertificate(ctx, req)
		require.NoError(t, err, "view %d should succeed", i)
		require.NotNil(t, view)
	}

	for i := 0; i < 3; i++ {
		view, err := auditor.ViewCertificate(ctx, req)
		assert.Nil(t, view)
		assert.ErrorIs(t, err, domain.ErrAccessBlocked)
	}

	// Tentativas bloqueadas não geram registro
	assert.Equal(t, domain.DefaultBlockThreshold, store.recordCount())

	// Outro IP continua liberado
	view, err := auditor.ViewCertificate(ctx, domain.ViewRequest{Token: "cert-1", IP: "8.8.8.8"})
	require.NoError(t, err)
	assert.NotNil(t, view)

	blocks, err := auditor.ListBlocks(ctx, "cert-1")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "9.9.9.9", blocks[0].IP)
}

func TestCertificateAuditor_Unblock(t *testing.T) {
	store := newFakeCertificateStore(testCertificate)
	auditor := newSyncAuditor(store)
	ctx := context.Background()
	req := domain.ViewRequest{Token: "cert-1", IP: "9.9.9.9"}

	for i := 0; i < domain.DefaultBlockThreshold; i++ {
		_, err := auditor.ViewCertificate(ctx, req)
		require.NoError(t, err)
	}
	_, err := auditor.ViewCertificate(ctx, req)
	require.ErrorIs(t, err, domain.ErrAccessBlocked)

	require.NoError(t, auditor.Unblock(ctx, "cert-1", "9.9.9.9"))
	assert.ErrorIs(t, auditor.Unblock(ctx, "cert-1", "9.9.9.9"), domain.ErrBlockNotFound)

	// Depois do desbloqueio o IP tem de novo o limite inteiro
	for i := 0; i < domain.DefaultBlockThreshold; i++ {
		_, err = auditor.ViewCertificate(ctx, req)
		require.NoError(t, err, "view %d after unblock", i+1)
	}
	_, err = auditor.ViewCertificate(ctx, req)
	assert.ErrorIs(t, err, domain.ErrAccessBlocked)

	// A trilha guarda todos os acessos servidos
	assert.Equal(t, 2*domain.DefaultBlockThreshold, store.recordCount())
}

func TestCertificateAuditor_InvalidateCertificate(t *testing.T) {
	store := newFakeCertificateStore(testCertificate)
	auditor := newSyncAuditor(store)
	ctx := context.Background()

	_, err := auditor.ViewCertificate(ctx, domain.ViewRequest{Token: "cert-1", IP: "9.9.9.9"})
	require.NoError(t, err)

	require.NoError(t, auditor.InvalidateCertificate(ctx, "cert-1"))

	view, err := auditor.ViewCertificate(ctx, domain.ViewRequest{Token: "cert-1", IP: "9.9.9.9"})
	assert.Nil(t, view)
	assert.ErrorIs(t, err, domain.ErrCertificateNotFound)

	assert.ErrorIs(t, auditor.InvalidateCertificate(ctx, "cert-1"), domain.ErrCertificateNotFound)
	assert.ErrorIs(t, auditor.InvalidateCertificate(ctx, "  "), domain.ErrValidation)
	assert.Equal(t, 1, store.recordCount())
}

func TestCertificateAuditor_InvalidateCertificateStoreFailure(t *testing.T) {
	store := new(MockCertificateStore)
	store.On("DeleteCertificate", mock.Anything, "cert-1").Return(errors.New("connection reset"))
	auditor := newSyncAuditor(store)

	err := auditor.InvalidateCertificate(context.Background(), "cert-1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	store.AssertExpectations(t)
}

func TestCertificateAuditor_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   domain.ViewRequest
		field string
	}{
		{name: "Should reject missing token", req: domain.ViewRequest{IP: "1.2.3.4"}, field: "token"},
		{name: "Should reject blank token", req: domain.ViewRequest{Token: "   ", IP: "1.2.3.4"}, field: "token"},
		{name: "Should reject malformed IP", req: domain.ViewRequest{Token: "cert-1", IP: "999.1.1.1"}, field: "ip"},
		{name: "Should reject missing IP", req: domain.ViewRequest{Token: "cert-1"}, field: "ip"},
		{name: "Should reject malformed email", req: domain.ViewRequest{Token: "cert-1", IP: "1.2.3.4", RequesterEmail: "nope"}, field: "requesterEmail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockCertificateStore)
			auditor := newSyncAuditor(store)

			view, err := auditor.ViewCertificate(context.Background(), tt.req)
			assert.Nil(t, view)
			assert.ErrorIs(t, err, domain.ErrValidation)

			var validationErr *domain.ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tt.field, validationErr.Field)
			store.AssertNotCalled(t, "FindCertificateByToken", mock.Anything, mock.Anything)
		})
	}
}

func TestCertificateAuditor_AcceptsUnknownIPAndIPv6(t *testing.T) {
	store := newFakeCertificateStore(testCertificate)
	auditor := newSyncAuditor(store)

	for _, ip := range []string{domain.UnknownIdentity, "2001:db8::1"} {
		view, err := auditor.ViewCertificate(context.Background(), domain.ViewRequest{Token: "cert-1", IP: ip})
		require.NoError(t, err, ip)
		assert.NotNil(t, view)
	}
}

func TestCertificateAuditor_StoreFailures(t *testing.T) {
	ctx := context.Background()
	req := domain.ViewRequest{Token: "cert-1", IP: "9.9.9.9"}
	dbErr := errors.New("connection reset by peer")

	t.Run("Should surface lookup failure as store unavailable", func(t *testing.T) {
		store := new(MockCertificateStore)
		store.On("FindCertificateByToken", mock.Anything, "cert-1").Return(nil, dbErr)

		view, err := newSyncAuditor(store).ViewCertificate(ctx, req)
		assert.Nil(t, view)
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.NotErrorIs(t, err, domain.ErrCertificateNotFound)
	})

	t.Run("Should refuse view when block check fails", func(t *testing.T) {
		cert := testCertificate
		store := new(MockCertificateStore)
		store.On("FindCertificateByToken", mock.Anything, "cert-1").Return(&cert, nil)
		store.On("IsIPBlocked", mock.Anything, uint(1), "9.9.9.9").Return(false, dbErr)

		view, err := newSyncAuditor(store).ViewCertificate(ctx, req)
		assert.Nil(t, view)
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

		var storeErr *domain.StoreError
		require.True(t, errors.As(err, &storeErr))
		assert.Equal(t, "is_ip_blocked", storeErr.Op)
		store.AssertNotCalled(t, "CreateAccessRecord", mock.Anything, mock.Anything)
	})

	t.Run("Should serve view when block check fails in fail-open mode", func(t *testing.T) {
		cert := testCertificate
		store := new(MockCertificateStore)
		store.On("FindCertificateByToken", mock.Anything, "cert-1").Return(&cert, nil)
		store.On("IsIPBlocked", mock.Anything, uint(1), "9.9.9.9").Return(false, dbErr)
		store.On("CreateAccessRecord", mock.Anything, mock.Anything).Return(nil)
		store.On("CountAccessRecords", mock.Anything, uint(1), "9.9.9.9").Return(int64(1), nil)

		cfg := DefaultAuditorConfig()
		cfg.Async = false
		cfg.BlockCheckFailOpen = true
		auditor := NewCertificateAuditor(store, cfg, clock.NewFake(serviceStart), nil)

		view, err := auditor.ViewCertificate(ctx, req)
		require.NoError(t, err)
		assert.NotNil(t, view)
		store.AssertExpectations(t)
	})

	t.Run("Should serve view when audit write fails", func(t *testing.T) {
		cert := testCertificate
		store := new(MockCertificateStore)
		store.On("FindCertificateByToken", mock.Anything, "cert-1").Return(&cert, nil)
		store.On("IsIPBlocked", mock.Anything, uint(1), "9.9.9.9").Return(false, nil)
		store.On("CreateAccessRecord", mock.Anything, mock.Anything).Return(dbErr)

		view, err := newSyncAuditor(store).ViewCertificate(ctx, req)
		require.NoError(t, err)
		assert.NotNil(t, view)
		store.AssertNotCalled(t, "CountAccessRecords", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Should serve view when block write fails", func(t *testing.T) {
		cert := testCertificate
		store := new(MockCertificateStore)
		store.On("FindCertificateByToken", mock.Anything, "cert-1").Return(&cert, nil)
		store.On("IsIPBlocked", mock.Anything, uint(1), "9.9.9.9").Return(false, nil)
		store.On("CreateAccessRecord", mock.Anything, mock.Anything).Return(nil)
		store.On("CountAccessRecords", mock.Anything, uint(1), "9.9.9.9").Return(int64(7), nil)
		store.On("UpsertIPBlock", mock.Anything, mock.MatchedBy(func(b *domain.IPBlock) bool {
			return b.CertificateID == 1 && b.IP == "9.9.9.9"
		})).Return(dbErr)

		view, err := newSyncAuditor(store).ViewCertificate(ctx, req)
		require.NoError(t, err)
		assert.NotNil(t, view)
		store.AssertExpectations(t)
	})
}

func TestCertificateAuditor_StoreTimeout(t *testing.T) {
	store := new(MockCertificateStore)
	store.On("FindCertificateByToken", mock.Anything, "cert-1").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	cfg := DefaultAuditorConfig()
	cfg.StoreTimeout = 20 * time.Millisecond
	auditor := NewCertificateAuditor(store, cfg, clock.System{}, nil)

	start := time.Now()
	_, err := auditor.ViewCertificate(context.Background(), domain.ViewRequest{Token: "cert-1", IP: "1.1.1.1"})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCertificateAuditor_AsyncAuditSurvivesCancellation(t *testing.T) {
	store := newFakeCertificateStore(testCertificate)
	cfg := DefaultAuditorConfig()
	cfg.Async = true
	auditor := NewCertificateAuditor(store, cfg, clock.NewFake(serviceStart), nil)

	ctx, cancel := context.WithCancel(context.Background())
	view, err := auditor.ViewCertificate(ctx, domain.ViewRequest{Token: "cert-1", IP: "9.9.9.9"})
	cancel()
	require.NoError(t, err)
	require.NotNil(t, view)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer drainCancel()
	require.NoError(t, auditor.Drain(drainCtx))
	assert.Equal(t, 1, store.recordCount())
}

func TestCertificateAuditor_ConcurrentViewsBlockOnce(t *testing.T) {
	store := newFakeCertificateStore(testCertificate)
	cfg := DefaultAuditorConfig()
	cfg.Async = true
	auditor := NewCertificateAuditor(store, cfg, clock.NewFake(serviceStart), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = auditor.ViewCertificate(context.Background(), domain.ViewRequest{Token: "cert-1", IP: "9.9.9.9"})
		}()
	}
	wg.Wait()
	require.NoError(t, auditor.Drain(context.Background()))

	blocks, err := auditor.ListBlocks(context.Background(), "cert-1")
	require.NoError(t, err)
	assert.Len(t, blocks, 1)

	_, err = auditor.ViewCertificate(context.Background(), domain.ViewRequest{Token: "cert-1", IP: "9.9.9.9"})
	assert.ErrorIs(t, err, domain.ErrAccessBlocked)
}

func TestCertificateAuditor_VerifyCertificate(t *testing.T) {
	store := newFakeCertificateStore(testCertificate)
	auditor := newSyncAuditor(store)
	ctx := context.Background()
	hash := verification.ComputeHash("cert-1", "user-42")

	valid, err := auditor.VerifyCertificate(ctx, "cert-1", "user-42", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auditor.VerifyCertificate(ctx, "cert-1", "user-43", verification.ComputeHash("cert-1", "user-43"))
	require.NoError(t, err)
	assert.False(t, valid, "hash of another holder must not verify")

	valid, err = auditor.VerifyCertificate(ctx, "cert-1", "user-42", hash[:domain.HashPrefixLength])
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = auditor.VerifyCertificate(ctx, "abc123", "user-42", hash)
	assert.ErrorIs(t, err, domain.ErrCertificateNotFound)

	_, err = auditor.VerifyCertificate(ctx, "cert-1", "", hash)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = auditor.VerifyCertificate(ctx, "cert-1", "user-42", " ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Verificar não gera trilha de auditoria
	assert.Equal(t, 0, store.recordCount())
}

func TestCertificateAuditor_ListAccess(t *testing.T) {
	store := newFakeCertificateStore(testCertificate)
	auditor := newSyncAuditor(store)
	ctx := context.Background()

	for _, ip := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		_, err := auditor.ViewCertificate(ctx, domain.ViewRequest{Token: "cert-1", IP: ip})
		require.NoError(t, err)
	}

	records, err := auditor.ListAccess(ctx, "cert-1", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "3.3.3.3", records[0].IP)

	records, err = auditor.ListAccess(ctx, "cert-1", 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, err = auditor.ListAccess(ctx, "abc123", 10)
	assert.ErrorIs(t, err, domain.ErrCertificateNotFound)
}
