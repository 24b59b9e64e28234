package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"certificate-guard/internal/domain"
	"certificate-guard/internal/logger"
	"certificate-guard/internal/metrics"
	"certificate-guard/internal/verification"
)

// AuditorConfig reúne os parâmetros do fluxo de auditoria
type AuditorConfig struct {
	// BlockThreshold é o total de acessos (incluindo o atual) que bloqueia o IP
	BlockThreshold int
	// StoreTimeout limita cada chamada ao armazenamento
	StoreTimeout time.Duration
	// BlockCheckFailOpen libera a visualização quando a consulta de bloqueio falha.
	// Só deve ser ligado como aceitação explícita de risco.
	BlockCheckFailOpen bool
	// Async grava a trilha de auditoria depois de devolver a visualização
	Async bool
}

// DefaultAuditorConfig retorna os valores de referência
func DefaultAuditorConfig() AuditorConfig {
	return AuditorConfig{
		BlockThreshold: domain.DefaultBlockThreshold,
		StoreTimeout:   3 * time.Second,
		Async:          true,
	}
}

// CertificateAuditor implementa a visualização pública auditada de certificados
type CertificateAuditor struct {
	store    domain.CertificateStore
	cfg      AuditorConfig
	clock    domain.Clock
	logger   domain.Logger
	validate *validator.Validate
	pending  sync.WaitGroup
}

// NewCertificateAuditor cria o auditor
func NewCertificateAuditor(store domain.CertificateStore, cfg AuditorConfig, clock domain.Clock, log domain.Logger) *CertificateAuditor {
	defaults := DefaultAuditorConfig()
	if cfg.BlockThreshold <= 0 {
		cfg.BlockThreshold = defaults.BlockThreshold
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaults.StoreTimeout
	}
	if log == nil {
		log = logger.Nop{}
	}

	return &CertificateAuditor{
		store:    store,
		cfg:      cfg,
		clock:    clock,
		logger:   log,
		validate: newRequestValidator(),
	}
}

// ViewCertificate resolve o certificado, confere o bloqueio do IP e agenda a auditoria.
// O IP que atinge o limite ainda vê o certificado; o bloqueio vale a partir do próximo acesso.
func (a *CertificateAuditor) ViewCertificate(ctx context.Context, req domain.ViewRequest) (*domain.CertificateView, error) {
	log := a.logger.WithContext(ctx)

	req.Token = strings.TrimSpace(req.Token)
	req.IP = strings.TrimSpace(req.IP)
	req.RequesterEmail = strings.TrimSpace(req.RequesterEmail)

	if err := a.validateRequest(req); err != nil {
		metrics.CertificateViewsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		log.Debug("Invalid certificate view request", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	cert, err := a.findCertificate(ctx, req.Token)
	if err != nil {
		if errors.Is(err, domain.ErrCertificateNotFound) {
			metrics.CertificateViewsTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
			log.Debug("Certificate not found", map[string]interface{}{
				"token": logger.Mask(req.Token),
			})
			return nil, err
		}
		metrics.CertificateViewsTotal.WithLabelValues(metrics.OutcomeUnavailable).Inc()
		log.Error("Failed to resolve certificate", err, map[string]interface{}{
			"operation": "find_certificate",
			"token":     logger.Mask(req.Token),
		})
		return nil, err
	}

	var blocked bool
	err = a.storeCall(ctx, "is_ip_blocked", cert.Token, func(ctx context.Context) error {
		var callErr error
		blocked, callErr = a.store.IsIPBlocked(ctx, cert.ID, req.IP)
		return callErr
	})
	if err != nil {
		if !a.cfg.BlockCheckFailOpen {
			metrics.CertificateViewsTotal.WithLabelValues(metrics.OutcomeUnavailable).Inc()
			log.Error("Block check failed, refusing view", err, map[string]interface{}{
				"operation":      "is_ip_blocked",
				"certificate_id": cert.ID,
				"client_ip":      req.IP,
			})
			return nil, err
		}
		log.Warn("Block check failed, serving view (fail-open)", map[string]interface{}{
			"operation":      "is_ip_blocked",
			"certificate_id": cert.ID,
			"client_ip":      req.IP,
			"error":          err.Error(),
		})
	}

	if blocked {
		metrics.CertificateViewsTotal.WithLabelValues(metrics.OutcomeBlocked).Inc()
		log.Info("Certificate view blocked", map[string]interface{}{
			"certificate_id": cert.ID,
			"client_ip":      req.IP,
		})
		return nil, domain.ErrAccessBlocked
	}

	view := newCertificateView(cert)

	a.dispatch(ctx, func(bg context.Context) {
		a.recordAccess(bg, cert, req)
	})

	metrics.CertificateViewsTotal.WithLabelValues(metrics.OutcomeViewed).Inc()
	return view, nil
}

// VerifyCertificate confere se o hash informado corresponde ao certificado e ao titular.
// O hash esperado nunca é devolvido.
func (a *CertificateAuditor) VerifyCertificate(ctx context.Context, token, holderID, claimedHash string) (bool, error) {
	token = strings.TrimSpace(token)
	holderID = strings.TrimSpace(holderID)

	switch {
	case token == "":
		return false, &domain.ValidationError{Field: "token", Reason: "required"}
	case holderID == "":
		return false, &domain.ValidationError{Field: "holderId", Reason: "required"}
	case strings.TrimSpace(claimedHash) == "":
		return false, &domain.ValidationError{Field: "hash", Reason: "required"}
	}

	cert, err := a.findCertificate(ctx, token)
	if err != nil {
		return false, err
	}

	holderMatches := subtle.ConstantTimeCompare([]byte(cert.HolderID), []byte(holderID)) == 1
	valid := holderMatches && verification.Verify(cert.Token, holderID, claimedHash)

	metrics.RecordVerification(valid)
	a.logger.WithContext(ctx).Info("Certificate verification", map[string]interface{}{
		"certificate_id": cert.ID,
		"valid":          valid,
	})
	return valid, nil
}

// ListBlocks lista os IPs bloqueados de um certificado
func (a *CertificateAuditor) ListBlocks(ctx context.Context, token string) ([]*domain.IPBlock, error) {
	cert, err := a.findCertificate(ctx, token)
	if err != nil {
		return nil, err
	}

	var blocks []*domain.IPBlock
	err = a.storeCall(ctx, "list_ip_blocks", cert.Token, func(ctx context.Context) error {
		var callErr error
		blocks, callErr = a.store.ListIPBlocks(ctx, cert.ID)
		return callErr
	})
	return blocks, err
}

// Unblock remove o bloqueio de um IP para um certificado
func (a *CertificateAuditor) Unblock(ctx context.Context, token, ip string) error {
	cert, err := a.findCertificate(ctx, token)
	if err != nil {
		return err
	}

	err = a.storeCall(ctx, "delete_ip_block", cert.Token, func(ctx context.Context) error {
		return a.store.DeleteIPBlock(ctx, cert.ID, ip)
	})
	if err != nil {
		return err
	}

	a.logger.WithContext(ctx).Info("IP unblocked", map[string]interface{}{
		"certificate_id": cert.ID,
		"client_ip":      ip,
	})
	return nil
}

// InvalidateCertificate remove um certificado; a página pública passa a responder não encontrado.
// Trilha de acessos e bloqueios ficam preservados.
func (a *CertificateAuditor) InvalidateCertificate(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return &domain.ValidationError{Field: "token", Reason: "required"}
	}

	err := a.storeCall(ctx, "delete_certificate", token, func(ctx context.Context) error {
		return a.store.DeleteCertificate(ctx, token)
	})
	if err != nil {
		return err
	}

	a.logger.WithContext(ctx).Info("Certificate invalidated", map[string]interface{}{
		"token": logger.Mask(token),
	})
	return nil
}

// ListAccess lista os acessos mais recentes de um certificado
func (a *CertificateAuditor) ListAccess(ctx context.Context, token string, limit int) ([]*domain.AccessAuditRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	cert, err := a.findCertificate(ctx, token)
	if err != nil {
		return nil, err
	}

	var records []*domain.AccessAuditRecord
	err = a.storeCall(ctx, "list_access_records", cert.Token, func(ctx context.Context) error {
		var callErr error
		records, callErr = a.store.ListAccessRecords(ctx, cert.ID, limit)
		return callErr
	})
	return records, err
}

// Drain aguarda as gravações de auditoria pendentes
func (a *CertificateAuditor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recordAccess grava o acesso, recontabiliza e bloqueia o IP se o limite foi atingido.
// Falhas aqui nunca chegam ao chamador.
func (a *CertificateAuditor) recordAccess(ctx context.Context, cert *domain.Certificate, req domain.ViewRequest) {
	log := a.logger.WithContext(ctx)
	fields := map[string]interface{}{
		"certificate_id": cert.ID,
		"client_ip":      req.IP,
	}

	record := &domain.AccessAuditRecord{
		CertificateID:  cert.ID,
		IP:             req.IP,
		RequesterEmail: req.RequesterEmail,
		AccessedAt:     a.clock.Now(),
	}
	err := a.storeCall(ctx, "create_access_record", cert.Token, func(ctx context.Context) error {
		return a.store.CreateAccessRecord(ctx, record)
	})
	if err != nil {
		metrics.AuditFailuresTotal.WithLabelValues("create_access_record").Inc()
		log.Error("Failed to record certificate access", err, fields)
		return
	}

	var count int64
	err = a.storeCall(ctx, "count_access_records", cert.Token, func(ctx context.Context) error {
		var callErr error
		count, callErr = a.store.CountAccessRecords(ctx, cert.ID, req.IP)
		return callErr
	})
	if err != nil {
		metrics.AuditFailuresTotal.WithLabelValues("count_access_records").Inc()
		log.Error("Failed to count certificate accesses", err, fields)
		return
	}

	if count < int64(a.cfg.BlockThreshold) {
		log.Debug("Certificate access recorded", map[string]interface{}{
			"certificate_id": cert.ID,
			"client_ip":      req.IP,
			"access_count":   count,
		})
		return
	}

	block := &domain.IPBlock{
		CertificateID: cert.ID,
		IP:            req.IP,
		BlockedAt:     a.clock.Now(),
	}
	err = a.storeCall(ctx, "upsert_ip_block", cert.Token, func(ctx context.Context) error {
		return a.store.UpsertIPBlock(ctx, block)
	})
	if err != nil {
		metrics.AuditFailuresTotal.WithLabelValues("upsert_ip_block").Inc()
		log.Error("Failed to block IP", err, fields)
		return
	}

	metrics.IPBlocksTotal.Inc()
	log.Warn("IP blocked for certificate", map[string]interface{}{
		"certificate_id": cert.ID,
		"client_ip":      req.IP,
		"access_count":   count,
		"threshold":      a.cfg.BlockThreshold,
	})
}

// dispatch executa fn fora do ciclo de vida da requisição
func (a *CertificateAuditor) dispatch(ctx context.Context, fn func(context.Context)) {
	bg := context.WithoutCancel(ctx)
	if !a.cfg.Async {
		fn(bg)
		return
	}

	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		fn(bg)
	}()
}

// findCertificate busca o certificado pelo token com timeout
func (a *CertificateAuditor) findCertificate(ctx context.Context, token string) (*domain.Certificate, error) {
	var cert *domain.Certificate
	err := a.storeCall(ctx, "find_certificate", token, func(ctx context.Context) error {
		var callErr error
		cert, callErr = a.store.FindCertificateByToken(ctx, token)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// storeCall aplica o timeout e converte falhas de infraestrutura em StoreError
func (a *CertificateAuditor) storeCall(ctx context.Context, op, token string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err == nil || isDomainError(err) {
		return err
	}
	return &domain.StoreError{Op: op, Token: logger.Mask(token), Err: err}
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrCertificateNotFound) ||
		errors.Is(err, domain.ErrBlockNotFound) ||
		errors.Is(err, domain.ErrStoreUnavailable)
}

// validateRequest traduz os erros do validator para ValidationError
func (a *CertificateAuditor) validateRequest(req domain.ViewRequest) error {
	err := a.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return &domain.ValidationError{Field: fe.Field(), Reason: fe.Tag()}
	}
	return &domain.ValidationError{Field: "request", Reason: err.Error()}
}

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(field.Name)
		}
		return name
	})
	_ = v.RegisterValidation("ip_or_unknown", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return value == domain.UnknownIdentity || net.ParseIP(value) != nil
	})
	return v
}

func newCertificateView(cert *domain.Certificate) *domain.CertificateView {
	hash := verification.ComputeHash(cert.Token, cert.HolderID)
	return &domain.CertificateView{
		Token:       cert.Token,
		HolderName:  cert.HolderName,
		CourseTitle: cert.CourseTitle,
		IssuerName:  cert.IssuerName,
		IssuedAt:    cert.IssuedAt,
		HashPrefix:  verification.Prefix(hash, domain.HashPrefixLength),
	}
}
