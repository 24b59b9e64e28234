package repository

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"certificate-guard/internal/domain"
)

// CachedCertificateStore guarda em cache a busca de certificado por token.
// Bloqueios e trilha de acessos nunca passam pelo cache. Remoções feitas por
// outro processo só aparecem depois do TTL.
type CachedCertificateStore struct {
	domain.CertificateStore
	cache *ttlcache.Cache[string, domain.Certificate]
}

// NewCachedCertificateStore envolve store com um cache de TTL fixo
func NewCachedCertificateStore(store domain.CertificateStore, ttl time.Duration) *CachedCertificateStore {
	cache := ttlcache.New[string, domain.Certificate](
		ttlcache.WithTTL[string, domain.Certificate](ttl),
	)
	go cache.Start()

	return &CachedCertificateStore{
		CertificateStore: store,
		cache:            cache,
	}
}

func (c *CachedCertificateStore) FindCertificateByToken(ctx context.Context, token string) (*domain.Certificate, error) {
	if item := c.cache.Get(token); item != nil {
		cert := item.Value()
		return &cert, nil
	}

	cert, err := c.CertificateStore.FindCertificateByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	c.cache.Set(token, *cert, ttlcache.DefaultTTL)
	return cert, nil
}

// DeleteCertificate remove o certificado do banco e do cache.
// O cache é limpo mesmo se a remoção falhar, para forçar uma nova leitura.
func (c *CachedCertificateStore) DeleteCertificate(ctx context.Context, token string) error {
	defer c.cache.Delete(token)
	return c.CertificateStore.DeleteCertificate(ctx, token)
}

// Len retorna a quantidade de certificados em cache
func (c *CachedCertificateStore) Len() int {
	return c.cache.Len()
}

// Stop encerra a limpeza periódica do cache
func (c *CachedCertificateStore) Stop() {
	c.cache.Stop()
}
