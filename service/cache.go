package service

import (
	"github.com/saiset-co/sai-request-cache/cache"
	"github.com/saiset-co/sai-request-cache/client"
	"github.com/saiset-co/sai-request-cache/health"
	"github.com/saiset-co/sai-request-cache/types"
)

// NewRequestCache builds a cache that decodes JSON bodies into V through the
// service HTTP client. An empty name falls back to cache.name from config.
func NewRequestCache[V any](s *Service, name string) (*cache.RequestCache[V], error) {
	c := cache.NewRequestCache[V](s.logger, s.metrics, s.cacheConfig(name))
	if err := c.SetTransport(client.NewJSONTransport[V](s.client)); err != nil {
		return nil, err
	}
	s.health.RegisterChecker("cache."+c.Name(), health.CacheChecker(c))
	return c, nil
}

// NewResponseCache builds a cache storing raw responses of the service HTTP
// client.
func NewResponseCache(s *Service, name string) (*cache.RequestCache[*types.Response], error) {
	c := cache.NewRequestCache[*types.Response](s.logger, s.metrics, s.cacheConfig(name))
	if err := c.SetTransport(s.client); err != nil {
		return nil, err
	}
	s.health.RegisterChecker("cache."+c.Name(), health.CacheChecker(c))
	return c, nil
}

func (s *Service) cacheConfig(name string) *types.CacheConfig {
	cacheConfig := types.CacheConfig{}
	if configured := s.config.GetConfig().Cache; configured != nil {
		cacheConfig = *configured
	}
	if name != "" {
		cacheConfig.Name = name
	}
	return &cacheConfig
}
