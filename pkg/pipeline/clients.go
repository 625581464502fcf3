package pipeline

import (
	"feedharvest/pkg/config"
	"feedharvest/pkg/facebook"
	"feedharvest/pkg/instagram"
	"feedharvest/pkg/logger"
	"feedharvest/pkg/vault"
)

// liveClients builds the real platform clients from configuration
type liveClients struct {
	instagram config.PlatformConfig
	facebook  config.PlatformConfig
}

// NewClientFactory returns a factory for the production clients
func NewClientFactory(cfg *config.Config) ClientFactory {
	return &liveClients{
		instagram: cfg.Instagram,
		facebook:  cfg.Facebook,
	}
}

func (f *liveClients) Instagram(cookies vault.Cookies, log logger.Logger) InstagramSource {
	return instagram.NewClient(instagram.Options{
		Cookies: cookies,
		Config:  f.instagram,
		Logger:  log,
	})
}

func (f *liveClients) Facebook(cookies vault.Cookies, log logger.Logger) FacebookSource {
	return facebook.NewClient(facebook.Options{
		Cookies: cookies,
		Config:  f.facebook,
		Logger:  log,
	})
}
