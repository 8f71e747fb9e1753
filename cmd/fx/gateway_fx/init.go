package gateway_fx

import (
	"go.uber.org/fx"
	"trovi/internal/config"
	"trovi/internal/gateway"
)

var Module = fx.Provide(
	provideGateway)

func provideGateway(cfg *config.Config) (gateway.PaymentGatewayInterface, error) {
	return gateway.NewPayOSGateway(gateway.PayOSConfig{
		ClientID:     cfg.PayOSClientID,
		ApiKey:       cfg.PayOSAPIKey,
		ChecksumKey:  cfg.PayOSChecksumKey,
		ReturnURL:    cfg.PayOSReturnURL,
		CancelURL:    cfg.PayOSCancelURL,
		ProviderName: "payos",
	})
}
