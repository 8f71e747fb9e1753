package webhook_fx

import (
	"log"

	"go.uber.org/fx"
	"trovi/internal/api/controllers"
	"trovi/internal/services"
)

var Module = fx.Provide(
	provideProcessor,
	controllers.NewWebhookController,
)

func provideProcessor(purchases services.PurchaseServiceInterface, logger *log.Logger) *services.WebhookProcessor {
	return services.NewWebhookProcessor(purchases, logger)
}
