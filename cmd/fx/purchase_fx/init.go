package purchase_fx

import (
	"log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"trovi/internal/api/controllers"
	"trovi/internal/config"
	"trovi/internal/gateway"
	"trovi/internal/listings"
	"trovi/internal/repositories"
	"trovi/internal/services"
	"trovi/pkg/clock"
)

var Module = fx.Provide(
	providePurchaseRepository,
	provideRefundJobRepository,
	provideDedupeRepository,
	provideReconciler,
	provideScheduler,
	providePurchaseService,
	controllers.NewPurchaseController,
)

func providePurchaseRepository(db *gorm.DB) repositories.PurchaseRepositoryInterface {
	return repositories.NewPurchaseRepository(db)
}

func provideRefundJobRepository(db *gorm.DB) repositories.RefundJobRepositoryInterface {
	return repositories.NewRefundJobRepository(db)
}

func provideDedupeRepository(client *redis.Client, cfg *config.Config) repositories.WebhookDedupeRepositoryInterface {
	return repositories.NewWebhookDedupeRepository(client, cfg.WebhookDedupeTTL)
}

func provideReconciler(
	purchaseRepo repositories.PurchaseRepositoryInterface,
	refundJobs repositories.RefundJobRepositoryInterface,
	gw gateway.PaymentGatewayInterface,
	queue *services.EventQueue,
	clk clock.Clock,
) services.CancellationReconcilerInterface {
	return services.NewCancellationReconciler(purchaseRepo, refundJobs, gw, queue, clk)
}

func provideScheduler(
	purchaseRepo repositories.PurchaseRepositoryInterface,
	refundJobs repositories.RefundJobRepositoryInterface,
	reconciler services.CancellationReconcilerInterface,
	gw gateway.PaymentGatewayInterface,
	clk clock.Clock,
	cfg *config.Config,
	logger *log.Logger,
) *services.DeadlineScheduler {
	return services.NewDeadlineScheduler(purchaseRepo, refundJobs, reconciler, gw, clk, services.SchedulerConfig{
		RefundRetryBase: cfg.RefundRetryBase,
		RefundRetryCap:  cfg.RefundRetryCap,
		RefundMaxTries:  cfg.RefundMaxTries,
	}, logger)
}

func providePurchaseService(
	purchaseRepo repositories.PurchaseRepositoryInterface,
	dedupe repositories.WebhookDedupeRepositoryInterface,
	gw gateway.PaymentGatewayInterface,
	listingClient listings.ClientInterface,
	reconciler services.CancellationReconcilerInterface,
	scheduler *services.DeadlineScheduler,
	queue *services.EventQueue,
	clk clock.Clock,
	cfg *config.Config,
) services.PurchaseServiceInterface {
	return services.NewPurchaseService(purchaseRepo, dedupe, gw, listingClient, reconciler,
		scheduler, queue, clk, "payos", cfg.VerificationWindow)
}
