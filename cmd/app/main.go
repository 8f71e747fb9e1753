package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"trovi/cmd/fx/db_fx"
	"trovi/cmd/fx/gateway_fx"
	"trovi/cmd/fx/listing_fx"
	"trovi/cmd/fx/notification_fx"
	"trovi/cmd/fx/purchase_fx"
	"trovi/cmd/fx/redis_fx"
	"trovi/cmd/fx/webhook_fx"
	"trovi/internal/api/controllers"
	"trovi/internal/config"
	"trovi/internal/services"
	"trovi/pkg/clock"
	"trovi/pkg/middleware"
)

func main() {
	app := fx.New(
		fx.Provide(config.LoadConfig),
		fx.Provide(provideLogger),
		fx.Provide(clock.NewSystem),

		db_fx.Module,
		redis_fx.Module,
		gateway_fx.Module,
		listing_fx.Module,
		notification_fx.Module,
		purchase_fx.Module,
		webhook_fx.Module,

		fx.Provide(ProvideRouter),
		fx.Invoke(StartWorkers),
		fx.Invoke(StartServer),
	)

	app.Run()
}

func provideLogger() *log.Logger {
	return log.New(os.Stdout, "", log.LstdFlags)
}

func StartWorkers(lc fx.Lifecycle,
	scheduler *services.DeadlineScheduler,
	dispatcher *services.NotificationDispatcher,
	processor *services.WebhookProcessor) {

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			dispatcher.Start(context.Background())
			processor.Start(context.Background())
			// rescans HELD purchases so deadlines survive restarts
			return scheduler.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			scheduler.Stop()
			processor.Stop()
			dispatcher.Stop()
			return nil
		},
	})
}

func StartServer(lc fx.Lifecycle, engine *gin.Engine, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				addr := fmt.Sprintf(":%d", cfg.ServerPort)
				log.Printf("Starting HTTP server at %s", addr)
				if err := engine.Run(addr); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Println("Stopping HTTP server")
			return nil
		},
	})
}

func ProvideRouter(
	purchaseController *controllers.PurchaseController,
	webhookController *controllers.WebhookController) *gin.Engine {

	r := gin.Default()
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.TraceIDMiddleware())

	RegisterRoutes(r, purchaseController, webhookController)

	return r
}

func RegisterRoutes(r *gin.Engine,
	purchaseController *controllers.PurchaseController,
	webhookController *controllers.WebhookController) {

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	purchases := r.Group("/api/purchases")
	purchases.Use(middleware.JWTAuthMiddleware())
	purchases.POST("", purchaseController.CreatePurchase)
	purchases.GET("", purchaseController.ListPurchases)
	purchases.GET("/:id", purchaseController.GetPurchase)
	purchases.POST("/:id/cancel", purchaseController.CancelPurchase)
	purchases.POST("/:id/confirm", purchaseController.ConfirmReceipt)

	webhooks := r.Group("/api/webhooks")
	webhooks.POST("/payments", webhookController.HandlePaymentWebhook)
}
