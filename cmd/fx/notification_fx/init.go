package notification_fx

import (
	"log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"trovi/internal/listings"
	"trovi/internal/services"
)

var Module = fx.Provide(
	provideEventQueue, providePublisher, provideDispatcher,
)

func provideEventQueue() *services.EventQueue {
	return services.NewEventQueue(256)
}

func providePublisher(redisClient *redis.Client) services.Publisher {
	return services.NewRedisPublisher(redisClient)
}

func provideDispatcher(queue *services.EventQueue, publisher services.Publisher,
	listingClient listings.ClientInterface, logger *log.Logger) *services.NotificationDispatcher {
	return services.NewNotificationDispatcher(queue, publisher, listingClient, logger)
}
