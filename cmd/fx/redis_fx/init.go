package redis_fx

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"trovi/internal/config"
	"trovi/internal/infra"
)

var Module = fx.Provide(
	provideRedis)

func provideRedis(cfg *config.Config) (*redis.Client, error) {
	return infra.InitRedis(cfg)
}
