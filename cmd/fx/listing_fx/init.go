package listing_fx

import (
	"go.uber.org/fx"
	"trovi/internal/config"
	"trovi/internal/listings"
)

var Module = fx.Provide(
	provideListingClient)

func provideListingClient(cfg *config.Config) listings.ClientInterface {
	return listings.NewHTTPClient(cfg.ListingServiceURL)
}
