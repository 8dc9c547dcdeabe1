// Package service holds the write-side orchestration that sits between the
// HTTP handlers and the repositories.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/sakila-city-api/internal/metrics"
	"github.com/iliyamo/sakila-city-api/internal/model"
	"github.com/iliyamo/sakila-city-api/internal/queue"
	"github.com/iliyamo/sakila-city-api/internal/repository"
)

// CitiesRoute is the route whose cached responses a new city makes stale.
const CitiesRoute = "/cities"

// Invalidator drops cached responses for routes.
type Invalidator interface {
	Invalidate(ctx context.Context, routes ...string) error
}

type CityService struct {
	publisher queue.Publisher
	cache     Invalidator
	now       func() time.Time
}

func NewCityService(publisher queue.Publisher, cache Invalidator) *CityService {
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	return &CityService{
		publisher: publisher,
		cache:     cache,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create checks that the country exists, assigns the next city id and
// inserts the row. The id read and the insert are separate statements with
// no lock between them, so concurrent creates can pick the same id; the
// loser gets the store's duplicate key error.
//
// repository.ErrCountryNotFound is returned for an unknown country. Cache
// invalidation and event publication happen after the insert and never
// fail the call.
func (s *CityService) Create(ctx context.Context, db repository.DBTX, name string, countryID int64) (*model.City, error) {
	if _, err := repository.NewCountryRepo(db).GetByID(ctx, countryID); err != nil {
		return nil, err
	}

	cities := repository.NewCityRepo(db)
	id, err := cities.NextID(ctx)
	if err != nil {
		return nil, err
	}

	city := &model.City{ID: id, Name: name, CountryID: countryID, LastUpdate: s.now()}
	if err := cities.Create(ctx, city); err != nil {
		return nil, err
	}
	metrics.CitiesCreated.Inc()

	log := zerolog.Ctx(ctx)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, CitiesRoute); err != nil {
			log.Warn().Err(err).Msg("invalidate city cache")
		}
	}
	if err := s.publisher.PublishCityCreated(ctx, queue.NewCityCreatedEvent(*city)); err != nil {
		log.Warn().Err(err).Int64("city_id", city.ID).Msg("publish city.created")
	}
	return city, nil
}
