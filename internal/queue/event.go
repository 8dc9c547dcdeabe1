// Package queue defines the city.created event and the RabbitMQ publisher
// and consumer that carry it.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/sakila-city-api/internal/model"
)

// CityCreatedEvent is published after a city row is committed. It carries
// enough for downstream consumers to log or index the city without reading
// the primary database.
type CityCreatedEvent struct {
	EventID   string `json:"event_id"`
	CityID    int64  `json:"city_id"`
	CityName  string `json:"city_name"`
	CountryID int64  `json:"country_id"`
	CreatedAt string `json:"created_at"`
}

func NewCityCreatedEvent(c model.City) CityCreatedEvent {
	return CityCreatedEvent{
		EventID:   uuid.NewString(),
		CityID:    c.ID,
		CityName:  c.Name,
		CountryID: c.CountryID,
		CreatedAt: c.LastUpdate.UTC().Format(time.RFC3339),
	}
}
