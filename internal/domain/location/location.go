package location

import (
	"errors"
	"time"
)

// The reference hierarchy is read-only from the API's perspective;
// the seeder is the only writer.

var (
	ErrCountryNotFound = errors.New("country not found")
	ErrStateNotFound   = errors.New("state not found")
	ErrCityNotFound    = errors.New("city not found")
)

type Country struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type State struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CountryID string    `json:"country"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type City struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StateID   string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
