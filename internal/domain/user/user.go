package user

import (
	"errors"
	"time"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already exists")
	ErrCityNotFound = errors.New("city does not exist")
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Role         string    `json:"role"`
	Age          int       `json:"age"`
	CityID       string    `json:"city"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CityRef is the resolved city shape returned on list endpoints.
type CityRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WithCity is a user joined with its city reference. The outer City field
// shadows the embedded CityID under the "city" key.
type WithCity struct {
	User
	City CityRef `json:"city"`
}

// CityGroup is one entry of the users-by-city aggregate.
type CityGroup struct {
	City  string        `json:"city"`
	Users []GroupMember `json:"users"`
}

type GroupMember struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   int    `json:"age"`
}
