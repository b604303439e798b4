package domain

import (
	"time"

	"github.com/google/uuid"
)

// Brewery is the tenant that owns users and kegs. Active is advisory: other
// components may consult it, but deactivation restricts nothing by itself.
type Brewery struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
