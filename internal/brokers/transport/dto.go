package transport

import (
	"time"

	"github.com/google/uuid"
)

type CreateBrokerRequest struct {
	UserID        uuid.UUID `json:"userId" validate:"required"`
	DisplayName   string    `json:"displayName" validate:"required,min=1,max=200"`
	Email         string    `json:"email" validate:"required,email,max=320"`
	Phone         string    `json:"phone,omitempty" validate:"omitempty,max=32"`
	Active        bool      `json:"active"`
	DirectoryRank int       `json:"directoryRank" validate:"gte=0"`
	Territories   []string  `json:"territories" validate:"omitempty,max=50,dive,territory"`
}

type ReplaceTerritoriesRequest struct {
	Territories []string `json:"territories" validate:"max=50,dive,territory"`
}

type UpdateStatusRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type BrokerResponse struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"userId"`
	DisplayName   string     `json:"displayName"`
	Email         string     `json:"email"`
	Phone         *string    `json:"phone,omitempty"`
	Active        bool       `json:"active"`
	ApprovedAt    *time.Time `json:"approvedAt,omitempty"`
	DirectoryRank int        `json:"directoryRank"`
	Territories   []string   `json:"territories"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type BrokerListResponse struct {
	Items []BrokerResponse `json:"items"`
}
