package model

import (
	"github.com/google/uuid"
)

// Question represents a single writing prompt in a marathon.
type Question struct {
	ID         uuid.UUID `json:"id"`
	MarathonID uuid.UUID `json:"marathon_id"`
	Prompt     string    `json:"prompt"`
	OrderNum   int       `json:"order_num"`
}
