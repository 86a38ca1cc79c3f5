// Package models holds the entities the service tracks.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusOrdered  = "ORDERED"
	StatusCooking  = "COOKING"
	StatusComplete = "COMPLETE"
)

// Order statuses in lifecycle order.
var OrderStatuses = []string{StatusOrdered, StatusCooking, StatusComplete}

func ValidOrderStatus(status string) bool {
	for _, s := range OrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type PizzaOrder struct {
	ID     int64  `json:"id" history:"pk"`
	Status string `json:"status"`
}

// Pet is not tracked itself; owners track which pet they have.
type Pet struct {
	ID   uuid.UUID `json:"id" history:"pk"`
	Name string    `json:"name"`
}

type Person struct {
	ID        int64   `json:"id" history:"pk"`
	Name      string  `json:"name"`
	CreatedBy *string `json:"created_by"`
}

// HistoryUser attributes a person's history to whoever created the record.
func (p *Person) HistoryUser() (string, bool) {
	if p.CreatedBy == nil {
		return "", false
	}
	return *p.CreatedBy, true
}

// Owner is a Person with a pet. Its name field is inherited from Person.
type Owner struct {
	Person
	Pet *Pet `json:"pet"`
}

type Human struct {
	ID        int64            `json:"id" history:"pk"`
	Age       *int             `json:"age"`
	IsFemale  bool             `json:"is_female"`
	BodyTemp  *decimal.Decimal `json:"body_temp"`
	BirthDate *time.Time       `json:"birth_date"`
}

var (
	PizzaOrderFields = []string{"status"}
	PersonFields     = []string{"name"}
	OwnerFields      = []string{"name", "pet"}
	HumanFields      = []string{"age", "is_female", "body_temp", "birth_date"}
)
