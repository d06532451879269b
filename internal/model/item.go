package model

import "time"

// WeightUnits is the set of accepted weight units.
var WeightUnits = map[string]bool{
	"lbs": true,
	"kg":  true,
	"oz":  true,
	"g":   true,
	"lb":  true,
}

type Item struct {
	ID          int64      `json:"id"`
	ListID      int64      `json:"listId"`
	Name        string     `json:"name"`
	Quantity    int        `json:"quantity"`
	Weight      *float64   `json:"weight"`
	WeightUnit  *string    `json:"weightUnit"`
	Purchased   bool       `json:"purchased"`
	PurchasedBy *int64     `json:"purchasedBy"`
	PurchasedAt *time.Time `json:"purchasedAt"`
	AddedBy     *int64     `json:"addedBy"`
	AddedByName string     `json:"addedByName,omitempty"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
