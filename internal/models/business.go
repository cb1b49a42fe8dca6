package models

import "time"

// Business - every record in the ledger belongs to one
type Business struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:150;not null"`
	Currency  string `gorm:"size:3;not null;default:NGN"`
	Phone     string `gorm:"size:30"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Users []User
}
