package models

// Actor - who is performing a write, taken from the JWT
type Actor struct {
	UserID     uint
	UserName   string
	BusinessID uint
	Role       UserRole
}
