package domain

import "time"

// CustomerLink remembers which remote customer id belongs to a storefront
// identity after a "customer already exists" conflict was resolved.
type CustomerLink struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	IdentityKey string    `gorm:"size:160;not null;uniqueIndex" json:"-"`
	CustomerID  string    `gorm:"size:128;not null" json:"customer_id"`
	ExpiresAt   time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
