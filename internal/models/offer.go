package models

// Offer is a promotion shown to every shopper.
type Offer struct {
	ID          int64  `json:"offerId" db:"id"`
	Title       string `json:"title" db:"title" validate:"required"`
	Description string `json:"description" db:"description"`
	ImageURL    string `json:"imageUrl" db:"image_url"`
}
