package domain

import "time"

// Offering is an auction or offering record sourced from the indexer. The
// listing table renders these in the order the indexer returns them.
type Offering struct {
	ID           string
	Issuer       string
	Name         string
	Size         string
	InterestRate string
	Price        string
	Status       string
	URL          string
	EndsAt       time.Time
}
