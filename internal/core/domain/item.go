package domain

import "time"

type Item struct {
	ID        int64
	Name      string
	Price     Cents
	CreatedAt time.Time
}
