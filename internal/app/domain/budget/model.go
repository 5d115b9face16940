package budget

import "time"

// Budget is a named spending envelope owned by one user. Names are unique per
// user; Amount is positive with two decimal places and at most eleven digits
// before the point.
type Budget struct {
	ID        string
	UserID    string
	Name      string
	Amount    float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MaxAmount bounds budget and expense amounts (eleven integer digits).
const MaxAmount = 99999999999
