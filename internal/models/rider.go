package models

type Rider struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Phone    string   `json:"phone"`
	Location Location `json:"location"`
	// History holds ride identifiers in request order.
	History  []string `json:"history"`
	Discount float64  `json:"discount"`
}

func (r Rider) HasDiscount() bool { return r.Discount > 0 }
