package models

import (
	"errors"
	"fmt"
	"strings"
)

type Category string

const (
	CategoryCompact Category = "compact"
	CategorySedan   Category = "sedan"
	CategorySUV     Category = "suv"
	CategoryAuto    Category = "auto"
)

var ErrUnknownCategory = errors.New("unknown vehicle category")

func (c Category) Valid() bool {
	switch c {
	case CategoryCompact, CategorySedan, CategorySUV, CategoryAuto:
		return true
	}
	return false
}

// ParseCategory accepts the category names case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Vehicle is immutable once created and belongs to exactly one driver.
type Vehicle struct {
	Plate       string   `json:"plate"`
	Category    Category `json:"category"`
	Capacity    int      `json:"capacity"`
	FarePerUnit float64  `json:"fare_per_unit"`
}

func (v Vehicle) Validate() error {
	var errs []error
	if strings.TrimSpace(v.Plate) == "" {
		errs = append(errs, errors.New("vehicle plate is required"))
	}
	if !v.Category.Valid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownCategory, v.Category))
	}
	if v.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("vehicle capacity must be > 0, got %d", v.Capacity))
	}
	if v.FarePerUnit <= 0 {
		errs = append(errs, fmt.Errorf("vehicle fare rate must be > 0, got %v", v.FarePerUnit))
	}
	return errors.Join(errs...)
}
