package service

import "resto-platform/internal/models"

// DiscountAmount computes the absolute discount a promotion grants on a
// price. FIXED values are capped at the price itself; PERCENTAGE values
// are a share of the price, truncated to whole units.
func DiscountAmount(price int64, p models.Promotion) int64 {
	switch p.DiscountType {
	case models.DiscountFixed:
		if p.DiscountValue > price {
			return price
		}
		return p.DiscountValue
	case models.DiscountPercentage:
		return price * p.DiscountValue / 100
	default:
		return 0
	}
}

// BestPrice returns the effective price after applying the single best
// applicable promotion. The result is never worse than any individual
// discount and never below zero.
func BestPrice(price int64, promos []models.Promotion) int64 {
	var best int64
	for _, p := range promos {
		if d := DiscountAmount(price, p); d > best {
			best = d
		}
	}

	effective := price - best
	if effective < 0 {
		return 0
	}
	return effective
}
