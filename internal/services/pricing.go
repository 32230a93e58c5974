package services

import "github.com/chatcart-io/chatcart-backend/internal/models"

// LinePrice computes the price of one cart line: the product base price plus
// the modifier of each variant option whose label was selected. Pure function
// of current data; callers always recompute, never reuse a cached subtotal.
func LinePrice(product *models.Product, selectedLabels []string) float64 {
	price := product.BasePrice

	selected := make(map[string]bool, len(selectedLabels))
	for _, label := range selectedLabels {
		selected[label] = true
	}

	for _, group := range product.VariantGroups {
		for _, option := range group.Options {
			if selected[option.Label] {
				price += option.PriceModifier
			}
		}
	}

	return price
}

// CartTotal sums the line subtotals of a cart.
func CartTotal(lines []models.CartLine) float64 {
	total := 0.0
	for _, line := range lines {
		total += line.Subtotal
	}
	return total
}
