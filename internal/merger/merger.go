// Package merger consolidates orders bound for the same merchant.
package merger

import (
	"slices"
	"sort"

	"marketplace-checkout/internal/domain"
)

// Merge returns orders sorted by merchant id with every run of orders sharing
// a resolved merchant folded into the first order of the run. Orders with an
// unresolved merchant are kept as-is. The first order of each run is mutated
// in place; the input slice itself is not reordered.
func Merge(orders []*domain.Order) []*domain.Order {
	sorted := slices.Clone(orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MerchantID < sorted[j].MerchantID
	})

	var redundant []int
	head := 0
	for i := 1; i < len(sorted); i++ {
		if !mergeable(sorted[i-1], sorted[i]) {
			sorted = dropDescending(sorted, redundant)
			i -= len(redundant)
			redundant = redundant[:0]
			head = i
			continue
		}
		mergeInto(sorted[head], sorted[i])
		redundant = append(redundant, i)
	}
	return dropDescending(sorted, redundant)
}

func mergeable(a, b *domain.Order) bool {
	return a.HasResolvedMerchant() && b.HasResolvedMerchant() && a.MerchantID == b.MerchantID
}

// dropDescending removes the given ascending indexes starting from the last
// so earlier indexes stay valid.
func dropDescending(orders []*domain.Order, indexes []int) []*domain.Order {
	for i := len(indexes) - 1; i >= 0; i-- {
		idx := indexes[i]
		orders = slices.Delete(orders, idx, idx+1)
	}
	return orders
}

func mergeInto(dst, src *domain.Order) {
	subtotal, discount := src.Subtotal, src.DiscountAmount
	for _, line := range src.Lines {
		idx := lineIndex(dst.Lines, line.OfferingRef)
		if idx < 0 {
			dst.Lines = append(dst.Lines, line)
			continue
		}
		existing := &dst.Lines[idx]
		a, errA := existing.Quantity.Int64()
		b, errB := line.Quantity.Int64()
		if errA != nil || errB != nil {
			// unparseable quantity: keep the line we already have and drop
			// the other one from the order totals
			subtotal = subtotal.Sub(line.Subtotal)
			discount = discount.Sub(line.Discount)
			continue
		}
		existing.Quantity = domain.Quantity(a + b)
		existing.Subtotal = existing.Subtotal.Add(line.Subtotal)
		existing.Discount = existing.Discount.Add(line.Discount)
	}
	dst.Subtotal = dst.Subtotal.Add(subtotal)
	dst.Tax = dst.Tax.Add(src.Tax)
	dst.Tip = dst.Tip.Add(src.Tip)
	dst.DiscountAmount = dst.DiscountAmount.Add(discount)
}

func lineIndex(lines []domain.LineItem, offeringRef string) int {
	for i, line := range lines {
		if line.OfferingRef == offeringRef {
			return i
		}
	}
	return -1
}
