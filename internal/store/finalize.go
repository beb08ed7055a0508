package store

import "krishikendra/backend/internal/domain"

// FinalizeSale computes subtotal, total and profit from the resolved line
// items and normalizes the pending amount against the payment status. Both
// repository implementations run it inside the sale-creation transaction so
// a violated financial invariant aborts the whole commit.
func FinalizeSale(sale *domain.Sale) error {
	var subtotal, cost int64
	for i := range sale.Items {
		item := &sale.Items[i]
		item.TotalPrice = item.PricePerUnit * int64(item.Quantity)
		subtotal += item.TotalPrice
		cost += item.CostPerUnit * int64(item.Quantity)
	}

	sale.Subtotal = subtotal
	sale.TotalAmount = subtotal + sale.Tax - sale.Discount
	if sale.TotalAmount < 0 {
		return Invalid("discount", "exceeds subtotal plus tax")
	}
	sale.Profit = sale.TotalAmount - cost

	pending, err := NormalizePending(sale.PaymentStatus, sale.PendingAmount, sale.TotalAmount)
	if err != nil {
		return err
	}
	sale.PendingAmount = pending
	return nil
}

// NormalizePending enforces that the pending amount is zero exactly when the
// status is paid, and within [0, total] otherwise.
func NormalizePending(status string, pending, total int64) (int64, error) {
	switch status {
	case domain.PaymentStatusPaid:
		return 0, nil
	case domain.PaymentStatusPartial, domain.PaymentStatusPending:
		if pending < 0 || pending > total {
			return 0, Invalid("pendingAmount", "must be between 0 and totalAmount")
		}
		return pending, nil
	default:
		return 0, Invalid("paymentStatus", "must be paid, partial or pending")
	}
}
