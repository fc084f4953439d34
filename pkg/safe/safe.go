// Package safe provides overflow-checked integer arithmetic for ledger values.
package safe

// Add returns a+b. ok is false when the sum exceeds limit or wraps.
func Add(a, b, limit uint64) (sum uint64, ok bool) {
	if a > limit || b > limit-a {
		return 0, false
	}
	return a + b, true
}

// Sub returns a-b. ok is false when b > a.
func Sub(a, b uint64) (diff uint64, ok bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}

// Inc returns v+1 bounded by limit.
func Inc(v, limit uint64) (uint64, bool) {
	return Add(v, 1, limit)
}
