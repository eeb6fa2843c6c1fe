package shared

import "fmt"

// ═══════════════════════════════════════════════════════════════════════════
// Percentage Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Percentage is a whole-number percentage in [0, 100].
type Percentage int

const (
	MinPercentage Percentage = 0
	MaxPercentage Percentage = 100
)

// IsValid checks if the percentage is within valid range.
func (p Percentage) IsValid() bool {
	return p >= MinPercentage && p <= MaxPercentage
}

// Clamp forces the value into [0, 100].
func (p Percentage) Clamp() Percentage {
	if p < MinPercentage {
		return MinPercentage
	}
	if p > MaxPercentage {
		return MaxPercentage
	}
	return p
}

// Int returns the underlying int value.
func (p Percentage) Int() int {
	return int(p)
}

// String returns the string representation, e.g. "75%".
func (p Percentage) String() string {
	return fmt.Sprintf("%d%%", int(p))
}

// RatioPercentage returns part/total*100 rounded half up.
// A zero or negative total yields 0.
func RatioPercentage(part, total int) Percentage {
	if total <= 0 || part <= 0 {
		return MinPercentage
	}
	return Percentage((part*200 + total) / (2 * total)).Clamp()
}
