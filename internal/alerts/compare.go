package alerts

import (
	"fmt"
	"math"
)

const epsilon = 1e-9

// Compare applies a criterion operator to a reading.
func Compare(actual float64, op string, expected float64) (bool, error) {
	switch op {
	case ">":
		return actual > expected, nil
	case ">=":
		return actual >= expected, nil
	case "<":
		return actual < expected, nil
	case "<=":
		return actual <= expected, nil
	case "=", "==":
		return math.Abs(actual-expected) < epsilon, nil
	case "!=", "<>":
		return math.Abs(actual-expected) >= epsilon, nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

// resetSatisfied reports whether a reading has moved back past the reset
// value. Without a reset value the criterion resets once its trigger no
// longer holds.
func resetSatisfied(actual float64, op string, trigger float64, reset *float64) (bool, error) {
	if reset == nil {
		hit, err := Compare(actual, op, trigger)
		return !hit, err
	}
	switch op {
	case ">", ">=":
		return actual < *reset, nil
	case "<", "<=":
		return actual > *reset, nil
	}
	hit, err := Compare(actual, op, trigger)
	return !hit, err
}
