// Package tools holds small integer helpers shared across the codec,
// kept from Mowenhao13-FluteGo/pkg/tools/tools.go (trimmed to the
// division helpers this domain actually needs).
package tools

// DivCeil computes ceil(a / b) for non-negative integers.
func DivCeil(a, b uint64) uint64 {
	return (a + b - 1) / b
}

// DivFloor computes floor(a / b) for non-negative integers.
func DivFloor(a, b uint64) uint64 {
	return a / b
}
