package models

// DirectKey is the canonical pair key for a direct thread between a and b.
// It does not depend on argument order.
func DirectKey(a, b string) string {
	lo, hi := OrderPair(a, b)
	return "dm:" + lo + ":" + hi
}

// OrderPair returns the two ids lexicographically ordered.
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// RoomName is the dispatcher room identifier for a thread.
func RoomName(threadID string) string {
	return "thread:" + threadID
}
