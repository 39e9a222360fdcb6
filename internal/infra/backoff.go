package infra

import "time"

const (
	backoffBase = time.Second
	backoffMax  = 60 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given retry count:
// 1s doubling per retry, capped at 60s.
func CalculateBackoff(retry int) time.Duration {
	if retry <= 0 {
		return backoffBase
	}
	if retry >= 6 {
		return backoffMax
	}
	d := backoffBase << uint(retry)
	if d > backoffMax {
		return backoffMax
	}
	return d
}
