package cache

import "fmt"

// RequestStatusKey is the mirror key for a request's last written status.
func RequestStatusKey(requestID string) string {
	return fmt.Sprintf("job:%s", requestID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
