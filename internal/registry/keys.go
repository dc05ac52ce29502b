package registry

import "fmt"

// ConnectionsKey is the hash holding connection id -> registration time.
const ConnectionsKey = "ws:connections"

func RateLimitKey(scope, subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, subject)
}
