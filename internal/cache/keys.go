package cache

import "fmt"

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}

func DashboardKey() string {
	return "monitor:dashboard"
}

func HealthKey() string {
	return "monitor:health"
}
