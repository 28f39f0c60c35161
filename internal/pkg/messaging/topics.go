package messaging

import (
	"fmt"
	"strconv"
	"strings"
)

// RetryTopic names the n-th retry destination of base, counting from 0.
func RetryTopic(base string, n int) string {
	return fmt.Sprintf("%s-retry-%d", base, n)
}

// DeadLetterTopic is where records land once their retries are exhausted.
func DeadLetterTopic(base string) string {
	return base + "-retry-dlt"
}

// InvalidTopic receives records that are structurally unprocessable.
func InvalidTopic(base string) string {
	return base + "-dlt-invalid"
}

// RetryIndex reports which retry destination of base topic is, if any.
func RetryIndex(base, topic string) (int, bool) {
	rest, ok := strings.CutPrefix(topic, base+"-retry-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Attempt is the 1-based delivery count of a record found on topic: the
// base topic is the first attempt, retry n the (n+2)-th.
func Attempt(base, topic string) int {
	if n, ok := RetryIndex(base, topic); ok {
		return n + 2
	}
	return 1
}
