package httputil

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Limit bounds for list endpoints.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ParseLimit safely parses and validates the limit query parameter.
// It defaults to 50 and cannot exceed 100.
func ParseLimit(c *gin.Context) (int, error) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))
	if err != nil || limit < 1 || limit > MaxLimit {
		return 0, fmt.Errorf("invalid limit parameter: must be between 1 and %d", MaxLimit)
	}
	return limit, nil
}
