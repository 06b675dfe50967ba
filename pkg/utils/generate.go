package utils

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// ==================== PAYMENT REFERENCE ====================

// GenerateReference creates a gateway reference for one charge attempt.
// Format: TH-YYYYMMDD-HHMMSS-<booking prefix>-RANDOM
func GenerateReference(bookingID string) string {
	now := time.Now().UTC()
	prefix := strings.ReplaceAll(bookingID, "-", "")
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("TH-%s-%s-%s-%06d",
		now.Format("20060102"), now.Format("150405"), strings.ToUpper(prefix), rand.IntN(1000000))
}

// ParseInt converts string to int with default value
func ParseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}

	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	if result < 1 {
		return defaultValue
	}

	return result
}
