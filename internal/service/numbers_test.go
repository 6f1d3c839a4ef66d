package service

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateTicketNumber(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	pattern := regexp.MustCompile(`^TKT-20260828-[0-9A-F]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		number := GenerateTicketNumber(now)
		assert.Regexp(t, pattern, number)
		assert.False(t, seen[number], "duplicate ticket number %s", number)
		seen[number] = true
	}
}
