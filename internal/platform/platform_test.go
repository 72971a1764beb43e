package platform_test

import (
	"context"
	"time"

	"ordersync/internal/models"
)

// staticTokens hands out one fixed token; the real lifecycle is covered by the
// creds package tests.
type staticTokens struct {
	token string
	err   error
	calls int
}

func (s *staticTokens) ValidToken(ctx context.Context, platform models.Platform) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

var testClock = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
