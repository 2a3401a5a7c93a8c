package server

import (
	"context"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"

	"github.com/cryptogift-wallets/giftclaim/pkg/logger"
)

func (s *Server) healthCheckHandler() http.HandlerFunc {
	checks := []health.CheckerOption{
		health.WithCacheDuration(s.opts.HealthCacheDuration),
		health.WithTimeout(10 * time.Second),
		health.WithStatusListener(func(ctx context.Context, state health.CheckerState) {
			s.logger.NoticeWith(logger.HTTP, "Health status changed to %s", state.Status)
		}),
	}
	if s.transport != nil {
		checks = append(checks, health.WithCheck(health.Check{
			Name: "rpc",
			Check: func(ctx context.Context) error {
				_, err := s.transport.BlockNumber(ctx)
				return err
			},
		}))
	}
	if s.backend != nil {
		checks = append(checks, health.WithCheck(health.Check{
			Name:  "backend",
			Check: s.backend.Ping,
		}))
	}

	return health.NewHandler(health.NewChecker(checks...))
}
