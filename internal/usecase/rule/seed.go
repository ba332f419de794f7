package rule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docreview/internal/domain"
	domrule "github.com/kailas-cloud/docreview/internal/domain/rule"
)

// Seed loads a JSON array of rule inputs and saves those whose title is not taken yet.
// Returns the number of rules created.
func (s *Service) Seed(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var inputs []domrule.Input
	if err := json.Unmarshal(data, &inputs); err != nil {
		return 0, domain.NewValidation("seed", err.Error())
	}
	return s.SeedInputs(ctx, inputs)
}

// SeedInputs saves inputs whose title is not taken yet. IDs in the inputs are ignored.
func (s *Service) SeedInputs(ctx context.Context, inputs []domrule.Input) (int, error) {
	created := 0
	for i, in := range inputs {
		in = in.Normalize()
		if err := in.Validate(); err != nil {
			return created, fmt.Errorf("seed rule [%d]: %w", i, err)
		}
		exists, err := s.repo.ExistsTitle(ctx, in.Title)
		if err != nil {
			return created, fmt.Errorf("seed rule [%d]: %w", i, err)
		}
		if exists {
			continue
		}
		in.ID = ""
		if in.ChangeNote == "" {
			in.ChangeNote = "seed"
		}
		if _, err := s.Save(ctx, in); err != nil {
			return created, fmt.Errorf("seed rule [%d]: %w", i, err)
		}
		created++
	}
	return created, nil
}

// RunRefresher rebuilds the rule index every interval until ctx is done.
// A refresh already running elsewhere is skipped silently.
func (s *Service) RunRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.RefreshIndex(ctx)
			switch {
			case err == nil:
				s.logger.Debug("Periodic rule index refresh", zap.Int("rules", n))
			case errors.Is(err, domain.ErrJobInProgress), errors.Is(err, context.Canceled):
			default:
				s.logger.Error("Periodic rule index refresh failed", zap.Error(err))
			}
		}
	}
}
