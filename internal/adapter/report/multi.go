package report

import (
	"context"
	"errors"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
	"github.com/dayanaadylkhanova/pow-orchestrator/internal/service"
)

var (
	_ service.Reporter = Multi{}
	_ service.Reporter = (*Log)(nil)
	_ service.Reporter = (*Webhook)(nil)
	_ service.Reporter = (*Writer)(nil)
)

// Multi hands the result to every reporter, even if an earlier one fails.
type Multi []service.Reporter

func (m Multi) Report(ctx context.Context, res entity.ReconciledResult) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
