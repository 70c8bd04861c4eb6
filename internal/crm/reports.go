package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/leaddesk/internal/models"
	"github.com/fentz26/leaddesk/internal/store"
)

// Report builds a date-range report. start and end are YYYY-MM-DD and
// inclusive. Admins and managers only.
func (s *Service) Report(ctx context.Context, actor Actor, kind, start, end string) (*models.Report, error) {
	if err := requireRole(actor, models.RoleAdmin, models.RoleManager); err != nil {
		return nil, err
	}
	from, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return nil, fmt.Errorf("%w: start %q is not YYYY-MM-DD", ErrInvalidInput, start)
	}
	to, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return nil, fmt.Errorf("%w: end %q is not YYYY-MM-DD", ErrInvalidInput, end)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidInput, end, start)
	}

	report, err := s.store.Report(ctx, kind, start, end)
	if errors.Is(err, store.ErrUnknownReport) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return report, err
}
