package reporting

import (
	"context"
	"errors"
	"time"

	"carecall-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Source lists a facility's calls created in [from, to).
type Source interface {
	ListByFacility(ctx context.Context, facilityID string, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	src Source
}

func NewService(src Source) *Service { return &Service{src: src} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.FacilityID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.src == nil {
		return CallsSummary{}, errors.New("reporting: source not configured")
	}

	rows, err := s.src.ListByFacility(ctx, req.FacilityID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{FacilityID: req.FacilityID, Range: req.Range}
	var durationCount, outboundTerminal, outboundAnswered int
	for _, c := range rows {
		out.TotalCalls++
		switch c.Direction {
		case calls.DirectionInbound:
			out.InboundCalls++
		default:
			out.OutboundCalls++
		}
		if c.DurationSeconds > 0 {
			out.TotalDurationSeconds += c.DurationSeconds
			durationCount++
		}
		if c.PermanentRecordingURL != "" {
			out.DurableRecordings++
		}
		if c.Processed {
			out.ProcessedCalls++
		}
		switch c.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusNoAnswer:
			out.NoAnswerCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		case calls.StatusInitiating, calls.StatusInProgress, calls.StatusScheduled:
			out.InProgressCalls++
		}
		if c.Direction != calls.DirectionInbound && c.Status.IsTerminal() {
			outboundTerminal++
			if c.Status == calls.StatusCompleted {
				outboundAnswered++
			}
		}
	}
	if durationCount > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / durationCount
	}
	if outboundTerminal > 0 {
		out.AnswerRate = float64(outboundAnswered) / float64(outboundTerminal)
	}
	return out, nil
}
