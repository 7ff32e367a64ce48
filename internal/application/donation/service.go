package donation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lostfound-api/internal/application/audit"
	"github.com/lostfound-api/internal/application/item"
	"github.com/lostfound-api/internal/application/notify"
	"github.com/lostfound-api/internal/domain"
	"github.com/lostfound-api/internal/pkg/validate"
)

type Service interface {
	// ListEligible returns unclaimed items old enough to enter the
	// donation track.
	ListEligible(ctx context.Context, actor item.Actor) ([]domain.Item, error)
	MarkReady(ctx context.Context, actor item.Actor, itemID string) (*domain.Item, error)
	MarkDonated(ctx context.Context, actor item.Actor, itemID string, req domain.DonateRequest) (*domain.Item, error)
	Stats(ctx context.Context, actor item.Actor, from, to time.Time) (*domain.DonationStats, error)
}

type itemStore interface {
	Get(ctx context.Context, itemID string) (*domain.Item, error)
	UpdateStatusIf(ctx context.Context, itemID string, expected []domain.ItemStatus, updates map[string]interface{}) error
	ScanReportedBefore(ctx context.Context, status domain.ItemStatus, cutoff time.Time) ([]domain.Item, error)
	Scan(ctx context.Context) ([]domain.Item, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, ev notify.Event) ([]domain.Notification, error)
}

type service struct {
	repo     itemStore
	notifier dispatcher
	recorder audit.Recorder
	window   time.Duration
	now      func() time.Time
}

type ServiceDeps struct {
	ItemRepo   itemStore
	Dispatcher dispatcher
	Recorder   audit.Recorder
	// EligibilityWindow is the age an unclaimed item must reach before it
	// may be donated.
	EligibilityWindow time.Duration
	Clock             func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	window := deps.EligibilityWindow
	if window <= 0 {
		window = 365 * 24 * time.Hour
	}
	return &service{
		repo:     deps.ItemRepo,
		notifier: deps.Dispatcher,
		recorder: deps.Recorder,
		window:   window,
		now:      now,
	}
}

// eligible: past the window, still Approved. Never claimed, not rejected,
// not already in the donation track. Returned items belong to their owners
// again and are excluded.
func (s *service) eligible(it *domain.Item) bool {
	switch it.Status {
	case domain.StatusDonationPending:
		// Legacy rows were flagged for donation under the old status
		// scheme; they advance without a fresh age check.
		return true
	case domain.StatusApproved:
		return s.now().UTC().Sub(it.ReportedAt) >= s.window
	default:
		return false
	}
}

func (s *service) ListEligible(ctx context.Context, actor item.Actor) ([]domain.Item, error) {
	if !actor.Role.IsStaff() {
		return nil, fmt.Errorf("donation workflow is staff-only: %w", domain.ErrForbidden)
	}
	cutoff := s.now().UTC().Add(-s.window)
	return s.repo.ScanReportedBefore(ctx, domain.StatusApproved, cutoff)
}

func (s *service) MarkReady(ctx context.Context, actor item.Actor, itemID string) (*domain.Item, error) {
	if !actor.Role.IsStaff() {
		return nil, fmt.Errorf("donation workflow is staff-only: %w", domain.ErrForbidden)
	}
	it, err := s.repo.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.Status == domain.StatusDonationReady || it.Status == domain.StatusDonated {
		return nil, domain.TransitionError("item", string(it.Status), string(domain.StatusApproved))
	}
	if !s.eligible(it) {
		return nil, fmt.Errorf("item %q is not donation-eligible yet: %w", it.Name, domain.ErrInvalidTransition)
	}

	now := s.now().UTC()
	err = s.repo.UpdateStatusIf(ctx, itemID,
		[]domain.ItemStatus{domain.StatusApproved, domain.StatusDonationPending},
		map[string]interface{}{
			"status":           string(domain.StatusDonationReady),
			"marked_ready_by":  actor.Email,
			"marked_ready_at":  now.Format(time.RFC3339),
			"last_modified_by": actor.Email,
		})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, notify.Event{
		Type:      domain.TypeAdminMessage,
		ItemID:    it.ItemID,
		ItemName:  it.Name,
		Rule:      notify.RecipientSingle,
		UserID:    it.UserID,
		UserEmail: it.UserEmail,
		Title:     "Your unclaimed item enters the donation pipeline",
		Message:   fmt.Sprintf("%q was unclaimed for the retention period and is now ready for donation.", it.Name),
	})
	s.recorder.Record(ctx, audit.Entry{
		ActionType:    domain.ActionDonationReady,
		Description:   fmt.Sprintf("item %q marked ready for donation", it.Name),
		ActorEmail:    actor.Email,
		ActorRole:     actor.Role,
		TargetType:    domain.TargetItem,
		TargetID:      it.ItemID,
		PreviousValue: string(it.Status),
		NewValue:      string(domain.StatusDonationReady),
		DeviceInfo:    actor.DeviceInfo,
		IPAddress:     actor.IPAddress,
	})

	it.Status = domain.StatusDonationReady
	it.MarkedReadyBy = actor.Email
	it.MarkedReadyAt = &now
	return it, nil
}

func (s *service) MarkDonated(ctx context.Context, actor item.Actor, itemID string, req domain.DonateRequest) (*domain.Item, error) {
	if !actor.Role.IsStaff() {
		return nil, fmt.Errorf("donation workflow is staff-only: %w", domain.ErrForbidden)
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err, domain.ErrBadRequest)
	}
	it, err := s.repo.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.Status != domain.StatusDonationReady {
		return nil, domain.TransitionError("item", string(it.Status), string(domain.StatusDonationReady))
	}

	now := s.now().UTC()
	err = s.repo.UpdateStatusIf(ctx, itemID,
		[]domain.ItemStatus{domain.StatusDonationReady},
		map[string]interface{}{
			"status":             string(domain.StatusDonated),
			"donated_by":         actor.Email,
			"donated_at":         now.Format(time.RFC3339),
			"donation_recipient": req.Recipient,
			"estimated_value":    req.EstimatedValue,
			"last_modified_by":   actor.Email,
		})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		ActionType:    domain.ActionItemDonated,
		Description:   fmt.Sprintf("item %q donated to %s", it.Name, req.Recipient),
		ActorEmail:    actor.Email,
		ActorRole:     actor.Role,
		TargetType:    domain.TargetItem,
		TargetID:      it.ItemID,
		PreviousValue: string(domain.StatusDonationReady),
		NewValue:      string(domain.StatusDonated),
		DeviceInfo:    actor.DeviceInfo,
		IPAddress:     actor.IPAddress,
		Metadata: map[string]string{
			"recipient":       req.Recipient,
			"estimated_value": fmt.Sprintf("%.2f", req.EstimatedValue),
		},
	})

	it.Status = domain.StatusDonated
	it.DonatedBy = actor.Email
	it.DonatedAt = &now
	it.DonationRecipient = req.Recipient
	it.EstimatedValue = req.EstimatedValue
	return it, nil
}

// Stats aggregates the donation track over a report-timestamp range. Pure
// read-side derivation; never authoritative.
func (s *service) Stats(ctx context.Context, actor item.Actor, from, to time.Time) (*domain.DonationStats, error) {
	if !actor.Role.IsStaff() {
		return nil, fmt.Errorf("donation stats are staff-only: %w", domain.ErrForbidden)
	}
	items, err := s.repo.Scan(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.DonationStats{CountByStatus: map[domain.ItemStatus]int{}}
	categories := map[string]int{}
	var ageSum float64
	var counted int
	now := s.now().UTC()

	for i := range items {
		it := &items[i]
		if !it.Status.InDonationTrack() {
			continue
		}
		if !from.IsZero() && it.ReportedAt.Before(from) {
			continue
		}
		if !to.IsZero() && it.ReportedAt.After(to) {
			continue
		}
		stats.CountByStatus[it.Status]++
		stats.TotalValue += it.EstimatedValue
		ageSum += now.Sub(it.ReportedAt).Hours() / 24
		categories[it.Category]++
		counted++
	}
	if counted > 0 {
		stats.AverageAgeDay = ageSum / float64(counted)
	}
	best := 0
	for cat, n := range categories {
		if n > best || (n == best && stats.TopCategory == "") {
			best = n
			stats.TopCategory = cat
		}
	}
	return stats, nil
}

func (s *service) dispatch(ctx context.Context, ev notify.Event) {
	if _, err := s.notifier.Dispatch(ctx, ev); err != nil {
		log.Printf("WARN: notification dispatch failed for %s on item %s: %v", ev.Type, ev.ItemID, err)
	}
}
