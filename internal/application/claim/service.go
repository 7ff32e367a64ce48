package claim

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lostfound-api/internal/application/audit"
	"github.com/lostfound-api/internal/application/item"
	"github.com/lostfound-api/internal/application/notify"
	"github.com/lostfound-api/internal/domain"
	"github.com/lostfound-api/internal/pkg/id"
	"github.com/lostfound-api/internal/pkg/validate"
)

type Service interface {
	Submit(ctx context.Context, actor item.Actor, itemID string, req domain.SubmitClaimRequest) (*domain.ClaimRequest, error)
	Approve(ctx context.Context, actor item.Actor, requestID string) (*domain.ClaimRequest, error)
	Reject(ctx context.Context, actor item.Actor, requestID, notes string) (*domain.ClaimRequest, error)

	Get(ctx context.Context, actor item.Actor, requestID string) (*domain.ClaimRequest, error)
	ListPending(ctx context.Context, actor item.Actor) ([]domain.ClaimRequest, error)
	ListMine(ctx context.Context, actor item.Actor) ([]domain.ClaimRequest, error)
}

type claimStore interface {
	Put(ctx context.Context, c *domain.ClaimRequest) error
	Get(ctx context.Context, requestID string) (*domain.ClaimRequest, error)
	UpdateStatusIf(ctx context.Context, requestID string, expected domain.ClaimStatus, updates map[string]interface{}) error
	// ApproveWithItemReturn commits the claim approval and the item's move
	// to Returned atomically.
	ApproveWithItemReturn(ctx context.Context, requestID, itemID, reviewerEmail string, now time.Time) error
	ListByStatus(ctx context.Context, status domain.ClaimStatus) ([]domain.ClaimRequest, error)
	ListByUser(ctx context.Context, userID string) ([]domain.ClaimRequest, error)
}

type itemReader interface {
	Get(ctx context.Context, itemID string) (*domain.Item, error)
	UpdateStatusIf(ctx context.Context, itemID string, expected []domain.ItemStatus, updates map[string]interface{}) error
}

type dispatcher interface {
	Dispatch(ctx context.Context, ev notify.Event) ([]domain.Notification, error)
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

type service struct {
	repo     claimStore
	items    itemReader
	notifier dispatcher
	recorder audit.Recorder
	mail     mailer // nil when SMTP is not configured
	now      func() time.Time
}

type ServiceDeps struct {
	ClaimRepo  claimStore
	ItemRepo   itemReader
	Dispatcher dispatcher
	Recorder   audit.Recorder
	Mailer     mailer
	Clock      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     deps.ClaimRepo,
		items:    deps.ItemRepo,
		notifier: deps.Dispatcher,
		recorder: deps.Recorder,
		mail:     deps.Mailer,
		now:      now,
	}
}

// Submit creates a Pending claim against a found item that is currently
// Approved. Multiple users may hold Pending claims on the same item at once;
// review resolves the contest.
func (s *service) Submit(ctx context.Context, actor item.Actor, itemID string, req domain.SubmitClaimRequest) (*domain.ClaimRequest, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err, domain.ErrBadRequest)
	}
	it, err := s.items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.IsLost {
		return nil, fmt.Errorf("lost reports cannot be claimed: %w", domain.ErrBadRequest)
	}
	if it.Status != domain.StatusApproved {
		return nil, domain.TransitionError("item", string(it.Status), string(domain.StatusApproved))
	}

	c := &domain.ClaimRequest{
		RequestID:        id.New(),
		ItemID:           it.ItemID,
		ItemName:         it.Name,
		UserID:           actor.UserID,
		UserEmail:        actor.Email,
		UserName:         req.UserName,
		UserPhone:        req.UserPhone,
		Reason:           req.Reason,
		ProofDescription: req.ProofDescription,
		Status:           domain.ClaimPending,
		RequestDate:      s.now().UTC(),
	}
	if err := s.repo.Put(ctx, c); err != nil {
		return nil, err
	}
	// Stamp the active-claim marker on the item. The status stays Approved
	// so sibling claims remain possible; review resolves the contest.
	err = s.items.UpdateStatusIf(ctx, it.ItemID, []domain.ItemStatus{domain.StatusApproved}, map[string]interface{}{
		"status":       string(domain.StatusApproved),
		"requested_by": actor.Email,
		"requested_at": c.RequestDate.Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("WARN: requested-by stamp failed for item %s: %v", it.ItemID, err)
	}
	s.dispatch(ctx, notify.Event{
		Type:      domain.TypeClaimSubmitted,
		ItemID:    it.ItemID,
		RequestID: c.RequestID,
		ItemName:  it.Name,
		Rule:      notify.RecipientStaff,
	})
	return c, nil
}

// Approve moves the claim to Approved and the item to Returned in one
// transaction; there is no observable state where one changed without the
// other. Sibling pending claims are left untouched; approving one of them
// later fails because the item is no longer Approved or Requested.
func (s *service) Approve(ctx context.Context, actor item.Actor, requestID string) (*domain.ClaimRequest, error) {
	if !actor.Role.IsStaff() {
		return nil, fmt.Errorf("only security staff may review claims: %w", domain.ErrForbidden)
	}
	c, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.ClaimPending {
		return nil, domain.TransitionError("claim", string(c.Status), string(domain.ClaimPending))
	}
	it, err := s.items.Get(ctx, c.ItemID)
	if err != nil {
		return nil, err
	}
	if it.Status != domain.StatusApproved && it.Status != domain.StatusRequested {
		return nil, domain.TransitionError("item", string(it.Status), string(domain.StatusApproved))
	}

	now := s.now().UTC()
	if err := s.repo.ApproveWithItemReturn(ctx, requestID, c.ItemID, actor.Email, now); err != nil {
		return nil, err
	}

	s.dispatch(ctx, notify.Event{
		Type:      domain.TypeClaimApproved,
		ItemID:    c.ItemID,
		RequestID: c.RequestID,
		ItemName:  c.ItemName,
		Rule:      notify.RecipientSingle,
		UserID:    c.UserID,
		UserEmail: c.UserEmail,
	})
	s.email(c.UserEmail, "Your claim was approved",
		fmt.Sprintf("Your claim for %q was approved. Please collect the item at the security office.", c.ItemName))
	s.recorder.Record(ctx, audit.Entry{
		ActionType:    domain.ActionClaimApproved,
		Description:   fmt.Sprintf("claim for %q approved, item returned", c.ItemName),
		ActorEmail:    actor.Email,
		ActorRole:     actor.Role,
		TargetType:    domain.TargetClaim,
		TargetID:      c.RequestID,
		PreviousValue: string(domain.ClaimPending),
		NewValue:      string(domain.ClaimApproved),
		DeviceInfo:    actor.DeviceInfo,
		IPAddress:     actor.IPAddress,
		Metadata:      map[string]string{"item_id": c.ItemID},
	})

	c.Status = domain.ClaimApproved
	c.ReviewedBy = actor.Email
	c.ReviewDate = &now
	return c, nil
}

// Reject closes the claim and leaves the item Approved, still available to
// other claimants.
func (s *service) Reject(ctx context.Context, actor item.Actor, requestID, notes string) (*domain.ClaimRequest, error) {
	if !actor.Role.IsStaff() {
		return nil, fmt.Errorf("only security staff may review claims: %w", domain.ErrForbidden)
	}
	c, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.ClaimPending {
		return nil, domain.TransitionError("claim", string(c.Status), string(domain.ClaimPending))
	}

	now := s.now().UTC()
	err = s.repo.UpdateStatusIf(ctx, requestID, domain.ClaimPending, map[string]interface{}{
		"status":       string(domain.ClaimRejected),
		"reviewed_by":  actor.Email,
		"review_date":  now.Format(time.RFC3339),
		"review_notes": notes,
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, notify.Event{
		Type:      domain.TypeClaimRejected,
		ItemID:    c.ItemID,
		RequestID: c.RequestID,
		ItemName:  c.ItemName,
		Notes:     notes,
		Rule:      notify.RecipientSingle,
		UserID:    c.UserID,
		UserEmail: c.UserEmail,
	})
	s.email(c.UserEmail, "Your claim was rejected",
		fmt.Sprintf("Your claim for %q was rejected. %s", c.ItemName, notes))
	s.recorder.Record(ctx, audit.Entry{
		ActionType:    domain.ActionClaimRejected,
		Description:   fmt.Sprintf("claim for %q rejected", c.ItemName),
		ActorEmail:    actor.Email,
		ActorRole:     actor.Role,
		TargetType:    domain.TargetClaim,
		TargetID:      c.RequestID,
		PreviousValue: string(domain.ClaimPending),
		NewValue:      string(domain.ClaimRejected),
		DeviceInfo:    actor.DeviceInfo,
		IPAddress:     actor.IPAddress,
		Metadata:      map[string]string{"item_id": c.ItemID, "notes": notes},
	})

	c.Status = domain.ClaimRejected
	c.ReviewedBy = actor.Email
	c.ReviewDate = &now
	c.ReviewNotes = notes
	return c, nil
}

func (s *service) Get(ctx context.Context, actor item.Actor, requestID string) (*domain.ClaimRequest, error) {
	c, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if c.UserID != actor.UserID && !actor.Role.IsStaff() {
		return nil, fmt.Errorf("claim belongs to another user: %w", domain.ErrForbidden)
	}
	return c, nil
}

func (s *service) ListPending(ctx context.Context, actor item.Actor) ([]domain.ClaimRequest, error) {
	if !actor.Role.IsStaff() {
		return nil, fmt.Errorf("claim review queue is staff-only: %w", domain.ErrForbidden)
	}
	return s.repo.ListByStatus(ctx, domain.ClaimPending)
}

func (s *service) ListMine(ctx context.Context, actor item.Actor) ([]domain.ClaimRequest, error) {
	return s.repo.ListByUser(ctx, actor.UserID)
}

func (s *service) dispatch(ctx context.Context, ev notify.Event) {
	if _, err := s.notifier.Dispatch(ctx, ev); err != nil {
		log.Printf("WARN: notification dispatch failed for %s on claim %s: %v", ev.Type, ev.RequestID, err)
	}
}

// email is the best-effort SMTP copy of a review outcome.
func (s *service) email(to, subject, body string) {
	if s.mail == nil {
		return
	}
	if err := s.mail.SendEmail(to, subject, body); err != nil {
		log.Printf("WARN: review email to %s failed: %v", to, err)
	}
}
