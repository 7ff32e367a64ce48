package item

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/lostfound-api/internal/application/audit"
	"github.com/lostfound-api/internal/application/notify"
	"github.com/lostfound-api/internal/domain"
	s3infra "github.com/lostfound-api/internal/infrastructure/s3"
	"github.com/lostfound-api/internal/pkg/id"
	"github.com/lostfound-api/internal/pkg/validate"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldStatus         = "status"
	fieldApprovedBy     = "approved_by"
	fieldApprovalDate   = "approval_date"
	fieldReturnedAt     = "returned_at"
	fieldLastModifiedBy = "last_modified_by"
	fieldImageURL       = "image_url"
)

// Actor is the authenticated caller of a lifecycle operation. DeviceInfo and
// IPAddress come from the transport layer and flow into the audit trail only.
type Actor struct {
	UserID     string
	Email      string
	Role       domain.Role
	DeviceInfo string
	IPAddress  string
}

type Service interface {
	CreateReport(ctx context.Context, actor Actor, req domain.CreateItemRequest) (*domain.Item, error)
	Approve(ctx context.Context, actor Actor, itemID string) (*domain.Item, error)
	Reject(ctx context.Context, actor Actor, itemID, notes string) (*domain.Item, error)
	// MarkReturned moves an item to Returned. Reached from the claim
	// review flow and from the walk-in return desk.
	MarkReturned(ctx context.Context, actor Actor, itemID string) (*domain.Item, error)

	Get(ctx context.Context, actor Actor, itemID string) (*domain.ViewableItem, error)
	List(ctx context.Context, actor Actor) ([]domain.ViewableItem, error)
	Search(ctx context.Context, actor Actor, query, category string) ([]domain.ViewableItem, error)
	ListPending(ctx context.Context, actor Actor) ([]domain.Item, error)
	ListMine(ctx context.Context, actor Actor) ([]domain.Item, error)

	AttachImage(ctx context.Context, actor Actor, itemID, filename string, r io.Reader) (string, error)
	// FetchImage streams the stored image for an item along with its MIME
	// type. Callers own closing the stream.
	FetchImage(ctx context.Context, actor Actor, itemID string) (io.ReadCloser, string, error)
}

type itemStore interface {
	Put(ctx context.Context, it *domain.Item) error
	Get(ctx context.Context, itemID string) (*domain.Item, error)
	UpdateStatusIf(ctx context.Context, itemID string, expected []domain.ItemStatus, updates map[string]interface{}) error
	ListByStatus(ctx context.Context, status domain.ItemStatus) ([]domain.Item, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Item, error)
	Scan(ctx context.Context) ([]domain.Item, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, ev notify.Event) ([]domain.Notification, error)
}

type imageStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

type service struct {
	repo     itemStore
	notifier dispatcher
	recorder audit.Recorder
	images   imageStore
	now      func() time.Time
}

type ServiceDeps struct {
	ItemRepo   itemStore
	Dispatcher dispatcher
	Recorder   audit.Recorder
	ImageStore imageStore
	Clock      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     deps.ItemRepo,
		notifier: deps.Dispatcher,
		recorder: deps.Recorder,
		images:   deps.ImageStore,
		now:      now,
	}
}

// CreateReport persists a new report. Lost reports need no moderation and are
// created Approved with no approver recorded; found reports start in Pending
// Approval and fan out to staff for review.
func (s *service) CreateReport(ctx context.Context, actor Actor, req domain.CreateItemRequest) (*domain.Item, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err, domain.ErrBadRequest)
	}
	status := domain.StatusPendingApproval
	if req.IsLost {
		status = domain.StatusApproved
	}
	it := &domain.Item{
		ItemID:      id.New(),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Location:    req.Location,
		ContactInfo: req.ContactInfo,
		IsLost:      req.IsLost,
		Status:      status,
		UserID:      actor.UserID,
		UserEmail:   actor.Email,
		ImageURL:    req.ImageURL,
		ReportedAt:  s.now().UTC(),
	}
	if err := s.repo.Put(ctx, it); err != nil {
		return nil, err
	}
	if !req.IsLost {
		s.dispatch(ctx, notify.Event{
			Type:     domain.TypeFoundItemSubmitted,
			ItemID:   it.ItemID,
			ItemName: it.Name,
			Rule:     notify.RecipientStaff,
		})
	}
	return it, nil
}

func (s *service) Approve(ctx context.Context, actor Actor, itemID string) (*domain.Item, error) {
	return s.review(ctx, actor, itemID, domain.StatusApproved, "")
}

func (s *service) Reject(ctx context.Context, actor Actor, itemID, notes string) (*domain.Item, error) {
	return s.review(ctx, actor, itemID, domain.StatusRejected, notes)
}

// review resolves the approve/reject pair: both require the item to still be
// in Pending Approval, write via compare-and-set, notify the reporter and
// append an audit entry.
func (s *service) review(ctx context.Context, actor Actor, itemID string, verdict domain.ItemStatus, notes string) (*domain.Item, error) {
	if !actor.Role.IsStaff() {
		return nil, fmt.Errorf("only security staff may review reports: %w", domain.ErrForbidden)
	}
	it, err := s.repo.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.Status != domain.StatusPendingApproval {
		return nil, domain.TransitionError("item", string(it.Status), string(domain.StatusPendingApproval))
	}

	now := s.now().UTC()
	updates := map[string]interface{}{
		fieldStatus:         string(verdict),
		fieldLastModifiedBy: actor.Email,
	}
	if verdict == domain.StatusApproved {
		updates[fieldApprovedBy] = actor.Email
		updates[fieldApprovalDate] = now.Format(time.RFC3339)
	}
	if err := s.repo.UpdateStatusIf(ctx, itemID, []domain.ItemStatus{domain.StatusPendingApproval}, updates); err != nil {
		return nil, err
	}

	notifType := domain.TypeFoundItemApproved
	action := domain.ActionItemApproved
	if verdict == domain.StatusRejected {
		notifType = domain.TypeFoundItemRejected
		action = domain.ActionItemRejected
	}
	s.dispatch(ctx, notify.Event{
		Type:      notifType,
		ItemID:    it.ItemID,
		ItemName:  it.Name,
		Notes:     notes,
		Rule:      notify.RecipientSingle,
		UserID:    it.UserID,
		UserEmail: it.UserEmail,
	})
	s.recorder.Record(ctx, audit.Entry{
		ActionType:    action,
		Description:   fmt.Sprintf("report %q reviewed", it.Name),
		ActorEmail:    actor.Email,
		ActorRole:     actor.Role,
		TargetType:    domain.TargetItem,
		TargetID:      it.ItemID,
		PreviousValue: string(domain.StatusPendingApproval),
		NewValue:      string(verdict),
		DeviceInfo:    actor.DeviceInfo,
		IPAddress:     actor.IPAddress,
	})

	it.Status = verdict
	it.LastModifiedBy = actor.Email
	it.LastModifiedAt = &now
	if verdict == domain.StatusApproved {
		it.ApprovedBy = actor.Email
		it.ApprovalDate = &now
	}
	return it, nil
}

func (s *service) MarkReturned(ctx context.Context, actor Actor, itemID string) (*domain.Item, error) {
	if !actor.Role.IsStaff() {
		return nil, fmt.Errorf("only security staff may mark items returned: %w", domain.ErrForbidden)
	}
	it, err := s.repo.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.Status != domain.StatusApproved && it.Status != domain.StatusRequested {
		return nil, domain.TransitionError("item", string(it.Status), string(domain.StatusApproved))
	}
	now := s.now().UTC()
	err = s.repo.UpdateStatusIf(ctx, itemID,
		[]domain.ItemStatus{domain.StatusApproved, domain.StatusRequested},
		map[string]interface{}{
			fieldStatus:         string(domain.StatusReturned),
			fieldReturnedAt:     now.Format(time.RFC3339),
			fieldLastModifiedBy: actor.Email,
		})
	if err != nil {
		return nil, err
	}
	it.Status = domain.StatusReturned
	it.ReturnedAt = &now
	it.LastModifiedBy = actor.Email
	return it, nil
}

func (s *service) Get(ctx context.Context, actor Actor, itemID string) (*domain.ViewableItem, error) {
	it, err := s.repo.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	v := domain.FilterForRole(it, actor.Role)
	return &v, nil
}

func (s *service) List(ctx context.Context, actor Actor) ([]domain.ViewableItem, error) {
	items, err := s.repo.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return project(items, actor.Role), nil
}

// Search matches the query against name and description, case-insensitively,
// optionally narrowed to one category.
func (s *service) Search(ctx context.Context, actor Actor, query, category string) ([]domain.ViewableItem, error) {
	items, err := s.repo.Scan(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	var matched []domain.Item
	for _, it := range items {
		if category != "" && !strings.EqualFold(it.Category, category) {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(it.Name), q) &&
			!strings.Contains(strings.ToLower(it.Description), q) {
			continue
		}
		matched = append(matched, it)
	}
	return project(matched, actor.Role), nil
}

func (s *service) ListPending(ctx context.Context, actor Actor) ([]domain.Item, error) {
	if !actor.Role.IsStaff() {
		return nil, fmt.Errorf("approval queue is staff-only: %w", domain.ErrForbidden)
	}
	return s.repo.ListByStatus(ctx, domain.StatusPendingApproval)
}

func (s *service) ListMine(ctx context.Context, actor Actor) ([]domain.Item, error) {
	return s.repo.ListByUser(ctx, actor.UserID)
}

func (s *service) AttachImage(ctx context.Context, actor Actor, itemID, filename string, r io.Reader) (string, error) {
	it, err := s.repo.Get(ctx, itemID)
	if err != nil {
		return "", err
	}
	if it.UserID != actor.UserID && !actor.Role.IsStaff() {
		return "", fmt.Errorf("only the reporter may attach an image: %w", domain.ErrForbidden)
	}
	key := fmt.Sprintf("items/%s/%s", itemID, filename)
	url, err := s.images.Upload(ctx, key, r, s3infra.DetectContentType(filename))
	if err != nil {
		return "", err
	}
	err = s.repo.UpdateStatusIf(ctx, itemID, []domain.ItemStatus{it.Status}, map[string]interface{}{
		fieldImageURL:       url,
		fieldStatus:         string(it.Status),
		fieldLastModifiedBy: actor.Email,
	})
	if err != nil {
		return "", err
	}
	// Replacing an image leaves the old object orphaned; clean it up.
	if it.ImageURL != "" && it.ImageURL != url {
		if key, ok := s3infra.ObjectKey(it.ImageURL); ok {
			if err := s.images.Delete(ctx, key); err != nil {
				log.Printf("WARN: stale image cleanup failed for item %s: %v", itemID, err)
			}
		}
	}
	return url, nil
}

func (s *service) FetchImage(ctx context.Context, actor Actor, itemID string) (io.ReadCloser, string, error) {
	it, err := s.repo.Get(ctx, itemID)
	if err != nil {
		return nil, "", err
	}
	if it.ImageURL == "" {
		return nil, "", fmt.Errorf("item %q has no image: %w", it.Name, domain.ErrNotFound)
	}
	key, ok := s3infra.ObjectKey(it.ImageURL)
	if !ok {
		return nil, "", fmt.Errorf("malformed image url for item %q: %w", it.Name, domain.ErrNotFound)
	}
	rc, err := s.images.Download(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return rc, s3infra.DetectContentType(key), nil
}

func project(items []domain.Item, role domain.Role) []domain.ViewableItem {
	out := make([]domain.ViewableItem, len(items))
	for i := range items {
		out[i] = domain.FilterForRole(&items[i], role)
	}
	return out
}

// dispatch is fire-and-forget relative to the committed transition.
func (s *service) dispatch(ctx context.Context, ev notify.Event) {
	if _, err := s.notifier.Dispatch(ctx, ev); err != nil {
		log.Printf("WARN: notification dispatch failed for %s on item %s: %v", ev.Type, ev.ItemID, err)
	}
}
