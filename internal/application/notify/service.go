package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lostfound-api/internal/domain"
	"github.com/lostfound-api/internal/pkg/id"
)

// RecipientRule selects the recipient set for a dispatched event.
type RecipientRule int

const (
	// RecipientStaff fans out to every user whose resolved role is
	// security or admin (submission events).
	RecipientStaff RecipientRule = iota
	// RecipientSingle targets the reporter or claimant of the subject
	// entity (status-change events).
	RecipientSingle
	// RecipientBroadcast targets every enabled user (admin compose only).
	RecipientBroadcast
	// RecipientRole targets every enabled user with one resolved role
	// (admin compose only).
	RecipientRole
)

// Event is one lifecycle transition to announce. The dispatcher is invoked
// from inside the operation that performed the transition, after the
// authoritative write commits, so a failed transition emits nothing and a
// retry cannot double-emit.
type Event struct {
	Type      domain.NotificationType
	ItemID    string
	RequestID string
	ItemName  string
	Notes     string
	Rule      RecipientRule

	// Single-recipient selection.
	UserID    string
	UserEmail string

	// Role-targeted selection.
	Role domain.Role

	// Manual compose overrides.
	Title   string
	Message string
}

type Service interface {
	// Dispatch persists exactly one notification per (event, recipient) and
	// enqueues each into the push channel. Returns the created records.
	Dispatch(ctx context.Context, ev Event) ([]domain.Notification, error)
	// Compose is the admin manual-compose feature sharing the persisted shape.
	Compose(ctx context.Context, req domain.ComposeRequest) ([]domain.Notification, error)

	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, notificationID, userID string) (*domain.Notification, error)
	MarkDelivered(ctx context.Context, notificationID, userID string) (*domain.Notification, error)
}

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	SetFlag(ctx context.Context, notificationID, flag string, value bool) error
}

type userDirectory interface {
	ListEnabled(ctx context.Context) ([]domain.User, error)
}

type pushPublisher interface {
	Publish(ctx context.Context, n *domain.Notification) error
}

type service struct {
	repo       notificationStore
	users      userDirectory
	push       pushPublisher // nil when the push channel is not configured
	adminEmail string
	now        func() time.Time
}

type ServiceDeps struct {
	NotificationRepo notificationStore
	UserRepo         userDirectory
	PushPublisher    pushPublisher
	AdminEmail       string
	Clock            func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:       deps.NotificationRepo,
		users:      deps.UserRepo,
		push:       deps.PushPublisher,
		adminEmail: deps.AdminEmail,
		now:        now,
	}
}

func (s *service) Dispatch(ctx context.Context, ev Event) ([]domain.Notification, error) {
	recipients, err := s.resolveRecipients(ctx, ev)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients resolved for %s", ev.Type)
	}

	title, message := ev.Title, ev.Message
	if title == "" {
		title, message = composeBody(ev)
	}

	// The persisted back-reference is exclusive: a record points at either an
	// item or a claim request, never both. Claim events still carry the item
	// id for message context.
	itemID := ev.ItemID
	if ev.RequestID != "" {
		itemID = ""
	}

	created := make([]domain.Notification, 0, len(recipients))
	for _, rcpt := range recipients {
		n := domain.Notification{
			NotificationID: id.New(),
			UserID:         rcpt.UserID,
			UserEmail:      rcpt.Email,
			Type:           ev.Type,
			Title:          title,
			Message:        message,
			ItemID:         itemID,
			RequestID:      ev.RequestID,
			CreatedAt:      s.now().UTC(),
		}
		if err := s.repo.Put(ctx, &n); err != nil {
			return created, fmt.Errorf("persist notification for %s: %w", rcpt.Email, err)
		}
		s.enqueue(ctx, &n)
		created = append(created, n)
	}
	return created, nil
}

func (s *service) Compose(ctx context.Context, req domain.ComposeRequest) ([]domain.Notification, error) {
	ev := Event{
		Type:    domain.TypeAdminMessage,
		Title:   req.Title,
		Message: req.Message,
	}
	switch {
	case req.Broadcast:
		ev.Rule = RecipientBroadcast
	case req.Role != "":
		ev.Rule = RecipientRole
		ev.Role = domain.Role(req.Role)
	case req.UserID != "":
		ev.Rule = RecipientSingle
		ev.UserID = req.UserID
	default:
		return nil, fmt.Errorf("compose requires broadcast, role or user_id: %w", domain.ErrBadRequest)
	}

	if ev.Rule == RecipientSingle {
		// Resolve the target's email from the directory.
		users, err := s.users.ListEnabled(ctx)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if u.UserID == ev.UserID {
				ev.UserEmail = u.Email
				break
			}
		}
		if ev.UserEmail == "" {
			return nil, fmt.Errorf("user %s: %w", ev.UserID, domain.ErrNotFound)
		}
	}
	return s.Dispatch(ctx, ev)
}

type recipient struct {
	UserID string
	Email  string
}

func (s *service) resolveRecipients(ctx context.Context, ev Event) ([]recipient, error) {
	switch ev.Rule {
	case RecipientSingle:
		if ev.UserID == "" && ev.UserEmail == "" {
			return nil, fmt.Errorf("single-recipient event without recipient: %w", domain.ErrBadRequest)
		}
		return []recipient{{UserID: ev.UserID, Email: ev.UserEmail}}, nil
	case RecipientStaff:
		users, err := s.users.ListEnabled(ctx)
		if err != nil {
			return nil, err
		}
		var out []recipient
		for _, u := range users {
			if domain.ResolveRole(u.Email, s.adminEmail).IsStaff() {
				out = append(out, recipient{UserID: u.UserID, Email: u.Email})
			}
		}
		return out, nil
	case RecipientBroadcast, RecipientRole:
		users, err := s.users.ListEnabled(ctx)
		if err != nil {
			return nil, err
		}
		var out []recipient
		for _, u := range users {
			if ev.Rule == RecipientRole && domain.ResolveRole(u.Email, s.adminEmail) != ev.Role {
				continue
			}
			out = append(out, recipient{UserID: u.UserID, Email: u.Email})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown recipient rule %d: %w", ev.Rule, domain.ErrBadRequest)
	}
}

// enqueue hands the record to the push channel. Push delivery is best-effort
// relative to the persisted notification; failures are logged and the
// delivered flag stays false for a later retry.
func (s *service) enqueue(ctx context.Context, n *domain.Notification) {
	if s.push == nil {
		return
	}
	if err := s.push.Publish(ctx, n); err != nil {
		log.Printf("WARN: push enqueue failed for notification %s: %v", n.NotificationID, err)
		return
	}
	n.Delivered = true
	if err := s.repo.SetFlag(ctx, n.NotificationID, "delivered", true); err != nil {
		log.Printf("WARN: mark delivered failed for notification %s: %v", n.NotificationID, err)
	}
}

func composeBody(ev Event) (title, message string) {
	switch ev.Type {
	case domain.TypeFoundItemSubmitted:
		return "New found item reported",
			fmt.Sprintf("%q was reported found and awaits approval.", ev.ItemName)
	case domain.TypeFoundItemApproved:
		return "Your found item report was approved",
			fmt.Sprintf("%q is now visible to the campus community.", ev.ItemName)
	case domain.TypeFoundItemRejected:
		return "Your found item report was rejected",
			fmt.Sprintf("%q was rejected. %s", ev.ItemName, ev.Notes)
	case domain.TypeClaimSubmitted:
		return "New ownership claim",
			fmt.Sprintf("A claim was submitted for %q and awaits review.", ev.ItemName)
	case domain.TypeClaimApproved:
		return "Your claim was approved",
			fmt.Sprintf("Your claim for %q was approved. Please collect the item at the security office.", ev.ItemName)
	case domain.TypeClaimRejected:
		return "Your claim was rejected",
			fmt.Sprintf("Your claim for %q was rejected. %s", ev.ItemName, ev.Notes)
	default:
		return string(ev.Type), ev.Notes
	}
}

func (s *service) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.repo.ListUnread(ctx, userID)
}

func (s *service) MarkAsRead(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	return s.setOwnFlag(ctx, notificationID, userID, "read")
}

func (s *service) MarkDelivered(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	return s.setOwnFlag(ctx, notificationID, userID, "delivered")
}

// setOwnFlag flips a flag on the recipient's own notification only.
func (s *service) setOwnFlag(ctx context.Context, notificationID, userID, flag string) (*domain.Notification, error) {
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, fmt.Errorf("notification belongs to another user: %w", domain.ErrForbidden)
	}
	if err := s.repo.SetFlag(ctx, notificationID, flag, true); err != nil {
		return nil, err
	}
	switch flag {
	case "read":
		n.Read = true
	case "delivered":
		n.Delivered = true
	}
	return n, nil
}
