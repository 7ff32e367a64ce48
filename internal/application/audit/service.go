package audit

import (
	"context"
	"log"
	"time"

	"github.com/lostfound-api/internal/domain"
	"github.com/lostfound-api/internal/pkg/id"
)

// Entry is one administrative mutation to record.
type Entry struct {
	ActionType    string
	Description   string
	ActorEmail    string
	ActorRole     domain.Role
	TargetType    string
	TargetID      string
	PreviousValue string
	NewValue      string
	DeviceInfo    string
	IPAddress     string
	Metadata      map[string]string
}

// Recorder appends audit entries. The trail is a side channel: a failed write
// is logged and swallowed so it can never fail the lifecycle operation that
// triggered it.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

type logStore interface {
	Append(ctx context.Context, e *domain.ActivityLog) error
}

type recorder struct {
	repo logStore
	now  func() time.Time
}

func NewRecorder(repo logStore, clock func() time.Time) Recorder {
	if clock == nil {
		clock = time.Now
	}
	return &recorder{repo: repo, now: clock}
}

func (r *recorder) Record(ctx context.Context, e Entry) {
	entry := &domain.ActivityLog{
		LogID:         id.New(),
		ActionType:    e.ActionType,
		Description:   e.Description,
		ActorEmail:    e.ActorEmail,
		ActorRole:     e.ActorRole,
		TargetType:    e.TargetType,
		TargetID:      e.TargetID,
		PreviousValue: e.PreviousValue,
		NewValue:      e.NewValue,
		CreatedAt:     r.now().UTC(),
		DeviceInfo:    e.DeviceInfo,
		IPAddress:     e.IPAddress,
		Metadata:      e.Metadata,
	}
	if err := r.repo.Append(ctx, entry); err != nil {
		log.Printf("WARN: activity log append failed (%s on %s/%s): %v", e.ActionType, e.TargetType, e.TargetID, err)
	}
}
