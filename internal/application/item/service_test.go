package item

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/lostfound-api/internal/application/audit"
	"github.com/lostfound-api/internal/application/notify"
	"github.com/lostfound-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockItemStore struct{ mock.Mock }

func (m *mockItemStore) Put(ctx context.Context, it *domain.Item) error {
	return m.Called(ctx, it).Error(0)
}
func (m *mockItemStore) Get(ctx context.Context, itemID string) (*domain.Item, error) {
	args := m.Called(ctx, itemID)
	if it, _ := args.Get(0).(*domain.Item); it != nil {
		return it, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockItemStore) UpdateStatusIf(ctx context.Context, itemID string, expected []domain.ItemStatus, updates map[string]interface{}) error {
	return m.Called(ctx, itemID, expected, updates).Error(0)
}
func (m *mockItemStore) ListByStatus(ctx context.Context, status domain.ItemStatus) ([]domain.Item, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]domain.Item), args.Error(1)
}
func (m *mockItemStore) ListByUser(ctx context.Context, userID string) ([]domain.Item, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Item), args.Error(1)
}
func (m *mockItemStore) Scan(ctx context.Context) ([]domain.Item, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Item), args.Error(1)
}

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) Dispatch(ctx context.Context, ev notify.Event) ([]domain.Notification, error) {
	args := m.Called(ctx, ev)
	if ns, _ := args.Get(0).([]domain.Notification); ns != nil {
		return ns, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) Record(ctx context.Context, e audit.Entry) {
	m.Called(ctx, e)
}

type mockImageStore struct{ mock.Mock }

func (m *mockImageStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	args := m.Called(ctx, key, r, contentType)
	return args.String(0), args.Error(1)
}

func (m *mockImageStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if rc, _ := args.Get(0).(io.ReadCloser); rc != nil {
		return rc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockImageStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// --- helpers ---

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newSvc(store *mockItemStore, disp *mockDispatcher, rec *mockRecorder) Service {
	return NewService(ServiceDeps{
		ItemRepo:   store,
		Dispatcher: disp,
		Recorder:   rec,
		ImageStore: &mockImageStore{},
		Clock:      func() time.Time { return testNow },
	})
}

func staff() Actor {
	return Actor{UserID: "sec1", Email: "security@univ.edu", Role: domain.RoleSecurity}
}

func regular() Actor {
	return Actor{UserID: "u1", Email: "alice@univ.edu", Role: domain.RoleRegular}
}

func foundReport() domain.CreateItemRequest {
	return domain.CreateItemRequest{
		Name:        "Black laptop",
		Description: "Dell XPS, found in library",
		Category:    "Electronics",
		Location:    "Library 2nd floor",
		ContactInfo: "555-0001",
		IsLost:      false,
	}
}

// --- CreateReport ---

func TestCreateReportFoundStartsPending(t *testing.T) {
	store := &mockItemStore{}
	disp := &mockDispatcher{}
	svc := newSvc(store, disp, &mockRecorder{})

	store.On("Put", mock.Anything, mock.MatchedBy(func(it *domain.Item) bool {
		return it.Status == domain.StatusPendingApproval && !it.IsLost
	})).Return(nil)
	disp.On("Dispatch", mock.Anything, mock.MatchedBy(func(ev notify.Event) bool {
		return ev.Type == domain.TypeFoundItemSubmitted && ev.Rule == notify.RecipientStaff
	})).Return([]domain.Notification{{}}, nil)

	it, err := svc.CreateReport(context.Background(), regular(), foundReport())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingApproval, it.Status)
	assert.Empty(t, it.ApprovedBy)
	assert.Equal(t, "u1", it.UserID)
	disp.AssertNumberOfCalls(t, "Dispatch", 1)
}

func TestCreateReportLostAutoApproved(t *testing.T) {
	store := &mockItemStore{}
	disp := &mockDispatcher{}
	svc := newSvc(store, disp, &mockRecorder{})

	req := foundReport()
	req.IsLost = true
	store.On("Put", mock.Anything, mock.MatchedBy(func(it *domain.Item) bool {
		return it.Status == domain.StatusApproved && it.IsLost
	})).Return(nil)

	it, err := svc.CreateReport(context.Background(), regular(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, it.Status)
	assert.Empty(t, it.ApprovedBy, "auto-approval records no approver")
	// Lost reports raise no moderation notification.
	disp.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestCreateReportValidation(t *testing.T) {
	svc := newSvc(&mockItemStore{}, &mockDispatcher{}, &mockRecorder{})
	req := foundReport()
	req.Name = ""
	_, err := svc.CreateReport(context.Background(), regular(), req)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestCreateReportDispatchFailureDoesNotFailReport(t *testing.T) {
	store := &mockItemStore{}
	disp := &mockDispatcher{}
	svc := newSvc(store, disp, &mockRecorder{})

	store.On("Put", mock.Anything, mock.Anything).Return(nil)
	disp.On("Dispatch", mock.Anything, mock.Anything).Return(nil, errors.New("no recipients"))

	_, err := svc.CreateReport(context.Background(), regular(), foundReport())
	assert.NoError(t, err)
}

// --- Approve / Reject ---

func TestApproveRequiresPendingApproval(t *testing.T) {
	store := &mockItemStore{}
	disp := &mockDispatcher{}
	svc := newSvc(store, disp, &mockRecorder{})

	store.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID: "i1", Status: domain.StatusApproved,
	}, nil)

	_, err := svc.Approve(context.Background(), staff(), "i1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.ErrorContains(t, err, string(domain.StatusApproved))
	assert.ErrorContains(t, err, string(domain.StatusPendingApproval))
	// Nothing written, nothing dispatched.
	store.AssertNotCalled(t, "UpdateStatusIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	disp.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestApproveIdempotenceSecondCallRejected(t *testing.T) {
	store := &mockItemStore{}
	disp := &mockDispatcher{}
	rec := &mockRecorder{}
	svc := newSvc(store, disp, rec)

	pending := &domain.Item{ItemID: "i1", Name: "Keys", Status: domain.StatusPendingApproval, UserID: "u1", UserEmail: "alice@univ.edu"}
	store.On("Get", mock.Anything, "i1").Return(pending, nil).Once()
	store.On("UpdateStatusIf", mock.Anything, "i1",
		[]domain.ItemStatus{domain.StatusPendingApproval}, mock.Anything).Return(nil).Once()
	disp.On("Dispatch", mock.Anything, mock.MatchedBy(func(ev notify.Event) bool {
		return ev.Type == domain.TypeFoundItemApproved && ev.UserEmail == "alice@univ.edu"
	})).Return([]domain.Notification{{}}, nil).Once()
	rec.On("Record", mock.Anything, mock.Anything).Once()

	it, err := svc.Approve(context.Background(), staff(), "i1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, it.Status)
	assert.Equal(t, "security@univ.edu", it.ApprovedBy)

	// Second approval sees the committed state and must not re-notify.
	store.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID: "i1", Status: domain.StatusApproved,
	}, nil).Once()
	_, err = svc.Approve(context.Background(), staff(), "i1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	disp.AssertNumberOfCalls(t, "Dispatch", 1)
}

func TestApproveLostRaceSurfacesStaleState(t *testing.T) {
	store := &mockItemStore{}
	disp := &mockDispatcher{}
	svc := newSvc(store, disp, &mockRecorder{})

	store.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID: "i1", Status: domain.StatusPendingApproval,
	}, nil)
	store.On("UpdateStatusIf", mock.Anything, "i1", mock.Anything, mock.Anything).
		Return(domain.ErrStaleState)

	_, err := svc.Approve(context.Background(), staff(), "i1")
	assert.ErrorIs(t, err, domain.ErrStaleState)
	disp.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestApproveForbiddenForRegular(t *testing.T) {
	store := &mockItemStore{}
	svc := newSvc(store, &mockDispatcher{}, &mockRecorder{})

	_, err := svc.Approve(context.Background(), regular(), "i1")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestRejectNotifiesReporterWithNotes(t *testing.T) {
	store := &mockItemStore{}
	disp := &mockDispatcher{}
	rec := &mockRecorder{}
	svc := newSvc(store, disp, rec)

	store.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID: "i1", Name: "Umbrella", Status: domain.StatusPendingApproval,
		UserID: "u1", UserEmail: "alice@univ.edu",
	}, nil)
	store.On("UpdateStatusIf", mock.Anything, "i1", mock.Anything, mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["status"] == string(domain.StatusRejected)
	})).Return(nil)
	disp.On("Dispatch", mock.Anything, mock.MatchedBy(func(ev notify.Event) bool {
		return ev.Type == domain.TypeFoundItemRejected && ev.Notes == "duplicate report"
	})).Return([]domain.Notification{{}}, nil)
	rec.On("Record", mock.Anything, mock.MatchedBy(func(e audit.Entry) bool {
		return e.ActionType == domain.ActionItemRejected && e.TargetID == "i1"
	}))

	it, err := svc.Reject(context.Background(), staff(), "i1", "duplicate report")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, it.Status)
	rec.AssertNumberOfCalls(t, "Record", 1)
}

// --- MarkReturned ---

func TestMarkReturned(t *testing.T) {
	store := &mockItemStore{}
	svc := newSvc(store, &mockDispatcher{}, &mockRecorder{})

	store.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID: "i1", Status: domain.StatusApproved,
	}, nil)
	store.On("UpdateStatusIf", mock.Anything, "i1",
		[]domain.ItemStatus{domain.StatusApproved, domain.StatusRequested},
		mock.MatchedBy(func(u map[string]interface{}) bool {
			return u["status"] == string(domain.StatusReturned)
		})).Return(nil)

	it, err := svc.MarkReturned(context.Background(), staff(), "i1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReturned, it.Status)
	require.NotNil(t, it.ReturnedAt)
	assert.Equal(t, testNow, *it.ReturnedAt)
}

func TestMarkReturnedRejectsTerminal(t *testing.T) {
	store := &mockItemStore{}
	svc := newSvc(store, &mockDispatcher{}, &mockRecorder{})

	store.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID: "i1", Status: domain.StatusDonated,
	}, nil)

	_, err := svc.MarkReturned(context.Background(), staff(), "i1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

// --- Reads ---

func TestGetAppliesVisibilityFilter(t *testing.T) {
	store := &mockItemStore{}
	svc := newSvc(store, &mockDispatcher{}, &mockRecorder{})

	store.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID: "i1", Name: "Wallet", Location: "Gym locker 12", ContactInfo: "555-0002",
		Status: domain.StatusApproved, ReportedAt: testNow,
	}, nil)

	v, err := svc.Get(context.Background(), regular(), "i1")
	require.NoError(t, err)
	assert.Equal(t, domain.Redacted, v.Location)
	assert.Equal(t, domain.Redacted, v.ContactInfo)

	full, err := svc.Get(context.Background(), staff(), "i1")
	require.NoError(t, err)
	assert.Equal(t, "Gym locker 12", full.Location)
}

func TestSearchMatchesNameAndCategory(t *testing.T) {
	store := &mockItemStore{}
	svc := newSvc(store, &mockDispatcher{}, &mockRecorder{})

	store.On("Scan", mock.Anything).Return([]domain.Item{
		{ItemID: "1", Name: "Black laptop", Category: "Electronics", ReportedAt: testNow},
		{ItemID: "2", Name: "Red umbrella", Category: "Accessories", ReportedAt: testNow},
		{ItemID: "3", Description: "a laptop charger", Category: "Electronics", ReportedAt: testNow},
	}, nil)

	out, err := svc.Search(context.Background(), staff(), "laptop", "Electronics")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].ItemID)
	assert.Equal(t, "3", out[1].ItemID)
}

func TestListPendingStaffOnly(t *testing.T) {
	store := &mockItemStore{}
	svc := newSvc(store, &mockDispatcher{}, &mockRecorder{})

	_, err := svc.ListPending(context.Background(), regular())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	store.On("ListByStatus", mock.Anything, domain.StatusPendingApproval).
		Return([]domain.Item{{ItemID: "1"}}, nil)
	items, err := svc.ListPending(context.Background(), staff())
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// --- images ---

func newImageSvc(store *mockItemStore, images *mockImageStore) Service {
	return NewService(ServiceDeps{
		ItemRepo:   store,
		Dispatcher: &mockDispatcher{},
		Recorder:   &mockRecorder{},
		ImageStore: images,
		Clock:      func() time.Time { return testNow },
	})
}

func TestAttachImageReplacesAndCleansUpOldObject(t *testing.T) {
	store := &mockItemStore{}
	images := &mockImageStore{}
	svc := newImageSvc(store, images)

	store.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID:   "i1",
		UserID:   "u1",
		Status:   domain.StatusApproved,
		ImageURL: "s3://bucket/items/i1/old.png",
	}, nil)
	images.On("Upload", mock.Anything, "items/i1/new.jpg", mock.Anything, "image/jpeg").
		Return("s3://bucket/items/i1/new.jpg", nil)
	store.On("UpdateStatusIf", mock.Anything, "i1", mock.Anything, mock.Anything).Return(nil)
	images.On("Delete", mock.Anything, "items/i1/old.png").Return(nil)

	actor := Actor{UserID: "u1", Email: "alice@univ.edu", Role: domain.RoleRegular}
	url, err := svc.AttachImage(context.Background(), actor, "i1", "new.jpg", strings.NewReader("jpegdata"))
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/items/i1/new.jpg", url)
	images.AssertExpectations(t)
}

func TestAttachImageForbiddenForStranger(t *testing.T) {
	store := &mockItemStore{}
	images := &mockImageStore{}
	svc := newImageSvc(store, images)

	store.On("Get", mock.Anything, "i1").Return(&domain.Item{ItemID: "i1", UserID: "u1"}, nil)

	actor := Actor{UserID: "u2", Email: "mallory@univ.edu", Role: domain.RoleRegular}
	_, err := svc.AttachImage(context.Background(), actor, "i1", "x.png", strings.NewReader("png"))
	assert.ErrorIs(t, err, domain.ErrForbidden)
	images.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFetchImageStreamsStoredObject(t *testing.T) {
	store := &mockItemStore{}
	images := &mockImageStore{}
	svc := newImageSvc(store, images)

	store.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID:   "i1",
		Name:     "Wallet",
		ImageURL: "s3://bucket/items/i1/photo.png",
	}, nil)
	images.On("Download", mock.Anything, "items/i1/photo.png").
		Return(io.NopCloser(strings.NewReader("pngdata")), nil)

	rc, contentType, err := svc.FetchImage(context.Background(), regular(), "i1")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "image/png", contentType)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "pngdata", string(data))
}

func TestFetchImageMissingImage(t *testing.T) {
	store := &mockItemStore{}
	images := &mockImageStore{}
	svc := newImageSvc(store, images)

	store.On("Get", mock.Anything, "i1").Return(&domain.Item{ItemID: "i1", Name: "Wallet"}, nil)

	_, _, err := svc.FetchImage(context.Background(), regular(), "i1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	images.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}
