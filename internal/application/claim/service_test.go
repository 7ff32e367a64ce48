package claim

import (
	"context"
	"testing"
	"time"

	"github.com/lostfound-api/internal/application/audit"
	"github.com/lostfound-api/internal/application/item"
	"github.com/lostfound-api/internal/application/notify"
	"github.com/lostfound-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClaimStore struct{ mock.Mock }

func (m *mockClaimStore) Put(ctx context.Context, c *domain.ClaimRequest) error {
	return m.Called(ctx, c).Error(0)
}
func (m *mockClaimStore) Get(ctx context.Context, requestID string) (*domain.ClaimRequest, error) {
	args := m.Called(ctx, requestID)
	if c, _ := args.Get(0).(*domain.ClaimRequest); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockClaimStore) UpdateStatusIf(ctx context.Context, requestID string, expected domain.ClaimStatus, updates map[string]interface{}) error {
	return m.Called(ctx, requestID, expected, updates).Error(0)
}
func (m *mockClaimStore) ApproveWithItemReturn(ctx context.Context, requestID, itemID, reviewerEmail string, now time.Time) error {
	return m.Called(ctx, requestID, itemID, reviewerEmail, now).Error(0)
}
func (m *mockClaimStore) ListByStatus(ctx context.Context, status domain.ClaimStatus) ([]domain.ClaimRequest, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]domain.ClaimRequest), args.Error(1)
}
func (m *mockClaimStore) ListByUser(ctx context.Context, userID string) ([]domain.ClaimRequest, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.ClaimRequest), args.Error(1)
}

type mockItemReader struct{ mock.Mock }

func (m *mockItemReader) Get(ctx context.Context, itemID string) (*domain.Item, error) {
	args := m.Called(ctx, itemID)
	if it, _ := args.Get(0).(*domain.Item); it != nil {
		return it, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockItemReader) UpdateStatusIf(ctx context.Context, itemID string, expected []domain.ItemStatus, updates map[string]interface{}) error {
	return m.Called(ctx, itemID, expected, updates).Error(0)
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

func (m *mockRecorder) Record(ctx context.Context, e audit.Entry) { m.Called(ctx, e) }

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newSvc(claims *mockClaimStore, items *mockItemReader, disp *mockDispatcher, rec *mockRecorder, mail *mockMailer) Service {
	deps := ServiceDeps{
		ClaimRepo:  claims,
		ItemRepo:   items,
		Dispatcher: disp,
		Recorder:   rec,
		Clock:      func() time.Time { return testNow },
	}
	if mail != nil {
		deps.Mailer = mail
	}
	return NewService(deps)
}

func staff() item.Actor {
	return item.Actor{UserID: "sec1", Email: "security@univ.edu", Role: domain.RoleSecurity}
}

func claimant() item.Actor {
	return item.Actor{UserID: "u2", Email: "bob@univ.edu", Role: domain.RoleRegular}
}

func validClaim() domain.SubmitClaimRequest {
	return domain.SubmitClaimRequest{
		UserName:         "Bob",
		UserPhone:        "555-0002",
		Reason:           "Lost it last Tuesday near the gym entrance",
		ProofDescription: "Sticker of a cat on the lid",
	}
}

// --- Submit ---

func TestSubmitAgainstApprovedItem(t *testing.T) {
	claims := &mockClaimStore{}
	items := &mockItemReader{}
	disp := &mockDispatcher{}
	svc := newSvc(claims, items, disp, &mockRecorder{}, nil)

	items.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID: "i1", Name: "Laptop", Status: domain.StatusApproved,
	}, nil)
	claims.On("Put", mock.Anything, mock.MatchedBy(func(c *domain.ClaimRequest) bool {
		return c.Status == domain.ClaimPending && c.ItemID == "i1" && c.UserID == "u2"
	})).Return(nil)
	items.On("UpdateStatusIf", mock.Anything, "i1",
		[]domain.ItemStatus{domain.StatusApproved}, mock.Anything).Return(nil)
	disp.On("Dispatch", mock.Anything, mock.MatchedBy(func(ev notify.Event) bool {
		return ev.Type == domain.TypeClaimSubmitted && ev.Rule == notify.RecipientStaff
	})).Return([]domain.Notification{{}}, nil)

	c, err := svc.Submit(context.Background(), claimant(), "i1", validClaim())
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimPending, c.Status)
	assert.Equal(t, testNow, c.RequestDate)
}

func TestSubmitRejectsShortReason(t *testing.T) {
	svc := newSvc(&mockClaimStore{}, &mockItemReader{}, &mockDispatcher{}, &mockRecorder{}, nil)
	req := validClaim()
	req.Reason = "mine"
	_, err := svc.Submit(context.Background(), claimant(), "i1", req)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestSubmitRejectsNonApprovedItem(t *testing.T) {
	for _, status := range []domain.ItemStatus{
		domain.StatusPendingApproval,
		domain.StatusReturned,
		domain.StatusDonated,
	} {
		t.Run(string(status), func(t *testing.T) {
			claims := &mockClaimStore{}
			items := &mockItemReader{}
			svc := newSvc(claims, items, &mockDispatcher{}, &mockRecorder{}, nil)

			items.On("Get", mock.Anything, "i1").Return(&domain.Item{
				ItemID: "i1", Status: status,
			}, nil)

			_, err := svc.Submit(context.Background(), claimant(), "i1", validClaim())
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			claims.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitRejectsLostReport(t *testing.T) {
	claims := &mockClaimStore{}
	items := &mockItemReader{}
	svc := newSvc(claims, items, &mockDispatcher{}, &mockRecorder{}, nil)

	items.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID: "i1", Status: domain.StatusApproved, IsLost: true,
	}, nil)

	_, err := svc.Submit(context.Background(), claimant(), "i1", validClaim())
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestSubmitAllowsConcurrentPendingClaims(t *testing.T) {
	claims := &mockClaimStore{}
	items := &mockItemReader{}
	disp := &mockDispatcher{}
	svc := newSvc(claims, items, disp, &mockRecorder{}, nil)

	// The item stays Approved after a first claim, so a second claimant
	// can still file.
	items.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID: "i1", Name: "Laptop", Status: domain.StatusApproved,
	}, nil)
	claims.On("Put", mock.Anything, mock.Anything).Return(nil)
	items.On("UpdateStatusIf", mock.Anything, "i1", mock.Anything, mock.Anything).Return(nil)
	disp.On("Dispatch", mock.Anything, mock.Anything).Return([]domain.Notification{{}}, nil)

	_, err := svc.Submit(context.Background(), claimant(), "i1", validClaim())
	require.NoError(t, err)
	second := item.Actor{UserID: "u3", Email: "carol@univ.edu", Role: domain.RoleRegular}
	_, err = svc.Submit(context.Background(), second, "i1", validClaim())
	require.NoError(t, err)
	claims.AssertNumberOfCalls(t, "Put", 2)
}

// --- Approve ---

func TestApproveCommitsClaimAndItemTogether(t *testing.T) {
	claims := &mockClaimStore{}
	items := &mockItemReader{}
	disp := &mockDispatcher{}
	rec := &mockRecorder{}
	mail := &mockMailer{}
	svc := newSvc(claims, items, disp, rec, mail)

	claims.On("Get", mock.Anything, "r1").Return(&domain.ClaimRequest{
		RequestID: "r1", ItemID: "i1", ItemName: "Laptop",
		UserID: "u2", UserEmail: "bob@univ.edu", Status: domain.ClaimPending,
	}, nil)
	items.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID: "i1", Status: domain.StatusApproved,
	}, nil)
	claims.On("ApproveWithItemReturn", mock.Anything, "r1", "i1", "security@univ.edu", testNow).Return(nil)
	disp.On("Dispatch", mock.Anything, mock.MatchedBy(func(ev notify.Event) bool {
		return ev.Type == domain.TypeClaimApproved && ev.UserEmail == "bob@univ.edu"
	})).Return([]domain.Notification{{}}, nil)
	mail.On("SendEmail", "bob@univ.edu", mock.Anything, mock.Anything).Return(nil)
	rec.On("Record", mock.Anything, mock.MatchedBy(func(e audit.Entry) bool {
		return e.ActionType == domain.ActionClaimApproved && e.TargetID == "r1"
	}))

	c, err := svc.Approve(context.Background(), staff(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimApproved, c.Status)
	assert.Equal(t, "security@univ.edu", c.ReviewedBy)
	claims.AssertExpectations(t)
	mail.AssertExpectations(t)
}

func TestApproveTransactionLossSurfacesStaleState(t *testing.T) {
	claims := &mockClaimStore{}
	items := &mockItemReader{}
	disp := &mockDispatcher{}
	svc := newSvc(claims, items, disp, &mockRecorder{}, nil)

	claims.On("Get", mock.Anything, "r1").Return(&domain.ClaimRequest{
		RequestID: "r1", ItemID: "i1", Status: domain.ClaimPending,
	}, nil)
	items.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID: "i1", Status: domain.StatusApproved,
	}, nil)
	claims.On("ApproveWithItemReturn", mock.Anything, "r1", "i1", mock.Anything, mock.Anything).
		Return(domain.ErrStaleState)

	_, err := svc.Approve(context.Background(), staff(), "r1")
	assert.ErrorIs(t, err, domain.ErrStaleState)
	disp.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestApproveRejectsReviewedClaim(t *testing.T) {
	claims := &mockClaimStore{}
	svc := newSvc(claims, &mockItemReader{}, &mockDispatcher{}, &mockRecorder{}, nil)

	claims.On("Get", mock.Anything, "r1").Return(&domain.ClaimRequest{
		RequestID: "r1", Status: domain.ClaimRejected,
	}, nil)

	_, err := svc.Approve(context.Background(), staff(), "r1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestApproveSiblingAfterItemReturned(t *testing.T) {
	claims := &mockClaimStore{}
	items := &mockItemReader{}
	svc := newSvc(claims, items, &mockDispatcher{}, &mockRecorder{}, nil)

	// The sibling claim is still Pending but the item already left the
	// claimable states.
	claims.On("Get", mock.Anything, "r2").Return(&domain.ClaimRequest{
		RequestID: "r2", ItemID: "i1", Status: domain.ClaimPending,
	}, nil)
	items.On("Get", mock.Anything, "i1").Return(&domain.Item{
		ItemID: "i1", Status: domain.StatusReturned,
	}, nil)

	_, err := svc.Approve(context.Background(), staff(), "r2")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	claims.AssertNotCalled(t, "ApproveWithItemReturn",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApproveForbiddenForRegular(t *testing.T) {
	svc := newSvc(&mockClaimStore{}, &mockItemReader{}, &mockDispatcher{}, &mockRecorder{}, nil)
	_, err := svc.Approve(context.Background(), claimant(), "r1")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

// --- Reject ---

func TestRejectLeavesItemUntouched(t *testing.T) {
	claims := &mockClaimStore{}
	items := &mockItemReader{}
	disp := &mockDispatcher{}
	rec := &mockRecorder{}
	svc := newSvc(claims, items, disp, rec, nil)

	claims.On("Get", mock.Anything, "r1").Return(&domain.ClaimRequest{
		RequestID: "r1", ItemID: "i1", ItemName: "Laptop",
		UserID: "u2", UserEmail: "bob@univ.edu", Status: domain.ClaimPending,
	}, nil)
	claims.On("UpdateStatusIf", mock.Anything, "r1", domain.ClaimPending,
		mock.MatchedBy(func(u map[string]interface{}) bool {
			return u["status"] == string(domain.ClaimRejected) && u["review_notes"] == "proof insufficient"
		})).Return(nil)
	disp.On("Dispatch", mock.Anything, mock.MatchedBy(func(ev notify.Event) bool {
		return ev.Type == domain.TypeClaimRejected && ev.Notes == "proof insufficient"
	})).Return([]domain.Notification{{}}, nil)
	rec.On("Record", mock.Anything, mock.Anything)

	c, err := svc.Reject(context.Background(), staff(), "r1", "proof insufficient")
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimRejected, c.Status)
	assert.Equal(t, "proof insufficient", c.ReviewNotes)
	items.AssertNotCalled(t, "UpdateStatusIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	items.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

// --- Reads ---

func TestGetOwnerOrStaffOnly(t *testing.T) {
	claims := &mockClaimStore{}
	svc := newSvc(claims, &mockItemReader{}, &mockDispatcher{}, &mockRecorder{}, nil)

	claims.On("Get", mock.Anything, "r1").Return(&domain.ClaimRequest{
		RequestID: "r1", UserID: "u2",
	}, nil)

	_, err := svc.Get(context.Background(), claimant(), "r1")
	assert.NoError(t, err)

	other := item.Actor{UserID: "u9", Role: domain.RoleRegular}
	_, err = svc.Get(context.Background(), other, "r1")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Get(context.Background(), staff(), "r1")
	assert.NoError(t, err)
}

func TestListPendingStaffOnly(t *testing.T) {
	claims := &mockClaimStore{}
	svc := newSvc(claims, &mockItemReader{}, &mockDispatcher{}, &mockRecorder{}, nil)

	_, err := svc.ListPending(context.Background(), claimant())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	claims.On("ListByStatus", mock.Anything, domain.ClaimPending).
		Return([]domain.ClaimRequest{{RequestID: "r1"}}, nil)
	out, err := svc.ListPending(context.Background(), staff())
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
