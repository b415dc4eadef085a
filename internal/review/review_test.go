package review

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

type mockNotion struct {
	mock.Mock
}

func (m *mockNotion) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotion) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	return &notionapi.Page{}, args.Error(1)
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	return &notionapi.Page{}, args.Error(1)
}

func seedPendingReview(t *testing.T) *store.SQLiteStore {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "review.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))

	require.NoError(t, s.UpsertCompany(ctx, model.Company{ID: "c1", Name: "Acme", Category: model.CategoryGate}))
	require.NoError(t, s.UpsertAttendee(ctx, model.Attendee{
		ID: "a1", FirstName: "Jane", LastName: "Doe", CompanyID: "c1",
		JobTitle: "Director", TicketType: model.TicketExhibitor,
	}))
	require.NoError(t, s.CreateAttempt(ctx, model.OutreachAttempt{
		ID: uuid.New().String(), AttendeeID: "a1", CompanyID: "c1", Wave: "w1",
		Treatment: model.TreatmentSuppressed, SuppressReason: model.SuppressAmbiguousRole,
		State: model.StatePending,
	}))
	return s
}

func TestMirror_CreatesPageOnce(t *testing.T) {
	s := seedPendingReview(t)

	n := &mockNotion{}
	n.On("QueryDatabase", mock.Anything, "db1", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	n.On("CreatePage", mock.Anything, mock.Anything).Return(&notionapi.Page{}, nil).Once()

	m := NewMirror(n, s, "db1")
	created, err := m.Sync(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	// Second sync finds the existing page, refreshes it, creates nothing.
	n.On("QueryDatabase", mock.Anything, "db1", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "page-1"}}}, nil).Once()
	n.On("UpdatePage", mock.Anything, "page-1", mock.Anything).
		Return(&notionapi.Page{}, nil).Once()

	created, err = m.Sync(context.Background(), "w1")
	require.NoError(t, err)
	assert.Zero(t, created)
	n.AssertExpectations(t)
}
