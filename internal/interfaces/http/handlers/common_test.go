package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	deliveryapp "github.com/contabil/fiscore/internal/application/delivery"
	intakeapp "github.com/contabil/fiscore/internal/application/intake"
	oblapp "github.com/contabil/fiscore/internal/application/obligation"
	deliverydomain "github.com/contabil/fiscore/internal/domain/delivery"
	"github.com/contabil/fiscore/internal/domain/intake"
	domain "github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/interfaces/http/middleware"
	"github.com/contabil/fiscore/pkg/types/common"
)

const (
	testOrg  common.OrgID  = "org-1"
	testUser common.UserID = "user-1"
)

// serveWithTenant runs the handler with the tenant context a real request
// would carry after the middleware chain.
func serveWithTenant(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	ctx := middleware.WithOrgID(r.Context(), testOrg)
	ctx = middleware.WithUserID(ctx, testUser)
	w := httptest.NewRecorder()
	h(w, r.WithContext(ctx))
	return w
}

// withChiParam injects a chi URL parameter without a full router.
func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) common.APIResponse[json.RawMessage] {
	t.Helper()
	var resp common.APIResponse[json.RawMessage]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// ─────────────────────────────────────────────────────────────────────────────
// Service mocks
// ─────────────────────────────────────────────────────────────────────────────

type mockInstanceService struct{ mock.Mock }

var _ oblapp.InstanceService = (*mockInstanceService)(nil)

func (m *mockInstanceService) Get(ctx context.Context, orgID common.OrgID, id common.ID) (*domain.Instance, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Instance), args.Error(1)
}

func (m *mockInstanceService) List(ctx context.Context, orgID common.OrgID, filter domain.InstanceFilter, page common.Pagination) ([]*domain.Instance, int64, error) {
	args := m.Called(ctx, orgID, filter, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.Instance), args.Get(1).(int64), args.Error(2)
}

func (m *mockInstanceService) Complete(ctx context.Context, orgID common.OrgID, req oblapp.CompleteRequest) (*domain.Instance, error) {
	args := m.Called(ctx, orgID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Instance), args.Error(1)
}

func (m *mockInstanceService) CompleteFromDocument(ctx context.Context, orgID common.OrgID, clientID, obligationID common.ID, competence domain.Competence) error {
	args := m.Called(ctx, orgID, clientID, obligationID, competence)
	return args.Error(0)
}

func (m *mockInstanceService) Unmark(ctx context.Context, orgID common.OrgID, id common.ID, actor common.UserID) (*domain.Instance, error) {
	args := m.Called(ctx, orgID, id, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Instance), args.Error(1)
}

type mockGeneratorService struct{ mock.Mock }

var _ oblapp.GeneratorService = (*mockGeneratorService)(nil)

func (m *mockGeneratorService) GenerateForCompetence(ctx context.Context, orgID common.OrgID, competence domain.Competence) (*oblapp.GenerationReport, error) {
	args := m.Called(ctx, orgID, competence)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oblapp.GenerationReport), args.Error(1)
}

type mockUploadService struct{ mock.Mock }

var _ intakeapp.UploadService = (*mockUploadService)(nil)

func (m *mockUploadService) Create(ctx context.Context, orgID common.OrgID, req intakeapp.CreateUploadRequest) (*intake.StagingUpload, error) {
	args := m.Called(ctx, orgID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*intake.StagingUpload), args.Error(1)
}

func (m *mockUploadService) Get(ctx context.Context, orgID common.OrgID, id common.ID) (*intake.StagingUpload, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*intake.StagingUpload), args.Error(1)
}

func (m *mockUploadService) List(ctx context.Context, orgID common.OrgID, filter intake.StagingFilter, page common.Pagination) ([]*intake.StagingUpload, int64, error) {
	args := m.Called(ctx, orgID, filter, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*intake.StagingUpload), args.Get(1).(int64), args.Error(2)
}

func (m *mockUploadService) Resolve(ctx context.Context, orgID common.OrgID, req intakeapp.ResolveUploadRequest) (*intake.StagingUpload, error) {
	args := m.Called(ctx, orgID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*intake.StagingUpload), args.Error(1)
}

func (m *mockUploadService) Delete(ctx context.Context, orgID common.OrgID, id common.ID) error {
	args := m.Called(ctx, orgID, id)
	return args.Error(0)
}

type mockProcessorService struct{ mock.Mock }

var _ intakeapp.ProcessorService = (*mockProcessorService)(nil)

func (m *mockProcessorService) ProcessUpload(ctx context.Context, orgID common.OrgID, uploadID common.ID) (*intake.StagingUpload, error) {
	args := m.Called(ctx, orgID, uploadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*intake.StagingUpload), args.Error(1)
}

func (m *mockProcessorService) ProcessPending(ctx context.Context, orgID common.OrgID) (int, error) {
	args := m.Called(ctx, orgID)
	return args.Int(0), args.Error(1)
}

type mockClassifierService struct{ mock.Mock }

var _ intakeapp.ClassifierService = (*mockClassifierService)(nil)

func (m *mockClassifierService) Classify(ctx context.Context, orgID common.OrgID, uploadID common.ID, deliveredBy common.UserID) (*intake.Document, error) {
	args := m.Called(ctx, orgID, uploadID, deliveredBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*intake.Document), args.Error(1)
}

func (m *mockClassifierService) ClassifyBatch(ctx context.Context, orgID common.OrgID, uploadIDs []common.ID, deliveredBy common.UserID) *common.BatchSummary {
	args := m.Called(ctx, orgID, uploadIDs, deliveredBy)
	return args.Get(0).(*common.BatchSummary)
}

type mockDocumentService struct{ mock.Mock }

var _ intakeapp.DocumentService = (*mockDocumentService)(nil)

func (m *mockDocumentService) Get(ctx context.Context, orgID common.OrgID, id common.ID) (*intake.Document, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*intake.Document), args.Error(1)
}

func (m *mockDocumentService) List(ctx context.Context, orgID common.OrgID, filter intake.DocumentFilter, page common.Pagination) ([]*intake.Document, int64, error) {
	args := m.Called(ctx, orgID, filter, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*intake.Document), args.Get(1).(int64), args.Error(2)
}

func (m *mockDocumentService) View(ctx context.Context, orgID common.OrgID, id common.ID) (string, error) {
	args := m.Called(ctx, orgID, id)
	return args.String(0), args.Error(1)
}

func (m *mockDocumentService) SoftDelete(ctx context.Context, orgID common.OrgID, id common.ID) error {
	args := m.Called(ctx, orgID, id)
	return args.Error(0)
}

type mockQueueService struct{ mock.Mock }

var _ deliveryapp.QueueService = (*mockQueueService)(nil)

func (m *mockQueueService) Get(ctx context.Context, orgID common.OrgID, id common.ID) (*deliverydomain.QueueItem, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deliverydomain.QueueItem), args.Error(1)
}

func (m *mockQueueService) List(ctx context.Context, orgID common.OrgID, status *deliverydomain.Status, page common.Pagination) ([]*deliverydomain.QueueItem, int64, error) {
	args := m.Called(ctx, orgID, status, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*deliverydomain.QueueItem), args.Get(1).(int64), args.Error(2)
}

func (m *mockQueueService) Cancel(ctx context.Context, orgID common.OrgID, id common.ID, actor common.UserID) (*deliverydomain.QueueItem, error) {
	args := m.Called(ctx, orgID, id, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deliverydomain.QueueItem), args.Error(1)
}

func (m *mockQueueService) Reprocess(ctx context.Context, orgID common.OrgID, id common.ID, actor common.UserID) (*deliverydomain.QueueItem, error) {
	args := m.Called(ctx, orgID, id, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deliverydomain.QueueItem), args.Error(1)
}
