package intake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	deliverydomain "github.com/contabil/fiscore/internal/domain/delivery"
	"github.com/contabil/fiscore/internal/domain/intake"
	"github.com/contabil/fiscore/internal/domain/obligation"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
	"github.com/contabil/fiscore/internal/infrastructure/storage/minio"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

const testOrg = common.OrgID("org-1")

// ─────────────────────────────────────────────────────────────────────────────
// In-memory fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeStagingRepo struct {
	mu      sync.Mutex
	uploads map[common.ID]*intake.StagingUpload
}

func newFakeStagingRepo() *fakeStagingRepo {
	return &fakeStagingRepo{uploads: make(map[common.ID]*intake.StagingUpload)}
}

func (r *fakeStagingRepo) Create(_ context.Context, u *intake.StagingUpload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *u
	r.uploads[u.ID] = &copied
	return nil
}

func (r *fakeStagingRepo) FindByID(_ context.Context, _ common.OrgID, id common.ID) (*intake.StagingUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeUploadNotFound, "upload not found")
	}
	copied := *u
	return &copied, nil
}

func (r *fakeStagingRepo) Update(_ context.Context, u *intake.StagingUpload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.uploads[u.ID]; !ok {
		return errors.New(errors.ErrCodeUploadNotFound, "upload not found")
	}
	copied := *u
	r.uploads[u.ID] = &copied
	return nil
}

func (r *fakeStagingRepo) Delete(_ context.Context, _ common.OrgID, id common.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[id]
	if !ok {
		return errors.New(errors.ErrCodeUploadNotFound, "upload not found")
	}
	if u.State != intake.UploadPending {
		return errors.New(errors.ErrCodeUploadNotPending, "only pending uploads can be deleted")
	}
	delete(r.uploads, id)
	return nil
}

func (r *fakeStagingRepo) List(_ context.Context, _ common.OrgID, filter intake.StagingFilter, _ common.Pagination) ([]*intake.StagingUpload, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*intake.StagingUpload
	for _, u := range r.uploads {
		if filter.State != nil && u.State != *filter.State {
			continue
		}
		if filter.OCRStatus != nil && u.OCRStatus != *filter.OCRStatus {
			continue
		}
		if filter.ReadyForBatch && !u.ReadyForBatch() {
			continue
		}
		copied := *u
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

type fakeDocumentRepo struct {
	mu        sync.Mutex
	documents map[common.ID]*intake.Document
	createErr error
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{documents: make(map[common.ID]*intake.Document)}
}

func (r *fakeDocumentRepo) Create(_ context.Context, d *intake.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.documents {
		if existing.SourceUploadID == d.SourceUploadID {
			return errors.New(errors.ErrCodeConflict, "document already promoted from this upload")
		}
	}
	copied := *d
	r.documents[d.ID] = &copied
	return nil
}

func (r *fakeDocumentRepo) FindByID(_ context.Context, _ common.OrgID, id common.ID) (*intake.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.documents[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeDocumentNotFound, "document not found")
	}
	copied := *d
	return &copied, nil
}

func (r *fakeDocumentRepo) FindBySourceUpload(_ context.Context, _ common.OrgID, uploadID common.ID) (*intake.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.documents {
		if d.SourceUploadID == uploadID {
			copied := *d
			return &copied, nil
		}
	}
	return nil, errors.New(errors.ErrCodeDocumentNotFound, "document not found")
}

func (r *fakeDocumentRepo) Update(_ context.Context, d *intake.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.documents[d.ID]; !ok {
		return errors.New(errors.ErrCodeDocumentNotFound, "document not found")
	}
	copied := *d
	r.documents[d.ID] = &copied
	return nil
}

func (r *fakeDocumentRepo) List(_ context.Context, _ common.OrgID, filter intake.DocumentFilter, _ common.Pagination) ([]*intake.Document, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*intake.Document
	for _, d := range r.documents {
		if d.Deleted() && !filter.IncludeDeleted {
			continue
		}
		if filter.ClientID != nil && d.ClientID != *filter.ClientID {
			continue
		}
		copied := *d
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

type fakeQueueRepo struct {
	mu    sync.Mutex
	items []*deliverydomain.QueueItem
}

func (r *fakeQueueRepo) Create(_ context.Context, item *deliverydomain.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *item
	r.items = append(r.items, &copied)
	return nil
}

func (r *fakeQueueRepo) FindByID(_ context.Context, _ common.OrgID, id common.ID) (*deliverydomain.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.ID == id {
			copied := *item
			return &copied, nil
		}
	}
	return nil, errors.New(errors.ErrCodeDeliveryNotFound, "queue item not found")
}

func (r *fakeQueueRepo) Update(_ context.Context, item *deliverydomain.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.items {
		if existing.ID == item.ID {
			copied := *item
			r.items[i] = &copied
			return nil
		}
	}
	return errors.New(errors.ErrCodeDeliveryNotFound, "queue item not found")
}

func (r *fakeQueueRepo) FindDue(_ context.Context, now time.Time, limit int) ([]*deliverydomain.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*deliverydomain.QueueItem
	for _, item := range r.items {
		if item.Due(now) {
			copied := *item
			out = append(out, &copied)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeQueueRepo) List(_ context.Context, _ common.OrgID, _ *deliverydomain.Status, _ common.Pagination) ([]*deliverydomain.QueueItem, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*deliverydomain.QueueItem, 0, len(r.items))
	for _, item := range r.items {
		copied := *item
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

func (r *fakeQueueRepo) CountByStatus(_ context.Context, status deliverydomain.Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, item := range r.items {
		if item.Status == status {
			n++
		}
	}
	return n, nil
}

// fakeFileStore implements minio.FileStore in memory with the same
// collision semantics as the real store.
type fakeFileStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// moveErrFor fails the Move whose destination matches the key once,
	// simulating a storage outage mid-promotion.
	moveErrFor map[string]error
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{
		objects:    make(map[string][]byte),
		moveErrFor: make(map[string]error),
	}
}

func (f *fakeFileStore) Upload(_ context.Context, path string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = data
	return nil
}

func (f *fakeFileStore) Get(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	if !ok {
		return nil, minio.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeFileStore) Exists(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok, nil
}

func (f *fakeFileStore) Move(_ context.Context, srcPath, dstPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.moveErrFor[dstPath]; ok {
		delete(f.moveErrFor, dstPath)
		return err
	}
	if _, ok := f.objects[dstPath]; ok {
		return minio.ErrDestinationExists
	}
	data, ok := f.objects[srcPath]
	if !ok {
		return minio.ErrObjectNotFound
	}
	f.objects[dstPath] = data
	delete(f.objects, srcPath)
	return nil
}

func (f *fakeFileStore) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, path)
	return nil
}

func (f *fakeFileStore) PresignedGetURL(_ context.Context, path string, _ time.Duration) (string, error) {
	return "https://files.example.test/" + path, nil
}

type fakeExtractor struct {
	result *intake.ExtractionResult
	err    error
}

func (e *fakeExtractor) Extract(_ context.Context, _ intake.ExtractionRequest) (*intake.ExtractionResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

type cascadeCall struct {
	ClientID     common.ID
	ObligationID common.ID
	Competence   obligation.Competence
}

type fakeCompleter struct {
	mu    sync.Mutex
	calls []cascadeCall
	err   error
}

func (c *fakeCompleter) CompleteFromDocument(_ context.Context, _ common.OrgID, clientID, obligationID common.ID, competence obligation.Competence) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, cascadeCall{ClientID: clientID, ObligationID: obligationID, Competence: competence})
	return c.err
}

type publishedEvent struct {
	Topic     string
	EventType string
	Payload   interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) PublishJSON(_ context.Context, topic, _ string, eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, EventType: eventType, Payload: payload})
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func testMetrics() *prometheus.AppMetrics {
	return prometheus.NewAppMetrics(prometheus.NewNopCollector())
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func mustDecimal(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return &d
}

// seedResolvedUpload stages a file with finished extraction and resolves
// it so it is ready for promotion, batch mode included.
func seedResolvedUpload(t *testing.T, repo *fakeStagingRepo, files *fakeFileStore, fileName string) (*intake.StagingUpload, common.ID, common.ID) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	upload, err := intake.NewStagingUpload(testOrg, "user-1", fileName, "", 128, now)
	require.NoError(t, err)
	upload.FilePath = "staging/org-1/" + string(upload.ID) + "_" + fileName
	upload.OCRStatus = intake.OCRSuccess
	require.NoError(t, files.Upload(ctx, upload.FilePath, []byte("pdf bytes"), "application/pdf"))

	clientID, obligationID := common.NewID(), common.NewID()
	require.NoError(t, upload.Resolve(clientID, obligationID, "03/2025", mustDecimal(t, "418.73"), nil, now))
	require.NoError(t, repo.Create(ctx, upload))
	return upload, clientID, obligationID
}
