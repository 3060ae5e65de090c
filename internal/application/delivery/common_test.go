package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	deliverydomain "github.com/contabil/fiscore/internal/domain/delivery"
	"github.com/contabil/fiscore/internal/domain/intake"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

const testOrg common.OrgID = "org-1"

// ─────────────────────────────────────────────────────────────────────────────
// Queue repository fake
// ─────────────────────────────────────────────────────────────────────────────

type fakeQueueRepo struct {
	mu    sync.Mutex
	items map[common.ID]*deliverydomain.QueueItem
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{items: make(map[common.ID]*deliverydomain.QueueItem)}
}

func (r *fakeQueueRepo) Create(_ context.Context, item *deliverydomain.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *fakeQueueRepo) FindByID(_ context.Context, orgID common.OrgID, id common.ID) (*deliverydomain.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.OrgID != orgID {
		return nil, errors.New(errors.ErrCodeDeliveryNotFound, "delivery item not found")
	}
	cp := *item
	return &cp, nil
}

func (r *fakeQueueRepo) Update(_ context.Context, item *deliverydomain.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; !ok {
		return errors.New(errors.ErrCodeDeliveryNotFound, "delivery item not found")
	}
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *fakeQueueRepo) FindDue(_ context.Context, now time.Time, limit int) ([]*deliverydomain.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*deliverydomain.QueueItem
	for _, item := range r.items {
		if item.Due(now) {
			cp := *item
			due = append(due, &cp)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (r *fakeQueueRepo) List(_ context.Context, orgID common.OrgID, status *deliverydomain.Status, page common.Pagination) ([]*deliverydomain.QueueItem, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*deliverydomain.QueueItem
	for _, item := range r.items {
		if item.OrgID != orgID {
			continue
		}
		if status != nil && item.Status != *status {
			continue
		}
		cp := *item
		out = append(out, &cp)
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

func (r *fakeQueueRepo) get(t *testing.T, id common.ID) *deliverydomain.QueueItem {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	require.True(t, ok, "queue item %s not found", id)
	cp := *item
	return &cp
}

// ─────────────────────────────────────────────────────────────────────────────
// Document repository fake
// ─────────────────────────────────────────────────────────────────────────────

type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[common.ID]*intake.Document
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: make(map[common.ID]*intake.Document)}
}

func (r *fakeDocumentRepo) Create(_ context.Context, d *intake.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.docs[d.ID] = &cp
	return nil
}

func (r *fakeDocumentRepo) FindByID(_ context.Context, orgID common.OrgID, id common.ID) (*intake.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.OrgID != orgID {
		return nil, errors.New(errors.ErrCodeDocumentNotFound, "document not found")
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDocumentRepo) FindBySourceUpload(_ context.Context, orgID common.OrgID, uploadID common.ID) (*intake.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.OrgID == orgID && d.SourceUploadID == uploadID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, errors.New(errors.ErrCodeDocumentNotFound, "document not found")
}

func (r *fakeDocumentRepo) Update(_ context.Context, d *intake.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.docs[d.ID] = &cp
	return nil
}

func (r *fakeDocumentRepo) List(_ context.Context, orgID common.OrgID, _ intake.DocumentFilter, _ common.Pagination) ([]*intake.Document, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*intake.Document
	for _, d := range r.docs {
		if d.OrgID == orgID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, int64(len(out)), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Notifier and publisher fakes
// ─────────────────────────────────────────────────────────────────────────────

type sentNotification struct {
	ItemID     common.ID
	DocumentID common.ID
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification

	// errFor fails the next Send for the given item; consumed once.
	errFor map[common.ID]error
	// errAlways fails every Send.
	errAlways error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{errFor: make(map[common.ID]error)}
}

func (n *fakeNotifier) Send(_ context.Context, item *deliverydomain.QueueItem, doc *intake.Document) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.errAlways != nil {
		return n.errAlways
	}
	if err, ok := n.errFor[item.ID]; ok {
		delete(n.errFor, item.ID)
		return err
	}
	n.sent = append(n.sent, sentNotification{ItemID: item.ID, DocumentID: doc.ID})
	return nil
}

type publishedEvent struct {
	Topic     string
	Key       string
	EventType string
	Payload   interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) PublishJSON(_ context.Context, topic, key, eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Key: key, EventType: eventType, Payload: payload})
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Seed helpers
// ─────────────────────────────────────────────────────────────────────────────

func testMetrics() *prometheus.AppMetrics {
	return prometheus.NewAppMetrics(prometheus.NewNopCollector())
}

func seedDocument(t *testing.T, docs *fakeDocumentRepo) *intake.Document {
	t.Helper()
	doc := &intake.Document{
		ID:             common.NewID(),
		OrgID:          testOrg,
		ClientID:       common.NewID(),
		ObligationID:   common.NewID(),
		SourceUploadID: common.NewID(),
		FileName:       "darf.pdf",
		FilePath:       "org-1/client/darf.pdf",
		DeliveredAt:    time.Now().UTC(),
	}
	require.NoError(t, docs.Create(context.Background(), doc))
	return doc
}

func seedQueueItem(t *testing.T, queue *fakeQueueRepo, documentID common.ID, maxAttempts int) *deliverydomain.QueueItem {
	t.Helper()
	item, err := deliverydomain.NewQueueItem(testOrg, documentID, maxAttempts, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, queue.Create(context.Background(), item))
	return item
}
