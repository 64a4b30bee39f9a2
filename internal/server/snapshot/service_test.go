package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/dropvault/internal/common"
	"github.com/dmitrijs2005/dropvault/internal/dbx"
	"github.com/dmitrijs2005/dropvault/internal/logging"
	"github.com/dmitrijs2005/dropvault/internal/server/models"
	grantsrepo "github.com/dmitrijs2005/dropvault/internal/server/repositories/grants"
	payloadsrepo "github.com/dmitrijs2005/dropvault/internal/server/repositories/payloads"
	purgequeuerepo "github.com/dmitrijs2005/dropvault/internal/server/repositories/purgequeue"
	snapshotsrepo "github.com/dmitrijs2005/dropvault/internal/server/repositories/snapshots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeSink struct {
	objects   map[string][]byte
	uploads   int
	uploadErr error
}

func newFakeSink() *fakeSink {
	return &fakeSink{objects: make(map[string][]byte)}
}

func (f *fakeSink) Upload(ctx context.Context, label string, data []byte) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads++
	key := fmt.Sprintf("snapshots/%s/%d.json", label, f.uploads)
	f.objects[key] = data
	return key, nil
}

func (f *fakeSink) Download(ctx context.Context, remoteKey string) ([]byte, error) {
	data, ok := f.objects[remoteKey]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return data, nil
}

type fakePayloadsRepo struct{ records []*models.Payload }

func (f *fakePayloadsRepo) Create(ctx context.Context, p *models.Payload) error { return nil }
func (f *fakePayloadsRepo) Get(ctx context.Context, code string) (*models.Payload, error) {
	return nil, common.ErrorNotFound
}
func (f *fakePayloadsRepo) Delete(ctx context.Context, code string) error { return nil }
func (f *fakePayloadsRepo) SelectAll(ctx context.Context) ([]*models.Payload, error) {
	return f.records, nil
}
func (f *fakePayloadsRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(f.records)), nil
}
func (f *fakePayloadsRepo) ReplaceAll(ctx context.Context, records []*models.Payload) error {
	f.records = records
	return nil
}

type fakeGrantsRepo struct{ records []*models.AccessGrant }

func (f *fakeGrantsRepo) Get(ctx context.Context, code, requesterID string) (*models.AccessGrant, error) {
	return nil, common.ErrorNotFound
}
func (f *fakeGrantsRepo) Create(ctx context.Context, g *models.AccessGrant) (bool, error) {
	return true, nil
}
func (f *fakeGrantsRepo) Reset(ctx context.Context, g *models.AccessGrant) error       { return nil }
func (f *fakeGrantsRepo) DeleteByCode(ctx context.Context, code string) (int64, error) { return 0, nil }
func (f *fakeGrantsRepo) CountByCode(ctx context.Context, code string) (int64, error)  { return 0, nil }
func (f *fakeGrantsRepo) SelectAll(ctx context.Context) ([]*models.AccessGrant, error) {
	return f.records, nil
}
func (f *fakeGrantsRepo) ReplaceAll(ctx context.Context, records []*models.AccessGrant) error {
	f.records = records
	return nil
}

type fakeQueueRepo struct{ records []*models.PurgeTask }

func (f *fakeQueueRepo) Create(ctx context.Context, t *models.PurgeTask) error { return nil }
func (f *fakeQueueRepo) SelectDue(ctx context.Context, now time.Time, limit int) ([]*models.PurgeTask, error) {
	return nil, nil
}
func (f *fakeQueueRepo) SelectByPayload(ctx context.Context, code string) ([]*models.PurgeTask, error) {
	return nil, nil
}
func (f *fakeQueueRepo) SelectAll(ctx context.Context) ([]*models.PurgeTask, error) {
	return f.records, nil
}
func (f *fakeQueueRepo) Delete(ctx context.Context, id string) (bool, error) { return false, nil }
func (f *fakeQueueRepo) ReplaceAll(ctx context.Context, records []*models.PurgeTask) error {
	f.records = records
	return nil
}

type fakePointersRepo struct{ pointers map[string]*models.SnapshotPointer }

func newFakePointersRepo() *fakePointersRepo {
	return &fakePointersRepo{pointers: make(map[string]*models.SnapshotPointer)}
}

func (f *fakePointersRepo) Get(ctx context.Context, tableName string) (*models.SnapshotPointer, error) {
	p, ok := f.pointers[tableName]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return p, nil
}

func (f *fakePointersRepo) Upsert(ctx context.Context, p *models.SnapshotPointer) error {
	f.pointers[p.TableName] = p
	return nil
}

type fakeRepoManager struct {
	payloads *fakePayloadsRepo
	grants   *fakeGrantsRepo
	queue    *fakeQueueRepo
	pointers *fakePointersRepo
}

func (f *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (f *fakeRepoManager) Payloads(db dbx.DBTX) payloadsrepo.Repository        { return f.payloads }
func (f *fakeRepoManager) Grants(db dbx.DBTX) grantsrepo.Repository            { return f.grants }
func (f *fakeRepoManager) PurgeQueue(db dbx.DBTX) purgequeuerepo.Repository    { return f.queue }
func (f *fakeRepoManager) Snapshots(db dbx.DBTX) snapshotsrepo.Repository     { return f.pointers }

func newTestService(t *testing.T) (*Service, *fakeRepoManager, *fakeSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rm := &fakeRepoManager{
		payloads: &fakePayloadsRepo{},
		grants:   &fakeGrantsRepo{},
		queue:    &fakeQueueRepo{},
		pointers: newFakePointersRepo(),
	}
	sink := newFakeSink()
	return NewService(db, rm, sink, logging.NewDiscardLogger()), rm, sink, mock
}

// --- tests ---

func TestSnapshotRestore_RegistryRoundTrip(t *testing.T) {
	svc, rm, _, mock := newTestService(t)

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rm.payloads.records = []*models.Payload{
		{Code: "abc", Name: "movies", ContentRefs: []string{"r1", "r2"}, CreatedAt: created},
		{Code: "def", Name: "docs", ContentRefs: []string{"r3"}, CreatedAt: created.Add(time.Minute)},
	}

	require.NoError(t, svc.Snapshot(context.Background(), TableRegistry))

	// Wipe local state, then restore from the sink.
	rm.payloads.records = nil
	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, svc.Restore(context.Background(), TableRegistry))

	require.Len(t, rm.payloads.records, 2)
	assert.Equal(t, "abc", rm.payloads.records[0].Code)
	assert.Equal(t, []string{"r1", "r2"}, rm.payloads.records[0].ContentRefs)
	assert.True(t, rm.payloads.records[0].CreatedAt.Equal(created))
}

func TestSnapshot_UploadFailureLeavesPointerUntouched(t *testing.T) {
	svc, rm, sink, _ := newTestService(t)

	previous := &models.SnapshotPointer{TableName: TableGrants, RemoteKey: "snapshots/grants/old.json", UploadedAt: time.Now()}
	require.NoError(t, rm.pointers.Upsert(context.Background(), previous))

	sink.uploadErr = errors.New("sink unreachable")
	err := svc.Snapshot(context.Background(), TableGrants)
	require.Error(t, err)

	got, err := rm.pointers.Get(context.Background(), TableGrants)
	require.NoError(t, err)
	assert.Equal(t, "snapshots/grants/old.json", got.RemoteKey)
}

func TestRestore_NoPointer(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	err := svc.Restore(context.Background(), TablePurgeQueue)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRestore_CorruptSnapshotIsIsolated(t *testing.T) {
	svc, rm, sink, mock := newTestService(t)

	// A valid grants snapshot and a corrupt registry snapshot.
	rm.grants.records = []*models.AccessGrant{
		{Code: "abc", RequesterID: "u-1", FirstAccessAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, svc.Snapshot(context.Background(), TableGrants))

	sink.objects["snapshots/registry/bad.json"] = []byte(`{not json`)
	require.NoError(t, rm.pointers.Upsert(context.Background(), &models.SnapshotPointer{
		TableName: TableRegistry, RemoteKey: "snapshots/registry/bad.json", UploadedAt: time.Now(),
	}))

	err := svc.Restore(context.Background(), TableRegistry)
	require.ErrorIs(t, err, common.ErrCorruptSnapshot)

	// RestoreAll still installs the healthy table.
	rm.grants.records = nil
	mock.ExpectBegin()
	mock.ExpectCommit()
	restored := svc.RestoreAll(context.Background())
	assert.Equal(t, 1, restored)
	require.Len(t, rm.grants.records, 1)
	assert.Equal(t, "u-1", rm.grants.records[0].RequesterID)
}

func TestSnapshotAll_ContinuesPastFailures(t *testing.T) {
	svc, rm, sink, _ := newTestService(t)

	rm.payloads.records = []*models.Payload{{Code: "abc", Name: "x", ContentRefs: []string{"r"}, CreatedAt: time.Now()}}

	require.NoError(t, svc.SnapshotAll(context.Background()))
	assert.Equal(t, len(Tables), sink.uploads)

	sink.uploadErr = errors.New("sink unreachable")
	err := svc.SnapshotAll(context.Background())
	require.Error(t, err)
}

func TestSnapshot_UnknownTable(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	err := svc.Snapshot(context.Background(), "bogus")
	require.ErrorIs(t, err, common.ErrValidation)
}
