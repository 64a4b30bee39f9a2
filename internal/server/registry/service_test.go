package registry

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/dropvault/internal/common"
	"github.com/dmitrijs2005/dropvault/internal/dbx"
	"github.com/dmitrijs2005/dropvault/internal/logging"
	"github.com/dmitrijs2005/dropvault/internal/server/models"
	"github.com/dmitrijs2005/dropvault/internal/server/purge"
	grantsrepo "github.com/dmitrijs2005/dropvault/internal/server/repositories/grants"
	payloadsrepo "github.com/dmitrijs2005/dropvault/internal/server/repositories/payloads"
	purgequeuerepo "github.com/dmitrijs2005/dropvault/internal/server/repositories/purgequeue"
	snapshotsrepo "github.com/dmitrijs2005/dropvault/internal/server/repositories/snapshots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakePayloadsRepo struct {
	order     []string
	items     map[string]*models.Payload
	createErr error
}

func newFakePayloadsRepo() *fakePayloadsRepo {
	return &fakePayloadsRepo{items: make(map[string]*models.Payload)}
}

func (f *fakePayloadsRepo) Create(ctx context.Context, p *models.Payload) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.items[p.Code]; ok {
		return common.ErrCodeCollision
	}
	f.items[p.Code] = p
	f.order = append(f.order, p.Code)
	return nil
}

func (f *fakePayloadsRepo) Get(ctx context.Context, code string) (*models.Payload, error) {
	p, ok := f.items[code]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return p, nil
}

func (f *fakePayloadsRepo) Delete(ctx context.Context, code string) error {
	if _, ok := f.items[code]; !ok {
		return common.ErrorNotFound
	}
	delete(f.items, code)
	for i, c := range f.order {
		if c == code {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakePayloadsRepo) SelectAll(ctx context.Context) ([]*models.Payload, error) {
	var result []*models.Payload
	for _, code := range f.order {
		result = append(result, f.items[code])
	}
	return result, nil
}

func (f *fakePayloadsRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(f.items)), nil
}

func (f *fakePayloadsRepo) ReplaceAll(ctx context.Context, records []*models.Payload) error {
	f.items = make(map[string]*models.Payload)
	f.order = nil
	for _, p := range records {
		f.items[p.Code] = p
		f.order = append(f.order, p.Code)
	}
	return nil
}

type fakeGrantsRepo struct {
	deleted []string
	counts  map[string]int64
}

func (f *fakeGrantsRepo) Get(ctx context.Context, code, requesterID string) (*models.AccessGrant, error) {
	return nil, common.ErrorNotFound
}
func (f *fakeGrantsRepo) Create(ctx context.Context, g *models.AccessGrant) (bool, error) {
	return true, nil
}
func (f *fakeGrantsRepo) Reset(ctx context.Context, g *models.AccessGrant) error { return nil }
func (f *fakeGrantsRepo) DeleteByCode(ctx context.Context, code string) (int64, error) {
	f.deleted = append(f.deleted, code)
	return f.counts[code], nil
}
func (f *fakeGrantsRepo) CountByCode(ctx context.Context, code string) (int64, error) {
	return f.counts[code], nil
}
func (f *fakeGrantsRepo) SelectAll(ctx context.Context) ([]*models.AccessGrant, error) {
	return nil, nil
}
func (f *fakeGrantsRepo) ReplaceAll(ctx context.Context, records []*models.AccessGrant) error {
	return nil
}

type fakeRepoManager struct {
	payloads *fakePayloadsRepo
	grants   *fakeGrantsRepo
}

func (f *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (f *fakeRepoManager) Payloads(db dbx.DBTX) payloadsrepo.Repository        { return f.payloads }
func (f *fakeRepoManager) Grants(db dbx.DBTX) grantsrepo.Repository            { return f.grants }
func (f *fakeRepoManager) PurgeQueue(db dbx.DBTX) purgequeuerepo.Repository    { return nil }
func (f *fakeRepoManager) Snapshots(db dbx.DBTX) snapshotsrepo.Repository     { return nil }

type fakePurger struct {
	executedFor []string
	results     []purge.ExecutionResult
	err         error
}

func (f *fakePurger) ExecuteForPayload(ctx context.Context, code string) ([]purge.ExecutionResult, error) {
	f.executedFor = append(f.executedFor, code)
	return f.results, f.err
}

func newTestService(t *testing.T) (*Service, *fakeRepoManager, *fakePurger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rm := &fakeRepoManager{
		payloads: newFakePayloadsRepo(),
		grants:   &fakeGrantsRepo{counts: map[string]int64{}},
	}
	purger := &fakePurger{}
	return NewService(db, rm, purger, logging.NewDiscardLogger()), rm, purger, mock
}

// --- tests ---

func TestCreate_EmptyRefsRejected(t *testing.T) {
	svc, rm, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "empty", nil)
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, rm.payloads.items, "no registry entry may be produced")
}

func TestCreate_GeneratesUnguessableCode(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	p, err := svc.Create(context.Background(), "movies", []string{"m-1", "m-2"})
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(p.Code)
	require.NoError(t, err, "code must be url-safe base64")
	assert.Len(t, raw, codeSizeBytes)
	assert.Equal(t, []string{"m-1", "m-2"}, p.ContentRefs)
}

func TestCreate_ResolvePreservesOrder(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	refs := []string{"r3", "r1", "r2"}
	p, err := svc.Create(context.Background(), "ordered", refs)
	require.NoError(t, err)

	got, err := svc.Resolve(context.Background(), p.Code)
	require.NoError(t, err)
	assert.Equal(t, refs, got.ContentRefs, "delivery order is the submitted order")
}

func TestCreate_PersistErrorSurfaced(t *testing.T) {
	svc, rm, _, _ := newTestService(t)
	rm.payloads.createErr = errors.New("db down")

	_, err := svc.Create(context.Background(), "movies", []string{"m-1"})
	require.Error(t, err)
}

func TestResolve_UnknownCode(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Resolve(context.Background(), "ghost")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDelete_CascadesGrantsAndExecutesTasks(t *testing.T) {
	svc, rm, purger, mock := newTestService(t)

	p, err := svc.Create(context.Background(), "movies", []string{"m-1"})
	require.NoError(t, err)
	rm.grants.counts[p.Code] = 2

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, svc.Delete(context.Background(), p.Code))
	assert.Equal(t, []string{p.Code}, rm.grants.deleted)
	assert.Equal(t, []string{p.Code}, purger.executedFor)

	_, err = svc.Resolve(context.Background(), p.Code)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDelete_NotFound(t *testing.T) {
	svc, _, purger, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := svc.Delete(context.Background(), "ghost")
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Empty(t, purger.executedFor, "no purge execution for an unknown code")
}

func TestDelete_PurgeFailureDoesNotUndoDeletion(t *testing.T) {
	svc, _, purger, mock := newTestService(t)
	purger.err = errors.New("queue unavailable")

	p, err := svc.Create(context.Background(), "movies", []string{"m-1"})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, svc.Delete(context.Background(), p.Code))
}

func TestStatus_ReportsAccessCounts(t *testing.T) {
	svc, rm, _, _ := newTestService(t)

	a, err := svc.Create(context.Background(), "first", []string{"r1"})
	require.NoError(t, err)
	b, err := svc.Create(context.Background(), "second", []string{"r2"})
	require.NoError(t, err)
	rm.grants.counts[a.Code] = 3

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, a.Code, status[0].Payload.Code)
	assert.Equal(t, int64(3), status[0].AccessCount)
	assert.Equal(t, b.Code, status[1].Payload.Code)
	assert.Equal(t, int64(0), status[1].AccessCount)
}

func TestList_IsEmptyInitially(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	got, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
