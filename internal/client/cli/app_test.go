package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/dropvault/internal/client/api"
)

type fakeAPI struct {
	token     string
	setTokens []string
	payloads  []api.Payload
	tasks     []api.PendingTask
	deleted   []string
	created   *api.Payload
	snapshots int
	restored  int
	err       error
}

func (f *fakeAPI) Authenticate(ctx context.Context, secret string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}
func (f *fakeAPI) SetToken(token string) { f.setTokens = append(f.setTokens, token) }
func (f *fakeAPI) CreatePayload(ctx context.Context, name string, refs []string) (*api.Payload, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = &api.Payload{Code: "new-code", Name: name, ContentRefs: refs}
	return f.created, nil
}
func (f *fakeAPI) ListPayloads(ctx context.Context) ([]api.Payload, error) {
	return f.payloads, f.err
}
func (f *fakeAPI) DeletePayload(ctx context.Context, code string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, code)
	return nil
}
func (f *fakeAPI) PendingTasks(ctx context.Context) ([]api.PendingTask, error) {
	return f.tasks, f.err
}
func (f *fakeAPI) Snapshot(ctx context.Context) error {
	f.snapshots++
	return f.err
}
func (f *fakeAPI) Restore(ctx context.Context) (int, error) {
	return f.restored, f.err
}

func newTestApp(f *fakeAPI) (*App, *bytes.Buffer) {
	var buf bytes.Buffer
	return &App{api: f, out: &buf}, &buf
}

func TestRun_NoCommand(t *testing.T) {
	app, _ := newTestApp(&fakeAPI{})

	err := app.Run(context.Background(), []string{"-a", "http://x"})
	require.Error(t, err)
}

func TestRun_Auth(t *testing.T) {
	app, out := newTestApp(&fakeAPI{token: "tok-1"})

	err := app.Run(context.Background(), []string{"auth", "-secret", "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1\n", out.String())
}

func TestRun_AuthMissingSecret(t *testing.T) {
	app, _ := newTestApp(&fakeAPI{})

	err := app.Run(context.Background(), []string{"auth"})
	require.Error(t, err)
}

func TestRun_CreatePrintsCode(t *testing.T) {
	f := &fakeAPI{}
	app, out := newTestApp(f)

	err := app.Run(context.Background(), []string{"create", "-name", "movies", "-refs", "101,102"})
	require.NoError(t, err)
	assert.Equal(t, "new-code\n", out.String())
	require.NotNil(t, f.created)
	assert.Equal(t, []string{"101", "102"}, f.created.ContentRefs)
}

func TestRun_List(t *testing.T) {
	f := &fakeAPI{payloads: []api.Payload{
		{Code: "abc", Name: "movies", ContentRefs: []string{"1", "2"}, AccessCount: 5},
	}}
	app, out := newTestApp(f)

	err := app.Run(context.Background(), []string{"list"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "abc")
	assert.Contains(t, out.String(), "5 accesses")
}

func TestRun_Delete(t *testing.T) {
	f := &fakeAPI{}
	app, _ := newTestApp(f)

	err := app.Run(context.Background(), []string{"delete", "-code", "abc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, f.deleted)
}

func TestRun_TasksShowsOverdue(t *testing.T) {
	f := &fakeAPI{tasks: []api.PendingTask{
		{ID: "ch:1", SourcePayload: "abc", DueAt: time.Now(), Overdue: true},
		{ID: "ch:2", SourcePayload: "def", DueAt: time.Now(), MinutesRemaining: 10},
	}}
	app, out := newTestApp(f)

	err := app.Run(context.Background(), []string{"tasks"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "overdue")
	assert.Contains(t, out.String(), "10 min left")
}

func TestRun_TokenFromEnv(t *testing.T) {
	t.Setenv("DROPVAULT_TOKEN", "env-token")
	f := &fakeAPI{}
	app, _ := newTestApp(f)

	err := app.Run(context.Background(), []string{"list"})
	require.NoError(t, err)
	assert.Equal(t, []string{"env-token"}, f.setTokens)
}

func TestRun_APIErrorPropagates(t *testing.T) {
	f := &fakeAPI{err: errors.New("server unreachable")}
	app, _ := newTestApp(f)

	err := app.Run(context.Background(), []string{"snapshot"})
	require.ErrorContains(t, err, "server unreachable")
}

func TestRun_Restore(t *testing.T) {
	f := &fakeAPI{restored: 3}
	app, out := newTestApp(f)

	err := app.Run(context.Background(), []string{"restore"})
	require.NoError(t, err)
	assert.Equal(t, "restored 3 tables\n", out.String())
}
