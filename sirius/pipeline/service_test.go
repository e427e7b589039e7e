package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SiriusScan/go-ingest/sirius"
	"github.com/SiriusScan/go-ingest/sirius/events"
	"github.com/SiriusScan/go-ingest/sirius/kpi"
	"github.com/SiriusScan/go-ingest/sirius/metadata"
	"github.com/SiriusScan/go-ingest/sirius/postgres/models"
	"github.com/SiriusScan/go-ingest/sirius/snapshot"
	"github.com/SiriusScan/go-ingest/sirius/store"
)

type fakeMetadata struct {
	file    *metadata.FileInfo
	tool    *metadata.ToolInfo
	fileErr error
}

func (f *fakeMetadata) GetFile(ctx context.Context, id uint, token string) (*metadata.FileInfo, error) {
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	return f.file, nil
}

func (f *fakeMetadata) GetTool(ctx context.Context, id uint, token string) (*metadata.ToolInfo, error) {
	return f.tool, nil
}

type fakeUploads struct {
	statuses []string
	saved    []sirius.Pair
}

func (f *fakeUploads) SetFileStatus(ctx context.Context, fileID uint, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeUploads) SaveFindings(ctx context.Context, fileID, toolID uint, pairs []sirius.Pair) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.saved = append(f.saved, pairs...)
	return len(pairs), nil
}

func (f *fakeUploads) last() string {
	if len(f.statuses) == 0 {
		return ""
	}
	return f.statuses[len(f.statuses)-1]
}

type fakeEvents struct {
	mu     sync.Mutex
	events []events.NewEvent
}

func (f *fakeEvents) Record(ctx context.Context, e events.NewEvent) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return &models.Event{EventType: e.EventType}, nil
}

func (f *fakeEvents) types() []string {
	var out []string
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakePublisher struct {
	sent []Notification
}

func (f *fakePublisher) PublishJSON(ctx context.Context, qName string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.sent = append(f.sent, v.(Notification))
	return nil
}

// memKV is a map-backed store.KVStore.
type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) SetValue(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) SetValueWithTTL(ctx context.Context, key, value string, ttlSeconds int) error {
	return m.SetValue(ctx, key, value)
}

func (m *memKV) GetValue(ctx context.Context, key string) (store.ValkeyResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return store.ValkeyResponse{}, fmt.Errorf("%w: %s", store.ErrKeyNotFound, key)
	}
	return store.ValkeyResponse{Message: store.ValkeyValue{Value: v}}, nil
}

func (m *memKV) GetTTL(ctx context.Context, key string) (int, error) { return -1, nil }

func (m *memKV) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memKV) DeleteValue(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) Ping(ctx context.Context) error { return nil }

func (m *memKV) Close() error { return nil }

type failingKPI struct{}

func (failingKPI) Run(ctx context.Context, pairs []sirius.Pair) (*kpi.Result, error) {
	return &kpi.Result{RunID: "r1", Success: false}, errors.New("failed to persist KPI values")
}

type serviceFixture struct {
	svc       *Service
	meta      *fakeMetadata
	uploads   *fakeUploads
	events    *fakeEvents
	publisher *fakePublisher
	kv        *memKV
}

func newServiceFixture(t *testing.T, content []byte, runner KPIRunner) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		meta: &fakeMetadata{
			file: &metadata.FileInfo{ID: 5, Filename: "scan.nessus", FilePath: "/uploads/scan.nessus", ToolID: 2},
			tool: &metadata.ToolInfo{ID: 2, Name: "Nessus", Type: "Vulnerability_Scanner"},
		},
		uploads:   &fakeUploads{},
		events:    &fakeEvents{},
		publisher: &fakePublisher{},
		kv:        newMemKV(),
	}
	if runner == nil {
		runner = kpi.NewEngine(kpi.StaticCatalog{
			{ID: 1, Name: "High/Critical Vulnerabilities", Type: "security"},
			{ID: 2, Name: "Per Host", Type: "custom", Formula: "total_findings / unique_hosts"},
		}, kpi.DiscardValues{})
	}

	svc, err := NewService(ServiceDeps{
		Orchestrator: newNessusOrchestrator(),
		Metadata:     f.meta,
		Uploads:      f.uploads,
		KPI:          runner,
		Events:       f.events,
		Snapshots:    snapshot.NewSnapshotManager(f.kv, 0),
		StatusCache:  f.kv,
		Publisher:    f.publisher,
		NotifyQueue:  "kpi-updates",
		ReadFile: func(path string) ([]byte, error) {
			if path != "/uploads/scan.nessus" {
				return nil, os.ErrNotExist
			}
			return content, nil
		},
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func fixtureReport(t *testing.T) []byte {
	t.Helper()
	content, err := os.ReadFile("../parser/nessus/testdata/three_hosts.nessus")
	require.NoError(t, err)
	return content
}

func TestServiceProcessSuccess(t *testing.T) {
	t.Log("\n🔍 Testing a successful upload job...")

	f := newServiceFixture(t, fixtureReport(t), nil)
	ctx := context.Background()

	out, err := f.svc.Process(ctx, Job{FileID: 5, ToolID: 2, AuthToken: "tok"})
	require.NoError(t, err)

	assert.Equal(t, models.FileStatusProcessed, out.Status)
	assert.Equal(t, []string{models.FileStatusProcessed}, f.uploads.statuses)
	assert.Len(t, f.uploads.saved, 10)

	require.NotNil(t, out.KPI)
	assert.True(t, out.KPI.Success)
	assert.Len(t, out.KPI.CalculatedKPIs, 2)
	assert.NotEmpty(t, out.SnapshotID)

	assert.Equal(t, []string{models.EventTypeKPIRunCompleted, models.EventTypeUploadProcessed}, f.events.types())

	status, err := store.GetUploadStatus(ctx, f.kv, 5)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusProcessed, status.Status)
	assert.Equal(t, string(StageCompleted), status.Stage)
	assert.Equal(t, 10, status.Accepted)
	assert.Equal(t, out.KPI.RunID, status.RunID)

	require.Len(t, f.publisher.sent, 1)
	n := f.publisher.sent[0]
	assert.Equal(t, uint(5), n.FileID)
	assert.Equal(t, models.FileStatusProcessed, n.Status)
	assert.Equal(t, 2, n.KPIValues)

	t.Log("✅ Successful upload job test passed")
}

func TestServiceProcessInvalidReport(t *testing.T) {
	t.Log("\n🔍 Testing an upload job with an invalid report...")

	f := newServiceFixture(t, []byte("<html>not a scan</html>"), nil)
	out, err := f.svc.Process(context.Background(), Job{FileID: 5, ToolID: 2})
	require.Error(t, err)

	assert.Equal(t, models.FileStatusFailed, out.Status)
	assert.Equal(t, models.FileStatusFailed, f.uploads.last())
	assert.Empty(t, f.uploads.saved)
	assert.Nil(t, out.KPI, "no KPI run for a failed batch")
	assert.Equal(t, []string{models.EventTypeUploadFailed}, f.events.types())
	assert.Contains(t, f.events.events[0].Description, "not a valid Nessus report")

	require.Len(t, f.publisher.sent, 1)
	assert.Equal(t, models.FileStatusFailed, f.publisher.sent[0].Status)
	assert.Contains(t, f.publisher.sent[0].Message, ".nessus")

	status, err := store.GetUploadStatus(context.Background(), f.kv, 5)
	require.NoError(t, err)
	assert.Equal(t, string(StageFailed), status.Stage)

	t.Log("✅ Invalid report upload job test passed")
}

func TestServiceMetadataTimeout(t *testing.T) {
	f := newServiceFixture(t, fixtureReport(t), nil)
	f.meta.fileErr = &metadata.ExternalServiceError{Service: "dashboard", Op: "get_file", Timeout: true, Err: context.DeadlineExceeded}

	out, err := f.svc.Process(context.Background(), Job{FileID: 5, ToolID: 2})
	require.Error(t, err)
	assert.Equal(t, models.FileStatusFailed, out.Status)
	assert.Equal(t, []string{models.EventTypeMetadataTimeout}, f.events.types())
	assert.Equal(t, models.FileStatusFailed, f.uploads.last())
}

func TestServiceMissingFile(t *testing.T) {
	f := newServiceFixture(t, nil, nil)
	f.meta.file.FilePath = "/uploads/elsewhere.nessus"

	_, err := f.svc.Process(context.Background(), Job{FileID: 5, ToolID: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, []string{models.EventTypeUploadFailed}, f.events.types())
}

func TestServiceKPIFailureKeepsUploadProcessed(t *testing.T) {
	f := newServiceFixture(t, fixtureReport(t), failingKPI{})

	out, err := f.svc.Process(context.Background(), Job{FileID: 5, ToolID: 2})
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusProcessed, out.Status)
	assert.Empty(t, out.SnapshotID)
	assert.Equal(t, []string{models.EventTypeKPIRunFailed, models.EventTypeUploadProcessed}, f.events.types())

	require.Len(t, f.publisher.sent, 1)
	assert.Empty(t, f.publisher.sent[0].RunID, "an unsuccessful run is not announced")
}

func TestServiceShutdownMarksUploadFailed(t *testing.T) {
	t.Log("\n🔍 Testing an upload job interrupted by shutdown...")

	f := newServiceFixture(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	content := fixtureReport(t)
	f.svc.deps.ReadFile = func(string) ([]byte, error) {
		cancel()
		return content, nil
	}

	out, err := f.svc.Process(ctx, Job{FileID: 5, ToolID: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.FileStatusFailed, out.Status)
	assert.Equal(t, []string{models.FileStatusFailed}, f.uploads.statuses, "failed status is persisted after cancellation")
	assert.Equal(t, []string{models.EventTypeUploadFailed}, f.events.types())
	require.Len(t, f.publisher.sent, 1)
	assert.Equal(t, models.FileStatusFailed, f.publisher.sent[0].Status)

	status, err := store.GetUploadStatus(context.Background(), f.kv, 5)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusFailed, status.Status)

	t.Log("✅ Interrupted upload job test passed")
}

func TestServiceHandleMessage(t *testing.T) {
	f := newServiceFixture(t, fixtureReport(t), nil)

	f.svc.HandleMessage(context.Background(), []byte("{broken"))
	assert.Empty(t, f.uploads.statuses, "malformed jobs are discarded")

	body, err := json.Marshal(Job{FileID: 5, ToolID: 2, AuthToken: "tok"})
	require.NoError(t, err)
	f.svc.HandleMessage(context.Background(), body)
	assert.Equal(t, []string{models.FileStatusProcessed}, f.uploads.statuses)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(ServiceDeps{})
	assert.Error(t, err)
}
