package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/grasp/internal/config"
	"github.com/ahrav/grasp/internal/domain/scanning"
	recordmemory "github.com/ahrav/grasp/internal/infra/storage/scanning/memory"
	"github.com/ahrav/grasp/pkg/common/logger"
)

type mockLauncher struct{ mock.Mock }

func (m *mockLauncher) Launch(ctx context.Context, ability string, spec config.ScanSpec) (*LaunchedScan, error) {
	args := m.Called(ctx, ability, spec)
	launched, _ := args.Get(0).(*LaunchedScan)
	return launched, args.Error(1)
}

func newTestServer(t *testing.T, launcher ScanLauncher, ready func() bool) (*Server, *recordmemory.RecordStore) {
	t.Helper()
	store := recordmemory.NewRecordStore()
	srv := NewServer(":0", logger.Noop(), noop.NewTracerProvider().Tracer("test"), store, launcher, ready)
	return srv, store
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	ready := false
	srv, _ := newTestServer(t, new(mockLauncher), func() bool { return ready })

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/v1/health", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/v1/readiness", "").Code)

	ready = true
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/v1/readiness", "").Code)
}

func TestServer_GetScan(t *testing.T) {
	srv, store := newTestServer(t, new(mockLauncher), nil)

	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &scanning.ScanRecord{
		TaskID:        uuid.New(),
		AbilityName:   "GA_Scan",
		InstanceName:  "GA_Scan_ScanForTargets_1",
		PresetName:    "nearby",
		Policy:        scanning.StopOnFirstTargetFound,
		QueriesIssued: 3,
		TargetsFound:  2,
		Elapsed:       1500 * time.Millisecond,
		StartedAt:     finished.Add(-2 * time.Second),
		FinishedAt:    finished,
	}
	require.NoError(t, store.SaveRecord(context.Background(), rec))

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{name: "found", path: "/v1/scans/" + rec.TaskID.String(), wantCode: http.StatusOK},
		{name: "not found", path: "/v1/scans/" + uuid.NewString(), wantCode: http.StatusNotFound},
		{name: "bad id", path: "/v1/scans/not-a-uuid", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodGet, tt.path, "")
			require.Equal(t, tt.wantCode, resp.Code)
			if tt.wantCode != http.StatusOK {
				return
			}

			var got scanRecordResponse
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
			assert.Equal(t, rec.TaskID.String(), got.TaskID)
			assert.Equal(t, "TARGET_FOUND", got.Policy)
			assert.Equal(t, int64(1500), got.ElapsedMs)
			assert.Equal(t, 2, got.TargetsFound)
			assert.True(t, finished.Equal(got.FinishedAt))
		})
	}
}

func TestServer_ListScans(t *testing.T) {
	srv, store := newTestServer(t, new(mockLauncher), nil)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range 3 {
		require.NoError(t, store.SaveRecord(context.Background(), &scanning.ScanRecord{
			TaskID:       uuid.New(),
			AbilityName:  "GA_Scan",
			InstanceName: fmt.Sprintf("GA_Scan_ScanForTargets_%d", i+1),
			Policy:       scanning.RunOnce,
			FinishedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	resp := do(t, srv, http.MethodGet, "/v1/abilities/GA_Scan/scans?limit=2", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var got []scanRecordResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "GA_Scan_ScanForTargets_3", got[0].Instance, "newest first")

	resp = do(t, srv, http.MethodGet, "/v1/abilities/GA_Other/scans", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, "[]", resp.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/v1/abilities/GA_Scan/scans?limit=0", "").Code)
}

func TestServer_StartScan(t *testing.T) {
	active := &LaunchedScan{TaskID: uuid.New(), Instance: "GA_Scan_ScanForTargets_9", Status: scanning.TaskStatusActive}
	finished := &LaunchedScan{TaskID: uuid.New(), Instance: "GA_Scan_ScanForTargets_10", Status: scanning.TaskStatusFinished}

	tests := []struct {
		name      string
		body      string
		setup     func(m *mockLauncher)
		wantCode  int
		wantField string
	}{
		{
			name: "accepted",
			body: `{"preset":"nearby","policy":"duration","max_duration":"2s","max_rate":"100ms","origin":{"x":1},"async":true}`,
			setup: func(m *mockLauncher) {
				m.On("Launch", mock.Anything, "GA_Scan", config.ScanSpec{
					Preset:      "nearby",
					Policy:      "duration",
					MaxDuration: 2 * time.Second,
					MaxRate:     100 * time.Millisecond,
					Origin:      config.Vector{X: 1},
					Async:       true,
				}).Return(active, nil)
			},
			wantCode:  http.StatusAccepted,
			wantField: `"status":"ACTIVE"`,
		},
		{
			name: "did not activate",
			body: `{"preset":"nearby","policy":"once"}`,
			setup: func(m *mockLauncher) {
				m.On("Launch", mock.Anything, "GA_Scan", mock.Anything).
					Return(finished, fmt.Errorf("did not activate: %w", scanning.ErrMissingMovementCapability))
			},
			wantCode:  http.StatusUnprocessableEntity,
			wantField: "movement",
		},
		{
			name: "unknown ability",
			body: `{"preset":"nearby","policy":"once"}`,
			setup: func(m *mockLauncher) {
				m.On("Launch", mock.Anything, "GA_Scan", mock.Anything).Return(nil, ErrUnknownAbility)
			},
			wantCode: http.StatusNotFound,
		},
		{
			name: "invalid scan",
			body: `{"preset":"far","policy":"once"}`,
			setup: func(m *mockLauncher) {
				m.On("Launch", mock.Anything, "GA_Scan", mock.Anything).Return(nil, ErrInvalidScan)
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "launcher failure",
			body: `{"preset":"nearby","policy":"once"}`,
			setup: func(m *mockLauncher) {
				m.On("Launch", mock.Anything, "GA_Scan", mock.Anything).Return(nil, errors.New("boom"))
			},
			wantCode: http.StatusInternalServerError,
		},
		{name: "bad json", body: `{`, setup: func(*mockLauncher) {}, wantCode: http.StatusBadRequest},
		{name: "bad duration", body: `{"max_rate":"soon"}`, setup: func(*mockLauncher) {}, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launcher := new(mockLauncher)
			tt.setup(launcher)
			srv, _ := newTestServer(t, launcher, nil)

			resp := do(t, srv, http.MethodPost, "/v1/abilities/GA_Scan/scans", tt.body)

			assert.Equal(t, tt.wantCode, resp.Code)
			if tt.wantField != "" {
				assert.Contains(t, resp.Body.String(), tt.wantField)
			}
			launcher.AssertExpectations(t)
		})
	}
}
