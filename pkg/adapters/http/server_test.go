package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	journeyhttp "github.com/aretw0/journey/pkg/adapters/http"
	"github.com/aretw0/journey/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Fire(ctx context.Context, source string, params map[string]any) error {
	return m.Called(source, params).Error(0)
}

func (m *mockDispatcher) Sources() []domain.SourceInfo {
	return m.Called().Get(0).([]domain.SourceInfo)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestFireTrigger(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Fire", "webhook", map[string]any{"a": 5.0}).Return(nil).Once()
	h := journeyhttp.NewHandler(d)

	w := do(t, h, http.MethodPost, "/triggers/webhook", `{"a": 5}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"source":"webhook","status":"fired"}`, w.Body.String())
	d.AssertExpectations(t)
}

func TestFireTrigger_EmptyBody(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Fire", "webhook", map[string]any{}).Return(nil).Once()

	w := do(t, journeyhttp.NewHandler(d), http.MethodPost, "/triggers/webhook", "")

	assert.Equal(t, http.StatusOK, w.Code)
	d.AssertExpectations(t)
}

func TestFireTrigger_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantBody string
	}{
		{name: "unknown source", err: domain.ErrSourceNotFound, wantCode: http.StatusNotFound, wantBody: "Unknown trigger"},
		{
			name:     "handler failure",
			err:      &domain.HandlerFailure{Activity: "a", EventID: "e", Err: errors.New("boom")},
			wantCode: http.StatusOK,
			wantBody: `"status":"failed"`,
		},
		{name: "other", err: errors.New("scheduler gone"), wantCode: http.StatusInternalServerError, wantBody: "scheduler gone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &mockDispatcher{}
			d.On("Fire", "src", mock.Anything).Return(tt.err)

			w := do(t, journeyhttp.NewHandler(d), http.MethodPost, "/triggers/src", tt.body)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}

	t.Run("invalid body", func(t *testing.T) {
		d := &mockDispatcher{}
		w := do(t, journeyhttp.NewHandler(d), http.MethodPost, "/triggers/src", `[1,2]`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		d.AssertNotCalled(t, "Fire", mock.Anything, mock.Anything)
	})
}

func TestListTriggers(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Sources").Return([]domain.SourceInfo{
		{Name: "heartbeat", Kind: "clock", Subscribers: []string{"tick"}, Running: true, PeriodSeconds: 0.5},
		{Name: "webhook", Kind: "trigger"},
	})

	w := do(t, journeyhttp.NewHandler(d), http.MethodGet, "/triggers", "")

	require.Equal(t, http.StatusOK, w.Code)
	var got []domain.SourceInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "heartbeat", got[0].Name)
	assert.True(t, got[0].Running)
	assert.Equal(t, []string{"tick"}, got[0].Subscribers)
}

func TestHealthAndInfo(t *testing.T) {
	h := journeyhttp.NewHandler(&mockDispatcher{}, journeyhttp.WithVersion("1.2.3"))

	w := do(t, h, http.MethodGet, "/health", "")
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/info", "")
	assert.JSONEq(t, `{"app":"journey-http","version":"1.2.3"}`, w.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "journey_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	w := do(t, journeyhttp.NewHandler(&mockDispatcher{}, journeyhttp.WithMetrics(reg)), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "journey_test_total 1")

	w = do(t, journeyhttp.NewHandler(&mockDispatcher{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubscribeEvents(t *testing.T) {
	s := journeyhttp.NewServer(&mockDispatcher{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events?source=heartbeat", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	require.Eventually(t, func() bool { return s.Streams.Subscribers("heartbeat") == 1 }, time.Second, time.Millisecond)

	hooks := s.Hooks()
	hooks.OnFire(ctx, &domain.FireEvent{Source: "other", EventID: "skip"})
	hooks.OnFire(ctx, &domain.FireEvent{Source: "heartbeat", EventID: "ev-1", Subscribers: 2})

	var data string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "data: {") {
			data = strings.TrimPrefix(lines.Text(), "data: ")
			break
		}
	}
	assert.JSONEq(t, `{"source":"heartbeat","event_id":"ev-1","subscribers":2}`, data)
}
