package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/audit"
	"github.com/DoniaKassem/ServiceNOW-API-Layer-sub001/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClient отдает заранее подготовленные исходы по URL и запоминает,
// с каким телом его вызывали.
type fakeClient struct {
	results map[string]*domain.ExternalResult
	errs    map[string]error
	calls   []capturedCall
}

type capturedCall struct {
	url  string
	body map[string]any
}

func (c *fakeClient) Execute(ctx context.Context, method, url string, headers map[string]string, body map[string]any) (*domain.ExternalResult, error) {
	c.calls = append(c.calls, capturedCall{url: url, body: domain.CloneBody(body)})
	if err, ok := c.errs[url]; ok {
		return nil, err
	}
	if res, ok := c.results[url]; ok {
		return res, nil
	}
	return &domain.ExternalResult{Status: 201, SysID: "generated"}, nil
}

type fakeRecorder struct {
	entries []audit.AuditEntry
}

func (r *fakeRecorder) Append(entry audit.AuditEntry) audit.AuditEntry {
	r.entries = append(r.entries, entry)
	return entry
}

func (r *fakeRecorder) actions() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeObserver struct {
	transitions []domain.RequestStatus
}

func (o *fakeObserver) OnTransition(req *domain.Request) {
	o.transitions = append(o.transitions, req.Status)
}

type fakePauser struct {
	paused map[string]bool
}

func (p *fakePauser) IsPaused(sessionID string) bool {
	return p.paused[sessionID]
}

func newTestEngine(client Client, trail audit.Recorder, pauser Pauser, obs Observer) *Engine {
	return NewEngine(client, trail, pauser, obs, nil, zap.NewNop())
}

func approvedReq(id, entityType, url string, body map[string]any, deps ...string) *domain.Request {
	return &domain.Request{
		ID:         id,
		SessionID:  "sess-1",
		EntityType: entityType,
		Method:     "POST",
		URL:        url,
		Body:       body,
		DependsOn:  deps,
		Status:     domain.StatusApproved,
	}
}

func TestRunBatch_ResolvesChainAcrossRequests(t *testing.T) {
	client := &fakeClient{
		results: map[string]*domain.ExternalResult{
			"/vendor":   {Status: 201, SysID: "v-123"},
			"/supplier": {Status: 201, SysID: "s-456"},
		},
	}
	trail := &fakeRecorder{}

	vendor := approvedReq("r1", domain.EntityVendor, "/vendor",
		map[string]any{"name": "ACME"})
	supplier := approvedReq("r2", domain.EntitySupplier, "/supplier",
		map[string]any{"name": "ACME Supplies", "u_vendor": "{{vendor.sys_id}}"},
		domain.EntityVendor)

	eng := newTestEngine(client, trail, nil, nil)
	// Supplier идет первым в батче, но зависимость перевернет порядок
	err := eng.RunBatch(context.Background(), []*domain.Request{supplier, vendor}, ModeApproved)
	require.NoError(t, err)

	require.Len(t, client.calls, 2)
	assert.Equal(t, "/vendor", client.calls[0].url)
	assert.Equal(t, "/supplier", client.calls[1].url)
	// Плейсхолдер разрешился по результату первого вызова
	assert.Equal(t, "v-123", client.calls[1].body["u_vendor"])

	assert.Equal(t, domain.StatusSuccess, vendor.Status)
	assert.Equal(t, domain.StatusSuccess, supplier.Status)
	assert.Equal(t, "v-123", vendor.Response.SysID)
	require.NotNil(t, supplier.ExecutedAt)

	// Шаблон supplier не изменился, подстановка только в ModifiedBody
	assert.Equal(t, "{{vendor.sys_id}}", supplier.Body["u_vendor"])
	assert.Equal(t, "v-123", supplier.ModifiedBody["u_vendor"])

	assert.Equal(t,
		[]string{audit.ActionRequestSuccess, audit.ActionRequestSuccess},
		trail.actions())
}

func TestRunBatch_StopOnErrorHaltsBatch(t *testing.T) {
	client := &fakeClient{
		errs: map[string]error{"/vendor": errors.New("connection refused")},
	}
	trail := &fakeRecorder{}

	vendor := approvedReq("r1", domain.EntityVendor, "/vendor", map[string]any{"name": "ACME"})
	supplier := approvedReq("r2", domain.EntitySupplier, "/supplier",
		map[string]any{"name": "ACME Supplies"}, domain.EntityVendor)

	eng := newTestEngine(client, trail, nil, nil)
	err := eng.RunBatch(context.Background(), []*domain.Request{vendor, supplier}, ModeApproved)
	require.NoError(t, err)

	// Второй запрос не стартовал
	require.Len(t, client.calls, 1)
	assert.Equal(t, domain.StatusFailed, vendor.Status)
	assert.Equal(t, domain.StatusApproved, supplier.Status)
	assert.Equal(t, "connection refused", vendor.Response.Err)
	assert.Equal(t, []string{audit.ActionRequestFailed}, trail.actions())
}

func TestRunBatch_ContinueOnErrorIsolatesFailure(t *testing.T) {
	client := &fakeClient{
		errs: map[string]error{"/vendor": errors.New("boom")},
		results: map[string]*domain.ExternalResult{
			"/expense": {Status: 201, SysID: "e-1"},
		},
	}
	trail := &fakeRecorder{}

	vendor := approvedReq("r1", domain.EntityVendor, "/vendor", map[string]any{"name": "ACME"})
	vendor.Status = domain.StatusPending
	expense := approvedReq("r2", domain.EntityExpenseLine, "/expense", map[string]any{"amount": 100})
	expense.Status = domain.StatusPending

	eng := newTestEngine(client, trail, nil, nil)
	err := eng.RunBatch(context.Background(), []*domain.Request{vendor, expense}, ModePending)
	require.NoError(t, err)

	require.Len(t, client.calls, 2)
	assert.Equal(t, domain.StatusFailed, vendor.Status)
	assert.Equal(t, domain.StatusSuccess, expense.Status)
}

func TestRunBatch_HTTPErrorStatusIsFailure(t *testing.T) {
	client := &fakeClient{
		results: map[string]*domain.ExternalResult{
			"/vendor": {Status: 403, StatusText: "403 Forbidden"},
		},
	}
	trail := &fakeRecorder{}
	vendor := approvedReq("r1", domain.EntityVendor, "/vendor", map[string]any{"name": "ACME"})

	eng := newTestEngine(client, trail, nil, nil)
	require.NoError(t, eng.RunBatch(context.Background(), []*domain.Request{vendor}, ModeApproved))

	assert.Equal(t, domain.StatusFailed, vendor.Status)
	require.Len(t, trail.entries, 1)
	assert.Contains(t, trail.entries[0].Details, "403")
}

func TestRunBatch_CycleAbortsBeforeAnyCall(t *testing.T) {
	client := &fakeClient{}
	a := approvedReq("a", "alpha", "/a", map[string]any{"x": 1}, "beta")
	b := approvedReq("b", "beta", "/b", map[string]any{"x": 2}, "alpha")

	eng := newTestEngine(client, &fakeRecorder{}, nil, nil)
	err := eng.RunBatch(context.Background(), []*domain.Request{a, b}, ModeApproved)

	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Empty(t, client.calls)
	assert.Equal(t, domain.StatusApproved, a.Status)
	assert.Equal(t, domain.StatusApproved, b.Status)
}

func TestRunBatch_PauseBlocksNextRequest(t *testing.T) {
	client := &fakeClient{}
	pauser := &fakePauser{paused: map[string]bool{"sess-1": true}}
	vendor := approvedReq("r1", domain.EntityVendor, "/vendor", map[string]any{"name": "ACME"})

	eng := newTestEngine(client, &fakeRecorder{}, pauser, nil)
	err := eng.RunBatch(context.Background(), []*domain.Request{vendor}, ModeApproved)

	// Пауза — не ошибка: батч просто не стартует следующий запрос
	require.NoError(t, err)
	assert.Empty(t, client.calls)
	assert.Equal(t, domain.StatusApproved, vendor.Status)
}

func TestRunBatch_SkipsNonRunnableRequests(t *testing.T) {
	client := &fakeClient{}
	done := approvedReq("r1", domain.EntityVendor, "/vendor", map[string]any{"name": "ACME"})
	done.Status = domain.StatusSuccess

	eng := newTestEngine(client, &fakeRecorder{}, nil, nil)
	require.NoError(t, eng.RunBatch(context.Background(), []*domain.Request{done}, ModeApproved))
	assert.Empty(t, client.calls)
	assert.Equal(t, domain.StatusSuccess, done.Status)
}

func TestRunBatch_ObserverSeesEveryTransition(t *testing.T) {
	client := &fakeClient{
		results: map[string]*domain.ExternalResult{
			"/vendor": {Status: 201, SysID: "v-1"},
		},
	}
	obs := &fakeObserver{}
	vendor := approvedReq("r1", domain.EntityVendor, "/vendor", map[string]any{"name": "ACME"})

	eng := newTestEngine(client, &fakeRecorder{}, nil, obs)
	require.NoError(t, eng.RunBatch(context.Background(), []*domain.Request{vendor}, ModeApproved))

	assert.Equal(t,
		[]domain.RequestStatus{domain.StatusExecuting, domain.StatusSuccess},
		obs.transitions)
}

func TestRunBatch_CancelledContext(t *testing.T) {
	client := &fakeClient{}
	vendor := approvedReq("r1", domain.EntityVendor, "/vendor", map[string]any{"name": "ACME"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := newTestEngine(client, &fakeRecorder{}, nil, nil)
	err := eng.RunBatch(ctx, []*domain.Request{vendor}, ModeApproved)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.calls)
}

func TestRetry_ReResolvesOriginalTemplate(t *testing.T) {
	client := &fakeClient{
		results: map[string]*domain.ExternalResult{
			"/supplier": {Status: 201, SysID: "s-new"},
		},
	}
	trail := &fakeRecorder{}

	executedAt := time.Now().Add(-time.Minute)
	vendorDone := &domain.Request{
		ID:         "r1",
		SessionID:  "sess-1",
		EntityType: domain.EntityVendor,
		Status:     domain.StatusSuccess,
		Response:   &domain.ExternalResult{Status: 201, SysID: "v-fresh"},
		ExecutedAt: &executedAt,
	}

	// Первый прогон упал до того, как vendor был создан: в ModifiedBody
	// остался неразрешенный токен
	failed := &domain.Request{
		ID:           "r2",
		SessionID:    "sess-1",
		EntityType:   domain.EntitySupplier,
		Method:       "POST",
		URL:          "/supplier",
		Body:         map[string]any{"name": "ACME Supplies", "u_vendor": "{{vendor.sys_id}}"},
		ModifiedBody: map[string]any{"name": "ACME Supplies", "u_vendor": "{{vendor.sys_id}}"},
		DependsOn:    []string{domain.EntityVendor},
		Status:       domain.StatusFailed,
		Response:     &domain.ExternalResult{Err: "connection refused"},
	}

	eng := newTestEngine(client, trail, nil, nil)
	eng.Seed([]*domain.Request{vendorDone, failed})

	require.NoError(t, eng.Retry(context.Background(), failed))

	// Ретрай перерешал ИСХОДНЫЙ шаблон по свежей карте результатов
	require.Len(t, client.calls, 1)
	assert.Equal(t, "v-fresh", client.calls[0].body["u_vendor"])
	assert.Equal(t, domain.StatusSuccess, failed.Status)
	assert.Equal(t, []string{audit.ActionRetrySuccess}, trail.actions())
}

func TestRetry_LastWriteWinsOnSeed(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now().Add(-time.Minute)

	first := &domain.Request{
		ID: "r1", EntityType: domain.EntityVendor, Status: domain.StatusSuccess,
		Response: &domain.ExternalResult{Status: 201, SysID: "v-old"}, ExecutedAt: &older,
	}
	second := &domain.Request{
		ID: "r2", EntityType: domain.EntityVendor, Status: domain.StatusSuccess,
		Response: &domain.ExternalResult{Status: 201, SysID: "v-new"}, ExecutedAt: &newer,
	}

	eng := newTestEngine(&fakeClient{}, &fakeRecorder{}, nil, nil)
	// Порядок подачи не важен, побеждает самый свежий результат
	eng.Seed([]*domain.Request{second, first})

	assert.Equal(t, "v-new", eng.snapshot()[domain.EntityVendor].SysID)
}

func TestRetry_OnlyFailedIsRetryable(t *testing.T) {
	// Pending и approved обязаны идти через батч (ревью + порядок
	// зависимостей), success и executing повторять нечего
	for _, status := range []domain.RequestStatus{
		domain.StatusPending,
		domain.StatusApproved,
		domain.StatusExecuting,
		domain.StatusSuccess,
	} {
		t.Run(string(status), func(t *testing.T) {
			client := &fakeClient{}
			trail := &fakeRecorder{}
			req := approvedReq("r1", domain.EntityVendor, "/vendor", map[string]any{"name": "ACME"})
			req.Status = status

			eng := newTestEngine(client, trail, nil, nil)
			err := eng.Retry(context.Background(), req)

			require.ErrorIs(t, err, domain.ErrInvalidTransition)
			// Ни вызова, ни записи REQUEST_RETRY_* в журнале, статус нетронут
			assert.Empty(t, client.calls)
			assert.Empty(t, trail.entries)
			assert.Equal(t, status, req.Status)
		})
	}
}

func TestRetry_FailedRetryStaysRetryable(t *testing.T) {
	client := &fakeClient{errs: map[string]error{"/vendor": errors.New("still down")}}
	trail := &fakeRecorder{}
	failed := &domain.Request{
		ID: "r1", SessionID: "sess-1", EntityType: domain.EntityVendor,
		Method: "POST", URL: "/vendor",
		Body:   map[string]any{"name": "ACME"},
		Status: domain.StatusFailed,
	}

	eng := newTestEngine(client, trail, nil, nil)
	require.NoError(t, eng.Retry(context.Background(), failed))

	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Equal(t, []string{audit.ActionRetryFailed}, trail.actions())
	// Можно ретраить снова
	assert.NoError(t, failed.CanTransitionTo(domain.StatusExecuting))
}
