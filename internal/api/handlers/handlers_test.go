package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/smartfinance/internal/api/middleware"
	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/dvloznov/smartfinance/internal/infra/local"
	"github.com/dvloznov/smartfinance/internal/jobs"
	"github.com/dvloznov/smartfinance/internal/jobs/inmemory"
	"github.com/dvloznov/smartfinance/internal/session"
	"github.com/dvloznov/smartfinance/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// remoteStandIn is a local store reporting itself as remote.
type remoteStandIn struct {
	*local.Store
}

func (remoteStandIn) Mode() store.Mode { return store.ModeRemote }

type fakeAdvisor struct {
	mu       sync.Mutex
	enabled  bool
	accounts int
	txs      int
}

func (f *fakeAdvisor) Enabled() bool { return f.enabled }

func (f *fakeAdvisor) Advise(ctx context.Context, txs []domain.Transaction, accounts []domain.Account) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = len(accounts)
	f.txs = len(txs)
	return "Spend less on food."
}

type testAPI struct {
	handler http.Handler
	session *session.Session
	jobs    *inmemory.Store
	advisor *fakeAdvisor
}

func newTestAPI(t *testing.T, mode store.Mode) *testAPI {
	t.Helper()
	dir := t.TempDir()
	open := func(ctx context.Context, m store.Mode) (store.Store, error) {
		s, err := local.Open(filepath.Join(dir, string(m)+".db"), local.Options{SeedDefaultWallet: true})
		if err != nil {
			return nil, err
		}
		if m == store.ModeRemote {
			return remoteStandIn{s}, nil
		}
		return s, nil
	}

	sess, err := session.New(context.Background(), mode, open, zerolog.Nop())
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })

	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(inmemory.QueueConfig{BufferSize: 4, Workers: 1}, jobStore, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = queue.Close()
	})
	if err := queue.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		export := job.(*jobs.ExportLedgerJob)
		export.Location = "gs://backups/ledgers/" + export.UserID + "/snap.json"
		return nil
	}); err != nil {
		t.Fatalf("queue.Start() error = %v", err)
	}

	advisor := &fakeAdvisor{enabled: true}
	handler := NewRouter(RouterConfig{
		Session:       sess,
		Banners:       []string{"banner"},
		Advisor:       advisor,
		Publisher:     queue,
		Jobs:          jobStore,
		ExportEnabled: func(t jobs.ExportTarget) bool { return t == jobs.ExportTargetGCS },
		DefaultUserID: "local-user",
		Log:           zerolog.Nop(),
	})
	return &testAPI{handler: handler, session: sess, jobs: jobStore, advisor: advisor}
}

func (a *testAPI) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserHeader, userID)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

type accountsResponse struct {
	Accounts     []domain.Account `json:"accounts"`
	Count        int              `json:"count"`
	TotalBalance decimal.Decimal  `json:"total_balance"`
}

func (a *testAPI) accounts(t *testing.T) accountsResponse {
	t.Helper()
	rec := a.do(t, http.MethodGet, "/api/accounts", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/accounts status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp accountsResponse
	decode(t, rec, &resp)
	return resp
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, store.ModeLocal)
	rec := api.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("GET /health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatusAndSandbox(t *testing.T) {
	api := newTestAPI(t, store.ModeRemote)

	var status statusResponse
	decode(t, api.do(t, http.MethodGet, "/api/status", "", nil), &status)
	if diff := cmp.Diff(statusResponse{Mode: store.ModeRemote, Banners: []string{"banner"}}, status); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}

	rec := api.do(t, http.MethodPost, "/api/sandbox", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/sandbox status = %d", rec.Code)
	}
	decode(t, rec, &status)
	if status.Mode != store.ModeLocal || api.session.Mode() != store.ModeLocal {
		t.Errorf("mode after sandbox = %s / %s", status.Mode, api.session.Mode())
	}
}

func TestTransactionsMoveBalance(t *testing.T) {
	api := newTestAPI(t, store.ModeLocal)

	initial := api.accounts(t)
	if initial.Count != 1 || initial.Accounts[0].Name != local.DefaultWalletName {
		t.Fatalf("expected seeded wallet, got %+v", initial)
	}
	walletID := initial.Accounts[0].ID

	rec := api.do(t, http.MethodPost, "/api/transactions", "", map[string]interface{}{
		"account_id": walletID, "amount": 200, "type": "expense", "category": "Food", "date": "2024-03-20",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST expense status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = api.do(t, http.MethodPost, "/api/transactions", "", `{"account_id":"`+walletID+`","amount":"500","type":"INCOME","date":"2024-03-21"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST income status = %d: %s", rec.Code, rec.Body.String())
	}
	var income domain.Transaction
	decode(t, rec, &income)
	if income.Type != domain.TransactionTypeIncome || income.Category != "Salary" {
		t.Errorf("income not normalized: %+v", income)
	}

	after := api.accounts(t)
	if !after.Accounts[0].Balance.Equal(decimal.NewFromInt(5300)) || !after.TotalBalance.Equal(decimal.NewFromInt(5300)) {
		t.Errorf("balance = %s total = %s, want 5300", after.Accounts[0].Balance, after.TotalBalance)
	}

	var txs []domain.Transaction
	decode(t, api.do(t, http.MethodGet, "/api/transactions", "", nil), &txs)
	if len(txs) != 2 || txs[0].Date != "2024-03-21" {
		t.Errorf("transactions not newest first: %+v", txs)
	}
}

func TestCreateTransaction_Errors(t *testing.T) {
	api := newTestAPI(t, store.ModeLocal)
	walletID := api.accounts(t).Accounts[0].ID

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{name: "malformed body", body: "{", want: http.StatusBadRequest},
		{name: "no account", body: map[string]interface{}{"amount": 10, "type": "expense"}, want: http.StatusNotFound},
		{name: "unknown account", body: map[string]interface{}{"account_id": "nope", "amount": 10, "type": "expense"}, want: http.StatusNotFound},
		{name: "zero amount", body: map[string]interface{}{"account_id": walletID, "amount": 0, "type": "expense"}, want: http.StatusBadRequest},
		{name: "bad type", body: map[string]interface{}{"account_id": walletID, "amount": 1, "type": "transfer"}, want: http.StatusBadRequest},
		{name: "bad date", body: map[string]interface{}{"account_id": walletID, "amount": 1, "type": "expense", "date": "21/03/2024"}, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/transactions", "", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	after := api.accounts(t)
	if !after.Accounts[0].Balance.Equal(decimal.NewFromInt(local.DefaultWalletBalance)) {
		t.Errorf("rejected writes changed the balance to %s", after.Accounts[0].Balance)
	}
}

func TestAccountsCreateAndDelete(t *testing.T) {
	api := newTestAPI(t, store.ModeLocal)

	rec := api.do(t, http.MethodPost, "/api/accounts", "", map[string]interface{}{"name": "", "bank_name": "Bank"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing name status = %d, want 400", rec.Code)
	}

	rec = api.do(t, http.MethodPost, "/api/accounts", "", map[string]interface{}{"name": "Savings", "bank_name": "Monzo", "balance": "1000"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Account
	decode(t, rec, &created)
	if created.ID == "" || created.Color != domain.DefaultAccountColor {
		t.Errorf("unexpected account: %+v", created)
	}

	if got := api.accounts(t).Count; got != 2 {
		t.Fatalf("count after create = %d, want 2", got)
	}

	rec = api.do(t, http.MethodDelete, "/api/accounts/"+created.ID, "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	after := api.accounts(t)
	if after.Count != 1 || after.Accounts[0].ID == created.ID {
		t.Errorf("account still listed after delete: %+v", after.Accounts)
	}

	rec = api.do(t, http.MethodDelete, "/api/accounts/"+created.ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestCategories(t *testing.T) {
	api := newTestAPI(t, store.ModeLocal)

	tests := []struct {
		query string
		code  int
		count int
	}{
		{query: "", code: http.StatusOK, count: len(domain.Categories())},
		{query: "?type=expense", code: http.StatusOK, count: len(domain.CategoriesByType(domain.TransactionTypeExpense))},
		{query: "?type=income", code: http.StatusOK, count: len(domain.CategoriesByType(domain.TransactionTypeIncome))},
		{query: "?type=transfer", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, "/api/categories"+tt.query, "", nil)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}
			var resp struct {
				Count int `json:"count"`
			}
			decode(t, rec, &resp)
			if resp.Count != tt.count {
				t.Errorf("count = %d, want %d", resp.Count, tt.count)
			}
		})
	}
}

func TestDashboardAndReport(t *testing.T) {
	api := newTestAPI(t, store.ModeLocal)
	walletID := api.accounts(t).Accounts[0].ID
	today := domain.Today(time.Now())

	for _, amount := range []int{30, 20} {
		rec := api.do(t, http.MethodPost, "/api/transactions", "", map[string]interface{}{
			"account_id": walletID, "amount": amount, "type": "expense", "category": "Food",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("POST status = %d: %s", rec.Code, rec.Body.String())
		}
	}

	var dash struct {
		TotalBalance decimal.Decimal      `json:"total_balance"`
		Month        string               `json:"month"`
		Monthly      struct{ Expense decimal.Decimal } `json:"monthly"`
		Recent       []domain.Transaction `json:"recent"`
	}
	decode(t, api.do(t, http.MethodGet, "/api/dashboard", "", nil), &dash)
	if !dash.TotalBalance.Equal(decimal.NewFromInt(4950)) || !dash.Monthly.Expense.Equal(decimal.NewFromInt(50)) {
		t.Errorf("unexpected dashboard: %+v", dash)
	}
	if !strings.HasPrefix(today, dash.Month) || len(dash.Recent) != 2 {
		t.Errorf("unexpected dashboard month/recent: %s %d", dash.Month, len(dash.Recent))
	}

	var report struct {
		ExpenseByCategory []struct {
			Category string          `json:"category"`
			Total    decimal.Decimal `json:"total"`
		} `json:"expense_by_category"`
	}
	decode(t, api.do(t, http.MethodGet, "/api/reports", "", nil), &report)
	if len(report.ExpenseByCategory) != 1 || report.ExpenseByCategory[0].Category != "Food" ||
		!report.ExpenseByCategory[0].Total.Equal(decimal.NewFromInt(50)) {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestAdvice(t *testing.T) {
	api := newTestAPI(t, store.ModeLocal)

	rec := api.do(t, http.MethodPost, "/api/advice", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Advice  string `json:"advice"`
		Enabled bool   `json:"enabled"`
	}
	decode(t, rec, &resp)
	if resp.Advice != "Spend less on food." || !resp.Enabled {
		t.Errorf("unexpected advice response: %+v", resp)
	}
	if api.advisor.accounts != 1 || api.advisor.txs != 0 {
		t.Errorf("advisor saw %d accounts and %d transactions", api.advisor.accounts, api.advisor.txs)
	}
}

func TestExports(t *testing.T) {
	api := newTestAPI(t, store.ModeLocal)

	for _, tc := range []struct {
		body string
		want int
	}{
		{body: `{"target":"s3"}`, want: http.StatusBadRequest},
		{body: `{"target":"bigquery"}`, want: http.StatusServiceUnavailable},
	} {
		if rec := api.do(t, http.MethodPost, "/api/exports", "alice", tc.body); rec.Code != tc.want {
			t.Errorf("POST %s status = %d, want %d", tc.body, rec.Code, tc.want)
		}
	}

	rec := api.do(t, http.MethodPost, "/api/exports", "alice", `{"target":"gcs"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST status = %d: %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	decode(t, rec, &created)
	jobID := created["job_id"]
	if jobID == "" || created["status"] != string(jobs.JobStatusPending) || created["target"] != "gcs" {
		t.Errorf("unexpected enqueue response: %v", created)
	}

	var job jobs.ExportLedgerJob
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		decode(t, api.do(t, http.MethodGet, "/api/exports/"+jobID, "alice", nil), &job)
		if job.Status == jobs.JobStatusCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if job.Status != jobs.JobStatusCompleted || job.Location != "gs://backups/ledgers/alice/snap.json" {
		t.Fatalf("export did not complete: %+v", job)
	}

	if rec := api.do(t, http.MethodGet, "/api/exports/"+jobID, "bob", nil); rec.Code != http.StatusNotFound {
		t.Errorf("other user's export status = %d, want 404", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/api/exports/missing", "alice", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing export status = %d, want 404", rec.Code)
	}

	var list struct {
		Count int `json:"count"`
	}
	decode(t, api.do(t, http.MethodGet, "/api/exports", "alice", nil), &list)
	if list.Count != 1 {
		t.Errorf("alice has %d exports, want 1", list.Count)
	}
	decode(t, api.do(t, http.MethodGet, "/api/exports", "bob", nil), &list)
	if list.Count != 0 {
		t.Errorf("bob has %d exports, want 0", list.Count)
	}
}
