package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakeAPI is a minimal dashboard backend. Login issues access token "a1",
// which it immediately considers stale; refresh with "r1" issues "a2".
type fakeAPI struct {
	mu            sync.Mutex
	valid         map[string]bool
	rejectRefresh bool
	refreshes     int
	txs           []map[string]any
	nextID        int
	lastBudget    map[string]any
	deleted       []int64
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{valid: map[string]bool{"a2": true}, nextID: 1}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeAPI) setRejectRefresh(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectRefresh = v
}

func (f *fakeAPI) locked(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	writeJSON := func(code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}

	switch r.URL.Path {
	case "/auth/":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			writeJSON(http.StatusUnauthorized, map[string]string{"detail": "bad credentials"})
			return
		}
		writeJSON(http.StatusOK, map[string]string{"access": "a1", "refresh": "r1"})
		return
	case "/auth/refresh/":
		f.refreshes++
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.rejectRefresh || body["refresh"] != "r1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(http.StatusOK, map[string]string{"access": "a2"})
		return
	case "/auth/logout/":
		w.WriteHeader(http.StatusOK)
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !f.valid[token] {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == "/auth/status/":
		writeJSON(http.StatusOK, map[string]bool{"authenticated": true})
	case r.URL.Path == "/transactions/" && r.Method == http.MethodGet:
		writeJSON(http.StatusOK, f.txs)
	case r.URL.Path == "/transactions/" && r.Method == http.MethodPost:
		var raw json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&raw)
		if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
			var batch []map[string]any
			_ = json.Unmarshal(raw, &batch)
			for _, tx := range batch {
				tx["id"] = f.nextID
				f.nextID++
			}
			f.txs = append(f.txs, batch...)
			writeJSON(http.StatusCreated, batch)
			return
		}
		var tx map[string]any
		_ = json.Unmarshal(raw, &tx)
		tx["id"] = f.nextID
		f.nextID++
		f.txs = append(f.txs, tx)
		writeJSON(http.StatusCreated, tx)
	case r.URL.Path == "/transactions/" && r.Method == http.MethodDelete:
		var body struct {
			IDs []int64 `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.deleted = append(f.deleted, body.IDs...)
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/get-user/":
		writeJSON(http.StatusOK, map[string]string{"username": "alice"})
	case r.URL.Path == "/categories/":
		writeJSON(http.StatusOK, map[string][]string{"categories": {"Food", "Home"}})
	case r.URL.Path == "/get-investments/":
		writeJSON(http.StatusOK, []map[string]any{
			{"id": 1, "symbol": "VWCE", "quantity": 2, "purchase_price": 100, "current_price": 110, "purchase_date": "2023-06-01"},
		})
	case r.URL.Path == "/user/settings/budget/":
		_ = json.NewDecoder(r.Body).Decode(&f.lastBudget)
		writeJSON(http.StatusOK, map[string]string{"status": "ok"})
	default:
		http.NotFound(w, r)
	}
}

func setupEnv(t *testing.T, baseURL string) {
	t.Helper()
	t.Setenv("FINTRACK_API_URL", baseURL)
	t.Setenv("CREDENTIAL_STORE", "file")
	t.Setenv("CREDENTIAL_FILE", filepath.Join(t.TempDir(), "credentials.json"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("AMQP_URL", "")
	t.Setenv("FINTRACK_USERNAME", "")
	t.Setenv("FINTRACK_PASSWORD", "")
}

type result struct {
	code           int
	stdout, stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
	}{
		{"no command", nil, exitUsage},
		{"help", []string{"help"}, exitOK},
		{"unknown command", []string{"frobnicate"}, exitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, "", tt.args...)
			if res.code != tt.wantCode {
				t.Fatalf("exit = %d, want %d (stderr %q)", res.code, tt.wantCode, res.stderr)
			}
			if !strings.Contains(res.stdout+res.stderr, "usage: fintrack") {
				t.Errorf("usage text missing")
			}
		})
	}
}

func TestRun_SubcommandUsageErrors(t *testing.T) {
	_, srv := newFakeAPI(t)
	setupEnv(t, srv.URL)

	tests := []struct {
		name string
		args []string
	}{
		{"tx without subcommand", []string{"tx"}},
		{"tx unknown subcommand", []string{"tx", "purge"}},
		{"tx add bad amount", []string{"tx", "add", "-name", "x", "-category", "c", "-amount", "abc"}},
		{"tx add missing name", []string{"tx", "add", "-category", "c", "-amount", "3"}},
		{"tx delete bad id", []string{"tx", "delete", "x"}},
		{"tx list bad month", []string{"tx", "list", "-month", "13"}},
		{"unknown flag", []string{"status", "-verbose"}},
		{"settings budget nothing", []string{"settings", "budget"}},
		{"settings display bad range", []string{"settings", "display", "-range", "decade"}},
		{"export month without year", []string{"export-sheets", "-month", "3"}},
		{"tx import without file", []string{"tx", "import"}},
		{"tx import bad type", []string{"tx", "import", "-file", "x.csv", "-type", "transfer"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := runCLI(t, "", tt.args...); res.code != exitUsage {
				t.Errorf("exit = %d, want %d (stderr %q)", res.code, exitUsage, res.stderr)
			}
		})
	}
}

func TestRun_LoginRejected(t *testing.T) {
	_, srv := newFakeAPI(t)
	setupEnv(t, srv.URL)

	res := runCLI(t, "", "login", "-username", "alice", "-password", "wrong")
	if res.code != exitFailure || !strings.Contains(res.stderr, "invalid username or password") {
		t.Fatalf("exit = %d stderr = %q", res.code, res.stderr)
	}
}

func TestRun_SessionPersistsAndRefreshes(t *testing.T) {
	api, srv := newFakeAPI(t)
	setupEnv(t, srv.URL)

	// Username and password come from stdin prompts.
	if res := runCLI(t, "alice\nsecret\n", "login"); res.code != exitOK {
		t.Fatalf("login exit = %d stderr = %q", res.code, res.stderr)
	}

	res := runCLI(t, "", "tx", "add", "-name", "Lunch", "-category", "Food", "-amount", "12.50", "-date", "2024-03-05")
	if res.code != exitOK {
		t.Fatalf("tx add exit = %d stderr = %q", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "Created transaction 1") {
		t.Errorf("tx add output = %q", res.stdout)
	}
	if n := api.refreshCount(); n != 1 {
		t.Errorf("refreshes = %d, want 1", n)
	}

	// The refreshed token was persisted: no second refresh.
	res = runCLI(t, "", "tx", "list")
	if res.code != exitOK {
		t.Fatalf("tx list exit = %d stderr = %q", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "Lunch") || !strings.Contains(res.stdout, "12.50") {
		t.Errorf("tx list output = %q", res.stdout)
	}
	if n := api.refreshCount(); n != 1 {
		t.Errorf("refreshes = %d after second run, want 1", n)
	}

	res = runCLI(t, "", "tx", "delete", "1,2", "3")
	if res.code != exitOK {
		t.Fatalf("tx delete exit = %d stderr = %q", res.code, res.stderr)
	}
	api.locked(func() {
		if len(api.deleted) != 3 {
			t.Errorf("deleted = %v", api.deleted)
		}
	})

	res = runCLI(t, "", "status")
	if res.code != exitOK || !strings.Contains(res.stdout, "Authenticated:  yes") {
		t.Errorf("status exit = %d stdout = %q", res.code, res.stdout)
	}
}

func TestRun_TerminatedSessionPointsToLogin(t *testing.T) {
	api, srv := newFakeAPI(t)
	setupEnv(t, srv.URL)

	if res := runCLI(t, "", "login", "-username", "alice", "-password", "secret"); res.code != exitOK {
		t.Fatalf("login exit = %d stderr = %q", res.code, res.stderr)
	}
	api.setRejectRefresh(true)

	res := runCLI(t, "", "tx", "list")
	if res.code != exitFailure {
		t.Fatalf("exit = %d, want %d", res.code, exitFailure)
	}
	if !strings.Contains(res.stderr, "fintrack login") {
		t.Errorf("stderr = %q, want login hint", res.stderr)
	}

	res = runCLI(t, "", "status")
	if !strings.Contains(res.stdout, "Stored session: no") {
		t.Errorf("credentials were not cleared: %q", res.stdout)
	}
}

func TestRun_SettingsBudget(t *testing.T) {
	api, srv := newFakeAPI(t)
	setupEnv(t, srv.URL)
	runCLI(t, "", "login", "-username", "alice", "-password", "secret")

	res := runCLI(t, "", "settings", "budget", "-monthly", "500", "-limit", "Food=200")
	if res.code != exitOK {
		t.Fatalf("exit = %d stderr = %q", res.code, res.stderr)
	}
	api.locked(func() {
		if api.lastBudget["monthlyBudget"] != float64(500) {
			t.Errorf("budget body = %v", api.lastBudget)
		}
		if _, ok := api.lastBudget["overSpendingThreshold"]; ok {
			t.Errorf("unset threshold was sent: %v", api.lastBudget)
		}
	})
}

func TestRun_ExportSheetsDryRun(t *testing.T) {
	_, srv := newFakeAPI(t)
	setupEnv(t, srv.URL)
	runCLI(t, "", "login", "-username", "alice", "-password", "secret")
	runCLI(t, "", "tx", "add", "-name", "Rent", "-category", "Home", "-amount", "800", "-date", "2023-12-01")
	runCLI(t, "", "tx", "add", "-name", "Lunch", "-category", "Food", "-amount", "12.5", "-date", "2024-03-05")
	runCLI(t, "", "tx", "add", "-name", "Salary", "-type", "Income", "-category", "Job", "-amount", "2000", "-date", "2024-03-01")

	res := runCLI(t, "", "export-sheets", "-dry-run")
	if res.code != exitOK {
		t.Fatalf("exit = %d stderr = %q", res.code, res.stderr)
	}
	for _, want := range []string{
		"2023: 1 written, 0 already present (mem:2023:1-1)",
		"2024: 2 written, 0 already present (mem:2024:1-2)",
	} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("output %q missing %q", res.stdout, want)
		}
	}

	res = runCLI(t, "", "export-sheets", "-dry-run", "-year", "2023")
	if res.code != exitOK || strings.Contains(res.stdout, "2024") {
		t.Errorf("year filter: exit = %d stdout = %q", res.code, res.stdout)
	}
}

func TestRun_EventsRequiresAMQP(t *testing.T) {
	_, srv := newFakeAPI(t)
	setupEnv(t, srv.URL)

	res := runCLI(t, "", "events")
	if res.code != exitFailure || !strings.Contains(res.stderr, "AMQP_URL") {
		t.Errorf("exit = %d stderr = %q", res.code, res.stderr)
	}
}

func TestRun_TxImport(t *testing.T) {
	api, srv := newFakeAPI(t)
	setupEnv(t, srv.URL)
	runCLI(t, "", "login", "-username", "alice", "-password", "secret")

	csvPath := filepath.Join(t.TempDir(), "march.csv")
	data := "title,category,amount,date,notes\n" +
		"Groceries,Food,12.34,2024-03-02,weekly\n" +
		"Rent,Home,900,2024-03-01,\n"
	if err := os.WriteFile(csvPath, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	res := runCLI(t, "", "tx", "import", "-file", csvPath, "-dry-run")
	if res.code != exitOK || !strings.Contains(res.stdout, "2 row(s) would be imported") {
		t.Fatalf("dry run: exit = %d stdout = %q stderr = %q", res.code, res.stdout, res.stderr)
	}
	api.locked(func() {
		if len(api.txs) != 0 {
			t.Errorf("dry run created transactions: %v", api.txs)
		}
	})

	res = runCLI(t, "", "tx", "import", "-file", csvPath)
	if res.code != exitOK || !strings.Contains(res.stdout, "Imported 2 transaction(s)") {
		t.Fatalf("import: exit = %d stdout = %q stderr = %q", res.code, res.stdout, res.stderr)
	}
	api.locked(func() {
		if len(api.txs) != 2 || api.txs[0]["name"] != "Groceries" || api.txs[1]["type"] != "Expense" {
			t.Errorf("backend transactions = %v", api.txs)
		}
	})

	res = runCLI(t, "title,category,amount,date\nCoffee,Food,3.5,2024-03-03\n", "tx", "import", "-file", "-", "-type", "income")
	if res.code != exitOK || !strings.Contains(res.stdout, "Imported 1 transaction(s)") {
		t.Fatalf("stdin import: exit = %d stdout = %q stderr = %q", res.code, res.stdout, res.stderr)
	}

	res = runCLI(t, "title,category,amount,date\nBad,Food,-1,2024-03-03\n", "tx", "import", "-file", "-")
	if res.code != exitFailure || !strings.Contains(res.stderr, "line 2") {
		t.Errorf("bad row: exit = %d stderr = %q", res.code, res.stderr)
	}
	api.locked(func() {
		if len(api.txs) != 3 {
			t.Errorf("a file with a bad row must not create anything, have %d transactions", len(api.txs))
		}
	})
}

func TestRun_AccountLookups(t *testing.T) {
	_, srv := newFakeAPI(t)
	setupEnv(t, srv.URL)
	runCLI(t, "", "login", "-username", "alice", "-password", "secret")

	tests := []struct {
		args []string
		want []string
	}{
		{[]string{"whoami"}, []string{"alice"}},
		{[]string{"categories"}, []string{"Food\nHome\n"}},
		{[]string{"investments"}, []string{"VWCE", "200.00", "220.00", "20.00"}},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			res := runCLI(t, "", tt.args...)
			if res.code != exitOK {
				t.Fatalf("exit = %d stderr = %q", res.code, res.stderr)
			}
			for _, want := range tt.want {
				if !strings.Contains(res.stdout, want) {
					t.Errorf("output %q missing %q", res.stdout, want)
				}
			}
		})
	}
}
