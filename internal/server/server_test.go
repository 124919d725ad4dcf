package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"onboardline/internal/config"
	"onboardline/internal/db"
	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/engine/auth"
	"onboardline/internal/mailer"
	"onboardline/internal/migrate"
	"onboardline/internal/orchestrator"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	Mail   *mailer.MemoryTransport
	// AdminKey is an X-Api-Key for a seeded hr_admin user.
	AdminKey string
	client   *http.Client
	close    func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) admin() map[string]string {
	return map[string]string{"X-Api-Key": s.AdminKey}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func newTestServer(t *testing.T, tweak ...func(*engine.Engine)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = testSecret
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	mail := &mailer.MemoryTransport{}
	e.Mail = mail
	for _, fn := range tweak {
		fn(&e)
	}
	ctx := context.Background()
	admin, err := e.CreateHRUser(ctx, "admin@example.com", "Admin", auth.RoleHRAdmin)
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	_, key, err := e.CreateAPIKey(ctx, admin.ID, "tests")
	if err != nil {
		t.Fatalf("seed api key: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:      "http://" + ln.Addr().String(),
		Engine:   e,
		Mail:     mail,
		AdminKey: key,
		client:   &http.Client{},
		close: func() {
			srv.Close()
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %s: %v", string(data), err)
	}
	return out
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func expectError(t *testing.T, res *http.Response, data []byte, status int, code string) errorEnvelope {
	t.Helper()
	if res.StatusCode != status {
		t.Fatalf("expected %d, got %d: %s", status, res.StatusCode, string(data))
	}
	env := decode[errorEnvelope](t, data)
	if env.Error.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, env.Error.Code, string(data))
	}
	return env
}

// openCase creates a case as HR and exchanges its application code for a
// candidate token.
func openCase(t *testing.T, srv *testServer) (domain.Case, string) {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/hr/cases", map[string]any{
		"candidate_name": "Dana Reyes",
		"role":           "Product Designer",
		"nationality":    "GB",
		"work_location":  "London",
		"start_date":     time.Now().AddDate(0, 2, 0).Format("2006-01-02"),
		"salary":         72000,
	}, srv.admin())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create case: %d %s", res.StatusCode, string(data))
	}
	c := decode[domain.Case](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/hr/cases/"+c.ID+"/application-code", nil, srv.admin())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("application code: %d %s", res.StatusCode, string(data))
	}
	code := decode[domain.ApplicationCode](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/candidate/session", map[string]any{"application_code": code.Code}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("session: %d %s", res.StatusCode, string(data))
	}
	sess := decode[SessionResponse](t, data)
	if sess.Token == "" || sess.Case.ID != c.ID {
		t.Fatalf("unexpected session %+v", sess)
	}
	return c, sess.Token
}

func submitStep(t *testing.T, srv *testServer, token, caseID, step string, payload map[string]any, next int) (*http.Response, []byte) {
	t.Helper()
	return doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/cases/"+caseID+"/steps/"+step, map[string]any{
		"payload":         payload,
		"next_step_index": next,
	}, bearer(token))
}

func walkWizard(t *testing.T, srv *testServer, token, caseID string) {
	t.Helper()
	steps := []struct {
		key     string
		payload map[string]any
	}{
		{"welcome", map[string]any{}},
		{"offer", map[string]any{"decision": "accept"}},
		{"identity", map[string]any{"email": "dana@example.com"}},
		{"documents", map[string]any{"passport": true}},
		{"workAuth", map[string]any{"status": "citizen"}},
		{"profile", map[string]any{"workMode": "onsite"}},
	}
	for i, s := range steps {
		res, data := submitStep(t, srv, token, caseID, s.key, s.payload, i+1)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("step %s: %d %s", s.key, res.StatusCode, string(data))
		}
	}
}

func TestHealthAndAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "ok") {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/hr/cases", nil, nil)
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/hr/cases", nil, bearer("not-a-jwt"))
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/hr/cases", nil, map[string]string{"X-Api-Key": "olk_wrong"})
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/candidate/session", map[string]any{"application_code": "APP-NOPE00"}, nil)
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "bearerAuth") {
		t.Fatalf("openapi: %d", res.StatusCode)
	}
}

func TestCandidateWizardThroughHRAcceptance(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	c, token := openCase(t, srv)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/cases/"+c.ID, nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get case: %d %s", res.StatusCode, string(data))
	}
	walkWizard(t, srv, token, c.ID)

	res, data = submitStep(t, srv, token, c.ID, "review", map[string]any{"attested": true}, 7)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("review: %d %s", res.StatusCode, string(data))
	}
	c = decode[domain.Case](t, data)
	if c.Status != domain.StatusSubmittedForHRReview || c.AgentPlan == nil || c.CurrentStepIndex != domain.StepDone {
		t.Fatalf("unexpected submitted case: status=%s plan=%v index=%d", c.Status, c.AgentPlan != nil, c.CurrentStepIndex)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/hr/cases/"+c.ID+"/orchestrate", map[string]any{"notes": "desk near design team"}, srv.admin())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("orchestrate: %d %s", res.StatusCode, string(data))
	}
	c = decode[domain.Case](t, data)
	if c.Status != domain.StatusReadyForDay1 {
		t.Fatalf("expected READY_FOR_DAY1, got %s", c.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/hr/cases?status=READY_FOR_DAY1", nil, srv.admin())
	list := decode[CaseListResponse](t, data)
	if res.StatusCode != http.StatusOK || len(list.Items) != 1 || list.Items[0].OfferDecision != "accept" {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/hr/employees", nil, srv.admin())
	emps := decode[EmployeeListResponse](t, data)
	if res.StatusCode != http.StatusOK || len(emps.Items) != 1 || emps.Items[0].Assets == nil {
		t.Fatalf("employees: %d %s", res.StatusCode, string(data))
	}
	seat := "L3-42"
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/hr/employees/"+emps.Items[0].EmployeeID+"/assets", map[string]any{"seat_id": seat}, srv.admin())
	emp := decode[domain.Employee](t, data)
	if res.StatusCode != http.StatusOK || emp.Assets == nil || emp.Assets.SeatID != seat {
		t.Fatalf("assets: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/hr/cases/"+c.ID+"/events?limit=3", nil, srv.admin())
	evts := decode[EventListResponse](t, data)
	if res.StatusCode != http.StatusOK || len(evts.Items) != 3 || evts.Items[2].Type != "agent.assets_assigned" {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
}

func TestCandidateScope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	mine, token := openCase(t, srv)
	other, _ := openCase(t, srv)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/cases/"+other.ID, nil, bearer(token))
	env := expectError(t, res, data, http.StatusForbidden, "forbidden")
	if env.Error.Details["permission"] != "case.read" {
		t.Fatalf("details: %v", env.Error.Details)
	}
	res, data = submitStep(t, srv, token, other.ID, "welcome", map[string]any{}, 1)
	expectError(t, res, data, http.StatusForbidden, "forbidden")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/hr/cases", nil, bearer(token))
	expectError(t, res, data, http.StatusForbidden, "forbidden")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/hr/api-keys", nil, bearer(token))
	expectError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/cases/"+mine.ID, nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("own case: %d %s", res.StatusCode, string(data))
	}

	hrToken, _, err := signToken(testSecret, auth.Principal{ActorID: "hr-7", Role: auth.RoleHR}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/hr/cases/"+mine.ID, nil, bearer(hrToken))
	expectError(t, res, data, http.StatusForbidden, "forbidden")
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/hr/cases/"+mine.ID, nil, srv.admin())
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/cases/"+mine.ID, nil, bearer(token))
	expectError(t, res, data, http.StatusNotFound, "not_found")
}

func TestStepErrorsUseEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	c, token := openCase(t, srv)

	res, data := submitStep(t, srv, token, c.ID, "bogus", map[string]any{}, 1)
	expectError(t, res, data, http.StatusBadRequest, "invalid_step")
	res, data = submitStep(t, srv, token, c.ID, "review", map[string]any{"attested": false}, 7)
	expectError(t, res, data, http.StatusBadRequest, "invalid_step")

	res, data = submitStep(t, srv, token, c.ID, "offer", map[string]any{"decision": "concern", "concerns": "Relocation support is unclear"}, 2)
	if res.StatusCode != http.StatusOK || decode[domain.Case](t, data).Status != domain.StatusOnHoldHR {
		t.Fatalf("concern: %d %s", res.StatusCode, string(data))
	}
	res, data = submitStep(t, srv, token, c.ID, "identity", map[string]any{}, 3)
	expectError(t, res, data, http.StatusConflict, "case_paused")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/hr/cases/"+c.ID+"/resume", map[string]any{"note": "Relocation package confirmed"}, srv.admin())
	if res.StatusCode != http.StatusOK || decode[domain.Case](t, data).Status != domain.StatusDraft {
		t.Fatalf("resume: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/hr/cases/"+c.ID+"/resume", nil, srv.admin())
	expectError(t, res, data, http.StatusConflict, "conflict")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/hr/cases/"+c.ID+"/status", map[string]any{"status": "DECLINED"}, srv.admin())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("decline: %d %s", res.StatusCode, string(data))
	}
	res, data = submitStep(t, srv, token, c.ID, "offer", map[string]any{"decision": "accept"}, 2)
	env := expectError(t, res, data, http.StatusConflict, "case_terminal")
	if env.Error.Details["status"] != string(domain.StatusDeclined) {
		t.Fatalf("details: %v", env.Error.Details)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/hr/cases", map[string]any{
		"candidate_name": "No Location",
		"role":           "Engineer",
		"nationality":    "FR",
		"work_location":  "",
		"salary":         -1,
	}, srv.admin())
	env = expectError(t, res, data, http.StatusBadRequest, "bad_request")
	if _, ok := env.Error.Details["fields"]; !ok {
		t.Fatalf("expected field details: %s", string(data))
	}
}

func TestOrchestratorFailureReturnsSavedCase(t *testing.T) {
	srv, cleanup := newTestServer(t, func(e *engine.Engine) {
		e.Orchestrator = orchestrator.RunnerFunc(func(ctx context.Context, snap orchestrator.Snapshot, notes string, emit orchestrator.EmitFunc) (domain.AgentPlan, error) {
			return domain.AgentPlan{}, errors.New("planner unavailable")
		})
	})
	defer cleanup()
	c, token := openCase(t, srv)
	walkWizard(t, srv, token, c.ID)

	res, data := submitStep(t, srv, token, c.ID, "review", map[string]any{"attested": true}, 7)
	env := expectError(t, res, data, http.StatusBadGateway, "upstream_failure")
	saved, ok := env.Error.Details["case"].(map[string]any)
	if !ok || saved["status"] != string(domain.StatusSubmittedForHRReview) {
		t.Fatalf("expected saved case in details: %s", string(data))
	}
}

func TestLowStockEmailOnceOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	c, _ := openCase(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/it/stock-check", map[string]any{"model": "usb-c dock"}, srv.admin())
	check := decode[domain.StockCheck](t, data)
	if res.StatusCode != http.StatusOK || check.StockStatus != domain.StockOutOfStock {
		t.Fatalf("stock check: %d %s", res.StatusCode, string(data))
	}

	body := map[string]any{"case_id": c.ID, "it_email": "it@example.com", "model": "usb-c dock", "missing_items": check.MissingItems}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/it/low-stock-email", body, srv.admin())
	if out := decode[domain.EmailOutcome](t, data); res.StatusCode != http.StatusOK || out.Result != domain.EmailSent {
		t.Fatalf("first email: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/it/low-stock-email", body, srv.admin())
	if out := decode[domain.EmailOutcome](t, data); res.StatusCode != http.StatusOK || out.Result != domain.EmailSkipped || out.Reason != "already_sent" {
		t.Fatalf("second email: %d %s", res.StatusCode, string(data))
	}
	if n := len(srv.Mail.Sent()); n != 1 {
		t.Fatalf("expected one delivery, got %d", n)
	}

	body["it_email"] = "not-an-address"
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/it/low-stock-email", body, srv.admin())
	expectError(t, res, data, http.StatusBadRequest, "bad_request")
}

func TestFeedStreamsNewEvents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	c, token := openCase(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v0/cases/"+c.ID+"/feed?access_token="+token, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK || !strings.HasPrefix(res.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("feed: %d %s", res.StatusCode, res.Header.Get("Content-Type"))
	}

	scanner := bufio.NewScanner(res.Body)
	nextData := func() (event string, data string, retry bool) {
		event = "message"
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if data != "" {
					return event, data, retry
				}
			case strings.HasPrefix(line, "retry:"):
				retry = true
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
		t.Fatalf("feed ended: %v", scanner.Err())
		return
	}

	event, _, retry := nextData()
	if event != "ready" || !retry {
		t.Fatalf("expected ready frame with retry, got %s retry=%v", event, retry)
	}

	res2, data := submitStep(t, srv, token, c.ID, "welcome", map[string]any{}, 1)
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("welcome: %d %s", res2.StatusCode, string(data))
	}
	_, payload, _ := nextData()
	evt := decode[domain.Event](t, []byte(payload))
	if evt.Type != "ui.step_saved" || evt.CaseID != c.ID || evt.Payload["step_key"] != "welcome" {
		t.Fatalf("unexpected event %+v", evt)
	}

	other, _ := openCase(t, srv)
	res3, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/cases/"+other.ID+"/feed?access_token="+token, nil, nil)
	expectError(t, res3, data, http.StatusForbidden, "forbidden")
}
