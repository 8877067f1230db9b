package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sabihealth/outreach/internal/call"
	"github.com/sabihealth/outreach/internal/calllog"
	"github.com/sabihealth/outreach/internal/message"
	"github.com/sabihealth/outreach/internal/outreach"
	"github.com/sabihealth/outreach/internal/recipient"
	"github.com/sabihealth/outreach/internal/referral"
	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/auth"
	"github.com/sabihealth/outreach/internal/shared/config"
	"github.com/sabihealth/outreach/internal/symptom"
)

type fixture struct {
	router http.Handler
	people []recipient.Recipient
	logs   *calllog.Recorder
}

func newFixture(t *testing.T, authCfg *config.AuthConfig) *fixture {
	t.Helper()
	people := recipient.DemoRecipients()
	directory := recipient.NewMemoryDirectory(people...)
	logs := calllog.NewRecorder(calllog.NewMemoryRepository(), nil, nil)
	calls := call.NewManager(call.ManagerConfig{
		Delivery: call.NewMockDelivery(),
		Resolver: referral.NewResolver(referral.NewSeededDirectory(), time.Second, nil),
		Recorder: logs,
	})
	svc := outreach.NewService(
		directory,
		risk.NewEvaluator(risk.NewSeededSource(), time.Second, nil),
		message.NewSeededComposer(1),
		calls,
		nil,
	)
	h := NewHandler(HandlerConfig{
		Outreach: svc,
		Calls:    calls,
		Logs:     logs,
		Symptoms: symptom.NewService(symptom.NewMemoryRepository(), directory, nil),
		Auth:     authCfg,
	})
	return &fixture{router: h.Routes(), people: people, logs: logs}
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[map[string]any](t, rec)
	code, _ := body["code"].(string)
	return code
}

func TestFeverCallFlow(t *testing.T) {
	f := newFixture(t, nil)
	amina := f.people[0]

	rec := f.do(t, http.MethodPost, "/calls", TriggerCallRequest{RecipientID: amina.ID}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("trigger status = %d, body %s", rec.Code, rec.Body.String())
	}
	session := decode[call.Session](t, rec)
	if session.State != call.StateIncoming || session.Risk.Level != risk.LevelHigh {
		t.Fatalf("triggered session = %s/%s", session.State, session.Risk.Level)
	}

	rec = f.do(t, http.MethodPost, "/calls/"+session.ID.String()+"/answer", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("answer status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[call.Session](t, rec).State; got != call.StateAwaitingResponse {
		t.Fatalf("state after answer = %s", got)
	}

	rec = f.do(t, http.MethodPost, "/calls/"+session.ID.String()+"/respond", RespondRequest{Response: "1"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("respond status = %d, body %s", rec.Code, rec.Body.String())
	}
	done := decode[call.Session](t, rec)
	if done.State != call.StateCompleted || done.Response != call.ResponseFever {
		t.Fatalf("completed session = %s/%s", done.State, done.Response)
	}
	if done.Referral == nil || done.Referral.Name != "Kano General Hospital" {
		t.Fatalf("referral = %+v", done.Referral)
	}

	rec = f.do(t, http.MethodGet, "/logs/"+session.ID.String(), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("log status = %d", rec.Code)
	}
	entry := decode[calllog.Entry](t, rec)
	if entry.ReferralName != "Kano General Hospital, Bompai Road, Kano" {
		t.Errorf("referral name = %q", entry.ReferralName)
	}
	if entry.TriggerType != call.TriggerManual || entry.FinalState != call.StateCompleted {
		t.Errorf("entry = %s/%s", entry.TriggerType, entry.FinalState)
	}

	rec = f.do(t, http.MethodPost, "/calls/"+session.ID.String()+"/respond", RespondRequest{Response: "FINE"}, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second respond status = %d, want 409", rec.Code)
	}
	if code := errorCode(t, rec); code != "ALREADY_FINALIZED" {
		t.Errorf("second respond code = %q", code)
	}
}

func TestDeclineFlow(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/calls", TriggerCallRequest{RecipientID: f.people[1].ID}, "")
	session := decode[call.Session](t, rec)

	rec = f.do(t, http.MethodPost, "/calls/"+session.ID.String()+"/decline", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("decline status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/logs?recipient_id="+f.people[1].ID.String(), nil, "")
	list := decode[struct {
		Data  []calllog.Entry `json:"data"`
		Total int             `json:"total"`
	}](t, rec)
	if list.Total != 1 || list.Data[0].Response != call.ResponseNone || list.Data[0].FinalState != call.StateDeclined {
		t.Errorf("logs = %+v", list)
	}

	rec = f.do(t, http.MethodPost, "/calls/"+session.ID.String()+"/answer", nil, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("answer after decline status = %d, want 409", rec.Code)
	}
}

func TestCallErrors(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/calls", TriggerCallRequest{RecipientID: f.people[0].ID}, "")
	session := decode[call.Session](t, rec)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad call id", http.MethodGet, "/calls/not-a-uuid", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown call", http.MethodGet, "/calls/" + "7f0c2a4e-0000-4000-8000-000000000000", nil, http.StatusNotFound, "NOT_FOUND"},
		{"respond before answer", http.MethodPost, "/calls/" + session.ID.String() + "/respond", RespondRequest{Response: "FINE"}, http.StatusConflict, "INVALID_TRANSITION"},
		{"invalid response", http.MethodPost, "/calls/" + session.ID.String() + "/respond", RespondRequest{Response: "maybe"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing recipient", http.MethodPost, "/calls", TriggerCallRequest{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown recipient", http.MethodPost, "/calls", TriggerCallRequest{RecipientID: "7f0c2a4e-0000-4000-8000-000000000001"}, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestEvaluateRisk(t *testing.T) {
	f := newFixture(t, nil)
	rain := 45.0
	medium := 20.0

	tests := []struct {
		name   string
		body   EvaluateRiskRequest
		status int
		level  risk.Level
	}{
		{"signal source", EvaluateRiskRequest{Location: "Kano Municipal", Region: "Kano"}, http.StatusOK, risk.LevelHigh},
		{"supplied rainfall", EvaluateRiskRequest{Location: "Ibadan North", Region: "Oyo", RainfallMM: &rain}, http.StatusOK, risk.LevelHigh},
		{"supplied medium", EvaluateRiskRequest{Location: "Ibadan North", Region: "Oyo", RainfallMM: &medium}, http.StatusOK, risk.LevelMedium},
		{"no risk", EvaluateRiskRequest{Location: "Ibadan North", Region: "Oyo"}, http.StatusOK, risk.LevelLow},
		{"missing location", EvaluateRiskRequest{Region: "Oyo"}, http.StatusBadRequest, ""},
		{"bad severity", EvaluateRiskRequest{Location: "Ikeja", Hotspots: []risk.Hotspot{{Disease: "Cholera", Severity: "extreme"}}}, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/risk/evaluate", tt.body, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.level == "" {
				return
			}
			a := decode[risk.Assessment](t, rec)
			if a.Level != tt.level {
				t.Errorf("level = %s, want %s", a.Level, tt.level)
			}
			if len(a.Reasons) == 0 {
				t.Error("assessment has no reasons")
			}
		})
	}

	rec := f.do(t, http.MethodGet, "/risk/Lagos/Ikeja", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET risk status = %d", rec.Code)
	}
	if a := decode[risk.Assessment](t, rec); a.Level != risk.LevelHigh {
		t.Errorf("Ikeja level = %s, want HIGH", a.Level)
	}
}

func TestSymptoms(t *testing.T) {
	f := newFixture(t, nil)
	id := f.people[2].ID

	rec := f.do(t, http.MethodPost, "/symptoms", SubmitSymptomsRequest{
		RecipientID: id,
		Symptoms:    symptom.Symptoms{Fever: symptom.IntensitySevere, Headache: symptom.IntensityMild},
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/symptoms", SubmitSymptomsRequest{
		RecipientID: id,
		Symptoms:    symptom.Symptoms{Fever: 9},
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid submit status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/symptoms?recipient_id="+id.String(), nil, "")
	list := decode[struct {
		Data []symptom.Report `json:"data"`
	}](t, rec)
	if len(list.Data) != 1 || list.Data[0].Symptoms.Fever != symptom.IntensitySevere {
		t.Errorf("reports = %+v", list.Data)
	}

	rec = f.do(t, http.MethodGet, "/symptoms", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("list without recipient status = %d, want 400", rec.Code)
	}
}

func TestOperatorAuth(t *testing.T) {
	cfg := &config.AuthConfig{JWTSecret: "api-secret", Issuer: "outreach"}
	f := newFixture(t, cfg)

	viewer, _ := auth.IssueToken(*cfg, "op-1", "Ngozi", []string{auth.RoleViewer}, time.Hour)
	dispatcher, _ := auth.IssueToken(*cfg, "op-2", "Bayo", []string{auth.RoleDispatcher}, time.Hour)
	trigger := TriggerCallRequest{RecipientID: f.people[0].ID}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		token  string
		status int
	}{
		{"anonymous read", http.MethodGet, "/recipients", nil, "", http.StatusUnauthorized},
		{"viewer read", http.MethodGet, "/recipients", nil, viewer, http.StatusOK},
		{"viewer trigger", http.MethodPost, "/calls", trigger, viewer, http.StatusForbidden},
		{"dispatcher trigger", http.MethodPost, "/calls", trigger, dispatcher, http.StatusCreated},
		{"dispatcher read", http.MethodGet, "/personas", nil, dispatcher, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body, tt.token)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestListCalls(t *testing.T) {
	f := newFixture(t, nil)
	for _, p := range f.people {
		f.do(t, http.MethodPost, "/calls", TriggerCallRequest{RecipientID: p.ID}, "")
	}

	rec := f.do(t, http.MethodGet, "/calls", nil, "")
	all := decode[struct {
		Total int `json:"total"`
	}](t, rec)
	if all.Total != len(f.people) {
		t.Errorf("total = %d, want %d", all.Total, len(f.people))
	}

	rec = f.do(t, http.MethodGet, "/calls?recipient_id="+f.people[0].ID.String(), nil, "")
	one := decode[struct {
		Data []call.Session `json:"data"`
	}](t, rec)
	if len(one.Data) != 1 || one.Data[0].RecipientID != f.people[0].ID {
		t.Errorf("filtered calls = %+v", one.Data)
	}

	if _, err := f.logs.List(context.Background(), calllog.Filter{}); err != nil {
		t.Errorf("logs.List() error = %v", err)
	}
}
