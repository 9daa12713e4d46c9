package salesforce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"bbys_backend/platform/logger"
)

type salesforceConfig struct {
	loginURL string
}

func (c salesforceConfig) GetSalesforceLoginURL() string     { return c.loginURL }
func (salesforceConfig) GetSalesforceClientID() string       { return "client" }
func (salesforceConfig) GetSalesforceClientSecret() string   { return "secret" }
func (salesforceConfig) GetSalesforceUsername() string       { return "sync@example.com" }
func (salesforceConfig) GetSalesforcePassword() string       { return "password" }
func (salesforceConfig) GetSalesforceAPIVersion() string     { return "" }
func (salesforceConfig) GetSalesforceRatePerSecond() float64 { return 0 }
func (salesforceConfig) IsSalesforceEnabled() bool           { return true }

var whereEquals = regexp.MustCompile(`FROM (\w+) WHERE ([\w.]+) = '((?:[^'\\]|\\.)*)'`)

// fakeCRM is an in-memory CRM speaking the REST dialect the client uses.
type fakeCRM struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.Mutex
	token      string
	logins     int
	calls      int
	expireNext bool
	failCode   string
	seq        int
	records    map[string]map[string]map[string]any
}

func newFakeCRM(t *testing.T) *fakeCRM {
	t.Helper()
	f := &fakeCRM{t: t, records: map[string]map[string]map[string]any{}}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCRM) client() *Client {
	return NewClient(salesforceConfig{loginURL: f.server.URL}, logger.New("development"))
}

// seed stores a record and returns its id.
func (f *fakeCRM) seed(object, id string, fields map[string]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records[object] == nil {
		f.records[object] = map[string]map[string]any{}
	}
	f.records[object][id] = fields
	return id
}

func (f *fakeCRM) record(object, id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[object][id]
}

func (f *fakeCRM) count(object string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records[object])
}

func (f *fakeCRM) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// expire invalidates the session before the next data call.
func (f *fakeCRM) expire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireNext = true
}

// fail makes every write answer with code until reset with "".
func (f *fakeCRM) fail(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCode = code
}

func (f *fakeCRM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func crmError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, []map[string]string{{"errorCode": code, "message": message}})
}

func (f *fakeCRM) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/services/oauth2/token" {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "password" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		f.logins++
		f.token = fmt.Sprintf("token-%d", f.logins)
		writeJSON(w, http.StatusOK, map[string]string{"access_token": f.token, "instance_url": f.server.URL})
		return
	}

	if f.expireNext {
		f.expireNext = false
		f.token = "expired"
	}
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		crmError(w, http.StatusUnauthorized, "INVALID_SESSION_ID", "Session expired or invalid")
		return
	}
	f.calls++

	path := strings.TrimPrefix(r.URL.Path, "/services/data/"+defaultAPIVersion)
	switch {
	case path == "/query" && r.Method == http.MethodGet:
		f.query(w, r.URL.Query().Get("q"))
	case strings.HasPrefix(path, "/sobjects/"):
		parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/sobjects/"), "/"), "/")
		object, id := parts[0], ""
		if len(parts) > 1 {
			id = parts[1]
		}
		f.sobject(w, r, object, id)
	default:
		crmError(w, http.StatusNotFound, "NOT_FOUND", "unknown resource")
	}
}

func (f *fakeCRM) query(w http.ResponseWriter, soql string) {
	m := whereEquals.FindStringSubmatch(soql)
	if m == nil {
		crmError(w, http.StatusBadRequest, "MALFORMED_QUERY", soql)
		return
	}
	object, field := m[1], m[2]
	value := strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(m[3])
	records := []map[string]any{}
	for id, rec := range f.records[object] {
		if (field == "Id" && id == value) || fmt.Sprint(rec[field]) == value {
			out := map[string]any{"Id": id}
			for k, v := range rec {
				out[k] = v
			}
			records = append(records, out)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"done": true, "totalSize": len(records), "records": records})
}

func (f *fakeCRM) sobject(w http.ResponseWriter, r *http.Request, object, id string) {
	if r.Method != http.MethodGet && f.failCode != "" {
		crmError(w, http.StatusBadRequest, f.failCode, "write rejected")
		return
	}
	switch r.Method {
	case http.MethodGet:
		rec, ok := f.records[object][id]
		if !ok {
			crmError(w, http.StatusNotFound, "NOT_FOUND", "no such record")
			return
		}
		out := map[string]any{"Id": id}
		for k, v := range rec {
			out[k] = v
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		fields := f.decode(r)
		f.seq++
		id = fmt.Sprintf("%s-%03d", object, f.seq)
		if f.records[object] == nil {
			f.records[object] = map[string]map[string]any{}
		}
		f.records[object][id] = fields
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "success": true})
	case http.MethodPatch:
		rec, ok := f.records[object][id]
		if !ok {
			crmError(w, http.StatusNotFound, "NOT_FOUND", "no such record")
			return
		}
		for k, v := range f.decode(r) {
			rec[k] = v
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeCRM) decode(r *http.Request) map[string]any {
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r.Body)
	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		f.t.Errorf("decode request body: %v", err)
	}
	return fields
}
