package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/danmuck/edgelink/internal/auth"
	"github.com/danmuck/edgelink/internal/driver"
	"github.com/danmuck/edgelink/internal/node"
	"github.com/danmuck/edgelink/internal/plugins"
	"github.com/danmuck/edgelink/internal/rest"
	"github.com/danmuck/edgelink/internal/testutil/nodetest"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

const trackBody = `{
	"loadType": "TRACK_LOADED",
	"playlistInfo": {},
	"tracks": [{"encoded": "QAAA1", "info": {"identifier": "dQw4w9WgXcQ", "title": "never", "length": 212000, "sourceName": "youtube"}}]
}`

type stubNodes map[string]driver.Driver

func (s stubNodes) Get(name string) (driver.Driver, bool) {
	d, ok := s[name]
	return d, ok
}

func (s stubNodes) List() []node.Status {
	out := make([]node.Status, 0, len(s))
	for name, d := range s {
		out = append(out, node.Status{Name: name, Driver: d.Kind(), State: d.State().String()})
	}
	return out
}

func newTestServer(t *testing.T, fake *nodetest.Server) *Server {
	t.Helper()
	return newTestServerWith(t, fake, Config{Addr: ":0"})
}

func newTestServerWith(t *testing.T, fake *nodetest.Server, cfg Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	d, err := driver.New(driver.KindLavalink3, driver.Options{Endpoint: fake.Endpoint("main")})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	reg, err := plugins.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return New(cfg, stubNodes{"main": d}, rest.NewTable(), reg)
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndNodes(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, nodetest.New(t))

	rec := serve(s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status=%d", rec.Code)
	}
	var health map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "ok" || health["version"] != driver.Version {
		t.Fatalf("unexpected health: %v", health)
	}

	rec = serve(s, http.MethodGet, "/nodes", "")
	var nodes struct {
		Nodes []node.Status `json:"nodes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &nodes); err != nil {
		t.Fatalf("decode nodes: %v", err)
	}
	if len(nodes.Nodes) != 1 || nodes.Nodes[0].Name != "main" || nodes.Nodes[0].State != "disconnected" {
		t.Fatalf("unexpected nodes: %+v", nodes.Nodes)
	}

	rec = serve(s, http.MethodGet, "/nodes/main/ops", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"loadTracks"`) {
		t.Fatalf("ops status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, nodetest.New(t))
	serve(s, http.MethodGet, "/health", "")

	rec := serve(s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "edgelink_admin_requests_total") {
		t.Fatalf("admin request counter missing from /metrics")
	}
}

func TestInvokeOpReturnsResult(t *testing.T) {
	testlog.Start(t)
	fake := nodetest.New(t)
	fake.HandleJSON(http.MethodGet, "/loadtracks", http.StatusOK, trackBody)
	s := newTestServer(t, fake)

	rec := serve(s, http.MethodPost, "/nodes/main/ops/loadTracks", `{"identifier":"dQw4w9WgXcQ"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var got struct {
		Status string `json:"status"`
		Result struct {
			LoadType string `json:"loadType"`
			Data     struct {
				Encoded string `json:"encoded"`
			} `json:"data"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ok" || got.Result.LoadType != "track" || got.Result.Data.Encoded != "QAAA1" {
		t.Fatalf("unexpected result: %+v", got)
	}

	reqs := fake.Requests()
	if len(reqs) != 1 {
		t.Fatalf("node saw %d requests, want 1", len(reqs))
	}
	q, _ := url.ParseQuery(reqs[0].RawQuery)
	if q.Get("identifier") != "dQw4w9WgXcQ" {
		t.Fatalf("identifier=%q", q.Get("identifier"))
	}
}

func TestInvokeOpArgsFromQuery(t *testing.T) {
	testlog.Start(t)
	fake := nodetest.New(t)
	fake.HandleJSON(http.MethodGet, "/loadtracks", http.StatusNoContent, "")
	s := newTestServer(t, fake)

	rec := serve(s, http.MethodPost, "/nodes/main/ops/loadTracks?identifier=abc", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestInvokeOpStatusMapping(t *testing.T) {
	testlog.Start(t)
	fake := nodetest.New(t)
	fake.HandleJSON(http.MethodGet, "/loadtracks", http.StatusOK, `{"loadType":"MYSTERY"}`)
	s := newTestServer(t, fake)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"unknown node", "/nodes/ghost/ops/info", "", http.StatusNotFound},
		{"unknown op", "/nodes/main/ops/teleport", "", http.StatusNotFound},
		{"missing arg", "/nodes/main/ops/loadTracks", "", http.StatusBadRequest},
		{"invalid arg", "/nodes/main/ops/updatePlayer", `{"guild":"1","volume":"loud"}`, http.StatusBadRequest},
		{"bad body", "/nodes/main/ops/loadTracks", `[1,2]`, http.StatusBadRequest},
		{"no session", "/nodes/main/ops/player", `{"guild":"1"}`, http.StatusConflict},
		{"malformed node reply", "/nodes/main/ops/loadTracks", `{"identifier":"x"}`, http.StatusBadGateway},
	}
	for _, tc := range tests {
		rec := serve(s, http.MethodPost, tc.target, tc.body)
		if rec.Code != tc.want {
			t.Fatalf("%s: status=%d want %d body=%s", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestSearchRoutesThroughSources(t *testing.T) {
	testlog.Start(t)
	fake := nodetest.New(t)
	fake.HandleJSON(http.MethodGet, "/loadtracks", http.StatusOK, `{"loadType":"NO_MATCHES","playlistInfo":{},"tracks":[]}`)
	s := newTestServer(t, fake)

	rec := serve(s, http.MethodGet, "/nodes/main/search?q=lofi&engine=sc", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"empty"`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = serve(s, http.MethodGet, "/nodes/main/search?q=lofi", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("default engine status=%d", rec.Code)
	}

	reqs := fake.Requests()
	if len(reqs) != 2 {
		t.Fatalf("node saw %d requests, want 2", len(reqs))
	}
	want := []string{"scsearch:lofi", "ytsearch:lofi"}
	for i, r := range reqs {
		q, _ := url.ParseQuery(r.RawQuery)
		if q.Get("identifier") != want[i] {
			t.Fatalf("request %d identifier=%q want %q", i, q.Get("identifier"), want[i])
		}
	}

	if rec := serve(s, http.MethodGet, "/nodes/main/search?q=lofi&engine=napster", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown engine status=%d", rec.Code)
	}
	if rec := serve(s, http.MethodGet, "/nodes/main/search", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing q status=%d", rec.Code)
	}
}

func TestNodeRoutesRequireToken(t *testing.T) {
	testlog.Start(t)
	s := newTestServerWith(t, nodetest.New(t), Config{Addr: ":0", Auth: auth.StaticToken{Token: "s3cret"}})

	if rec := serve(s, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health should stay open, status=%d", rec.Code)
	}
	rec := serve(s, http.MethodGet, "/nodes", "")
	if rec.Code != http.StatusUnauthorized || rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("missing token status=%d header=%q", rec.Code, rec.Header().Get("WWW-Authenticate"))
	}

	req := httptest.NewRequest(http.MethodGet, "/nodes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/nodes", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestBindArgsKeepsLargeIntegers(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	body := `{"guild":"1","position":9007199254740993,"volume":55,"paused":true,"ratio":0.25,"encoded":["QAAA1","QAAA2"]}`
	req := httptest.NewRequest(http.MethodPost, "/nodes/main/ops/updatePlayer?noReplace=true", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req

	args, err := bindArgs(c)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	want := map[string]string{
		"guild":     "1",
		"position":  "9007199254740993",
		"volume":    "55",
		"paused":    "true",
		"ratio":     "0.25",
		"encoded":   "QAAA1,QAAA2",
		"noReplace": "true",
	}
	for k, v := range want {
		if args[k] != v {
			t.Fatalf("arg %s=%q want %q", k, args[k], v)
		}
	}
	if pos, err := args.Int("position"); err != nil || pos == nil || *pos != 9007199254740993 {
		t.Fatalf("position must parse exactly, got %v err=%v", pos, err)
	}
}

func TestNormalizeOrigins(t *testing.T) {
	testlog.Start(t)
	if got := normalizeOrigins(nil); len(got) != 1 || got[0] != "http://localhost:3000" {
		t.Fatalf("default origins=%v", got)
	}
	in := []string{"https://ops.example"}
	if got := normalizeOrigins(in); got[0] != in[0] {
		t.Fatalf("origins=%v", got)
	}
}
