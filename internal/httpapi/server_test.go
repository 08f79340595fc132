package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/antoniostano/waply/internal/config"
	"github.com/antoniostano/waply/internal/observability"
	"github.com/antoniostano/waply/internal/ratelimit"
	"github.com/antoniostano/waply/internal/store"
	"github.com/antoniostano/waply/internal/webhook"
	"github.com/antoniostano/waply/internal/whatsapp"
)

type stubGenerator struct {
	reply string
	err   error
	calls int
}

func (s *stubGenerator) Generate(context.Context, []store.TurnRecord, string) (string, error) {
	s.calls++
	return s.reply, s.err
}

type stubSender struct {
	err   error
	calls int
}

func (s *stubSender) SendText(context.Context, string, string) error {
	s.calls++
	return s.err
}

func testConfig() config.Config {
	return config.Config{
		MetaVerifyToken:    "verify-token",
		MetaAppSecret:      "s3cr3t",
		RateLimitPerMinute: 10,
	}
}

func newTestMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	return observability.NewMetrics(fmt.Sprintf("test_httpapi_%d", time.Now().UnixNano()))
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func textEventBody(id, from, text string) []byte {
	return []byte(fmt.Sprintf(
		`{"entry":[{"changes":[{"value":{"messages":[{"from":%q,"id":%q,"type":"text","text":{"body":%q}}]}}]}]}`,
		from, id, text,
	))
}

func newTestServer(t *testing.T, gen webhook.Generator, snd webhook.Sender) (*httptest.Server, *store.InMemoryStore) {
	t.Helper()
	cfg := testConfig()
	metrics := newTestMetrics(t)
	st := store.NewInMemoryStore()
	proc := webhook.NewProcessor(st, ratelimit.NewSlidingWindow(), gen, snd, metrics, cfg.RateLimitPerMinute)
	ts := httptest.NewServer(New(cfg, proc, metrics).Router())
	t.Cleanup(ts.Close)
	return ts, st
}

func postSigned(t *testing.T, url string, body []byte, sig string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/webhook", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("X-Hub-Signature-256", sig)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	t.Cleanup(func() { res.Body.Close() })

	var decoded map[string]any
	raw, _ := io.ReadAll(res.Body)
	_ = json.Unmarshal(raw, &decoded)
	return res, decoded
}

func TestVerifyHandshakeEchoesChallenge(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{reply: "hi"}, &stubSender{})

	res, err := http.Get(ts.URL + "/webhook?hub.mode=subscribe&hub.verify_token=verify-token&hub.challenge=1158201444")
	if err != nil {
		t.Fatalf("GET /webhook error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	body, _ := io.ReadAll(res.Body)
	if string(body) != "1158201444" {
		t.Fatalf("body = %q, want the challenge", body)
	}
}

func TestVerifyHandshakeRejections(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{reply: "hi"}, &stubSender{})

	cases := []struct {
		name  string
		query string
		want  int
	}{
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", http.StatusForbidden},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-token&hub.challenge=42", http.StatusForbidden},
		{"missing params", "", http.StatusForbidden},
		{"non-numeric challenge", "hub.mode=subscribe&hub.verify_token=verify-token&hub.challenge=abc", http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := http.Get(ts.URL + "/webhook?" + tc.query)
			if err != nil {
				t.Fatalf("GET /webhook error = %v", err)
			}
			defer res.Body.Close()
			if res.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", res.StatusCode, tc.want)
			}
		})
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	gen := &stubGenerator{reply: "hi"}
	ts, _ := newTestServer(t, gen, &stubSender{})

	body := textEventBody("wamid.sig", "491701234567", "hello")

	res, _ := postSigned(t, ts.URL, body, "")
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("missing signature status = %d, want 403", res.StatusCode)
	}

	res, _ = postSigned(t, ts.URL, body, signBody("wrong-secret", body))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("bad signature status = %d, want 403", res.StatusCode)
	}

	if gen.calls != 0 {
		t.Fatalf("generator calls = %d, want 0: body must not be processed before the signature check", gen.calls)
	}
}

func TestWebhookMissingSecretIsServerError(t *testing.T) {
	cfg := testConfig()
	cfg.MetaAppSecret = ""
	metrics := newTestMetrics(t)
	st := store.NewInMemoryStore()
	proc := webhook.NewProcessor(st, ratelimit.NewSlidingWindow(), &stubGenerator{reply: "hi"}, &stubSender{}, metrics, 10)
	ts := httptest.NewServer(New(cfg, proc, metrics).Router())
	defer ts.Close()

	body := textEventBody("wamid.cfg", "491701234567", "hello")
	res, _ := postSigned(t, ts.URL, body, signBody("s3cr3t", body))
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for missing app secret", res.StatusCode)
	}
}

func TestWebhookRepliesAndAcks(t *testing.T) {
	snd := &stubSender{}
	ts, st := newTestServer(t, &stubGenerator{reply: "hey!"}, snd)

	body := textEventBody("wamid.ok", "491701234567", "hello")
	res, ack := postSigned(t, ts.URL, body, signBody("s3cr3t", body))

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if ack["ok"] != true {
		t.Fatalf("ack = %v, want ok:true", ack)
	}
	if snd.calls != 1 {
		t.Fatalf("sender calls = %d, want 1", snd.calls)
	}
	turns, _ := st.RecentTurns(context.Background(), "wa:491701234567", 10)
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want user + assistant", len(turns))
	}
}

func TestWebhookDuplicateDeliveryAcksWithoutSideEffects(t *testing.T) {
	snd := &stubSender{}
	gen := &stubGenerator{reply: "hey!"}
	ts, st := newTestServer(t, gen, snd)

	body := textEventBody("wamid.dup", "491701234567", "hello")
	sig := signBody("s3cr3t", body)

	postSigned(t, ts.URL, body, sig)
	res, ack := postSigned(t, ts.URL, body, sig)

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if len(ack) != 1 || ack["ok"] != true {
		t.Fatalf("ack = %v, want bare {\"ok\":true}", ack)
	}
	if gen.calls != 1 || snd.calls != 1 {
		t.Fatalf("generator/sender calls = %d/%d, want 1/1", gen.calls, snd.calls)
	}
	turns, _ := st.RecentTurns(context.Background(), "wa:491701234567", 10)
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want one stored exchange", len(turns))
	}
}

func TestWebhookImageTypeAckedAndIgnored(t *testing.T) {
	gen := &stubGenerator{reply: "hey!"}
	ts, st := newTestServer(t, gen, &stubSender{})

	body := []byte(`{"entry":[{"changes":[{"value":{"messages":[{"from":"491701234567","id":"wamid.img","type":"image"}]}}]}]}`)
	res, ack := postSigned(t, ts.URL, body, signBody("s3cr3t", body))

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if ack["ok"] != true {
		t.Fatalf("ack = %v, want ok:true", ack)
	}
	if gen.calls != 0 {
		t.Fatalf("generator calls = %d, want 0 for image type", gen.calls)
	}
	turns, _ := st.RecentTurns(context.Background(), "wa:491701234567", 10)
	if len(turns) != 0 {
		t.Fatalf("len(turns) = %d, want 0", len(turns))
	}
}

func TestWebhookRateLimitFlag(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	metrics := newTestMetrics(t)
	st := store.NewInMemoryStore()
	snd := &stubSender{}
	proc := webhook.NewProcessor(st, ratelimit.NewSlidingWindow(), &stubGenerator{reply: "hi"}, snd, metrics, cfg.RateLimitPerMinute)
	ts := httptest.NewServer(New(cfg, proc, metrics).Router())
	defer ts.Close()

	first := textEventBody("wamid.r1", "491701234567", "one")
	postSigned(t, ts.URL, first, signBody("s3cr3t", first))

	second := textEventBody("wamid.r2", "491701234567", "two")
	res, ack := postSigned(t, ts.URL, second, signBody("s3cr3t", second))

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if ack["rate_limited"] != true {
		t.Fatalf("ack = %v, want rate_limited:true", ack)
	}
	if snd.calls != 1 {
		t.Fatalf("sender calls = %d, want only the first message answered", snd.calls)
	}
}

func TestWebhookSendFailureFlag(t *testing.T) {
	snd := &stubSender{err: &whatsapp.APIError{StatusCode: 500, Body: "boom"}}
	ts, _ := newTestServer(t, &stubGenerator{reply: "hey!"}, snd)

	body := textEventBody("wamid.sf", "491701234567", "hello")
	res, ack := postSigned(t, ts.URL, body, signBody("s3cr3t", body))

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: send failures must still ack", res.StatusCode)
	}
	if ack["send_failed"] != true {
		t.Fatalf("ack = %v, want send_failed:true", ack)
	}
}

func TestWebhookStatusPayloadAcked(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{reply: "hey!"}, &stubSender{})

	body := []byte(`{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.x","status":"delivered"}]}}]}]}`)
	res, ack := postSigned(t, ts.URL, body, signBody("s3cr3t", body))

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if ack["ok"] != true {
		t.Fatalf("ack = %v, want ok:true", ack)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, &stubGenerator{reply: "hi"}, &stubSender{})

	for _, path := range []string{"/healthz", "/readyz"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, res.StatusCode)
		}
	}
}
