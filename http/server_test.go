package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lnhunt "github.com/lnhunt/lnhunt"
	"github.com/lnhunt/lnhunt/lnbits"
	"github.com/lnhunt/lnhunt/progress"
	"github.com/lnhunt/lnhunt/ratelimit"
	"github.com/lnhunt/lnhunt/session"
)

const serverQuestions = `[
  {
    "id": "q1",
    "question": "Which layer does the network settle on?",
    "options": ["Layer 0", "Layer 1", "Layer 2"],
    "correct_index": 1,
    "physical_code": "FOO1",
    "digital_code": "fix",
    "hint": "look under the bridge"
  },
  {
    "id": "q2",
    "question": "What do channels carry?",
    "options": ["Blocks", "Payments", "Headers"],
    "correct_index": 1,
    "physical_code": "BAR2",
    "digital_code": "the"
  }
]`

type serverFixture struct {
	server   *Server
	provider *lnbits.FakeProvider
	store    *progress.MemoryStore
	manager  *session.Manager
}

func newServerFixture(t *testing.T, opts ...func(*Config)) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := lnhunt.ParseCatalog([]byte(serverQuestions))
	require.NoError(t, err)

	provider := lnbits.NewFakeProvider()
	store := progress.NewMemoryStore()
	aggregator := progress.NewAggregator(catalog, store)
	reward := progress.NewRewardDispatcher(aggregator, store, "LNURL1TESTREF")

	poller := session.NewPoller(provider, session.WithSchedule(time.Millisecond, 20*time.Millisecond, 1.5))
	manager := session.NewManager(context.Background(), catalog, provider, poller, aggregator, 10)
	t.Cleanup(manager.Close)

	cfg := Config{
		Catalog:    catalog,
		Provider:   provider,
		Sessions:   manager,
		Progress:   aggregator,
		Reward:     reward,
		Store:      store,
		AmountSats: 10,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	server := NewServer(cfg)
	t.Cleanup(server.Stop)

	return &serverFixture{server: server, provider: provider, store: store, manager: manager}
}

func (f *serverFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreateInvoice(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodPost, "/invoice", gin.H{"question_id": "q1"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.True(t, lnhunt.ValidPaymentHash(body["payment_hash"].(string)))
	assert.NotEmpty(t, body["payment_request"])
}

func TestCreateInvoiceValidation(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodPost, "/invoice", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/invoice", gin.H{"question_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/invoice", gin.H{"question_id": "q1", "amount_sats": lnhunt.MaxAmountSats + 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/invoice", gin.H{"question_id": "q1", "amount_sats": -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, 0, f.provider.CreateCalls(), "rejected requests must not reach the provider")
}

func TestPaymentStatus(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodPost, "/invoice", gin.H{"question_id": "q1"})
	require.Equal(t, http.StatusOK, w.Code)
	hash := decode(t, w)["payment_hash"].(string)

	w = f.do(t, http.MethodGet, "/payment-status?paymentHash="+hash, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["paid"])

	f.provider.Settle(hash)

	w = f.do(t, http.MethodGet, "/payment-status?paymentHash="+hash, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["paid"])
}

func TestPaymentStatusValidation(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodGet, "/payment-status", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Malformed hashes are rejected before any provider call and before the
	// limiters count anything.
	w = f.do(t, http.MethodGet, "/payment-status?paymentHash=abc1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/payment-status?paymentHash="+string(bytes.Repeat([]byte("g"), 64)), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentStatusClientRateLimit(t *testing.T) {
	limit := 3
	f := newServerFixture(t, func(cfg *Config) {
		cfg.ClientLimiter = ratelimit.NewLimiter(ratelimit.DefaultWindow, limit)
		cfg.HashLimiter = ratelimit.NewLimiter(ratelimit.DefaultWindow, 100)
	})

	w := f.do(t, http.MethodPost, "/invoice", gin.H{"question_id": "q1"})
	hash := decode(t, w)["payment_hash"].(string)

	for i := 0; i < limit; i++ {
		w = f.do(t, http.MethodGet, "/payment-status?paymentHash="+hash, nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d within budget", i+1)
	}

	w = f.do(t, http.MethodGet, "/payment-status?paymentHash="+hash, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	body := decode(t, w)
	assert.Equal(t, "Too many requests", body["error"])
	assert.Greater(t, body["retryAfter"].(float64), float64(0))
}

func TestPaymentStatusPerHashRateLimit(t *testing.T) {
	f := newServerFixture(t, func(cfg *Config) {
		cfg.ClientLimiter = ratelimit.NewLimiter(ratelimit.DefaultWindow, 1000)
		cfg.HashLimiter = ratelimit.NewLimiter(ratelimit.DefaultWindow, 2)
	})

	w := f.do(t, http.MethodPost, "/invoice", gin.H{"question_id": "q1"})
	first := decode(t, w)["payment_hash"].(string)
	w = f.do(t, http.MethodPost, "/invoice", gin.H{"question_id": "q2"})
	second := decode(t, w)["payment_hash"].(string)

	f.do(t, http.MethodGet, "/payment-status?paymentHash="+first, nil)
	f.do(t, http.MethodGet, "/payment-status?paymentHash="+first, nil)

	w = f.do(t, http.MethodGet, "/payment-status?paymentHash="+first, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// A different invoice has its own budget.
	w = f.do(t, http.MethodGet, "/payment-status?paymentHash="+second, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListQuestionsHidesAnswers(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodGet, "/questions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.NotContains(t, w.Body.String(), "FOO1")
	assert.NotContains(t, w.Body.String(), "correct_index")
	assert.NotContains(t, w.Body.String(), "digital_code")

	var body struct {
		Questions []publicQuestion `json:"questions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Questions, 2)
	assert.Equal(t, "q1", body.Questions[0].ID)
	assert.Equal(t, "look under the bridge", body.Questions[0].Hint)
	assert.Len(t, body.Questions[0].Options, 3)
}

func TestUnlockFlowOverHTTP(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodPost, "/questions/q1/select", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "awaiting_code", decode(t, w)["state"])

	// Wrong code leaves the session waiting.
	w = f.do(t, http.MethodPost, "/questions/q1/code", gin.H{"code": "WRONG9"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/questions/q1/code", gin.H{"code": "foo1"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "awaiting_payment", body["state"])
	hash := body["payment_hash"].(string)
	require.True(t, lnhunt.ValidPaymentHash(hash))

	// Answering before the payment settles conflicts.
	w = f.do(t, http.MethodPost, "/questions/q1/answer", gin.H{"option_index": 1})
	require.Equal(t, http.StatusConflict, w.Code)

	require.True(t, f.provider.Settle(hash))
	waitForAnswering(t, f, "q1")

	w = f.do(t, http.MethodPost, "/questions/q1/answer", gin.H{"option_index": 1})
	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		Correct bool `json:"correct"`
		Session struct {
			State    string `json:"state"`
			Fragment string `json:"fragment"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Correct)
	assert.Equal(t, "solved", result.Session.State)
	assert.Equal(t, "fix", result.Session.Fragment)

	// The snapshot endpoint now reports the terminal state.
	w = f.do(t, http.MethodGet, "/questions/q1/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "solved", decode(t, w)["state"])
}

func waitForAnswering(t *testing.T, f *serverFixture, questionID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w := f.do(t, http.MethodGet, fmt.Sprintf("/questions/%s/session", questionID), nil)
		require.Equal(t, http.StatusOK, w.Code)
		if decode(t, w)["state"] == "answering" {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for the payment to be detected")
}

func TestWrongAnswerOverHTTP(t *testing.T) {
	f := newServerFixture(t)

	f.do(t, http.MethodPost, "/questions/q1/select", nil)
	w := f.do(t, http.MethodPost, "/questions/q1/code", gin.H{"code": "FOO1"})
	hash := decode(t, w)["payment_hash"].(string)
	f.provider.Settle(hash)
	waitForAnswering(t, f, "q1")

	w = f.do(t, http.MethodPost, "/questions/q1/answer", gin.H{"option_index": 0})
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Correct bool `json:"correct"`
		Session struct {
			State       string `json:"state"`
			PaymentHash string `json:"payment_hash"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Correct)
	assert.Equal(t, "awaiting_payment", result.Session.State)
	assert.NotEqual(t, hash, result.Session.PaymentHash, "a wrong answer requires a fresh invoice")
}

func TestSessionEndpointsValidation(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodPost, "/questions/nope/select", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/questions/q1/code", gin.H{"code": "FOO1"})
	assert.Equal(t, http.StatusConflict, w.Code, "code before select must conflict")

	w = f.do(t, http.MethodPost, "/questions/q1/answer", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing option_index")

	w = f.do(t, http.MethodPost, "/questions/q1/retry-invoice", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "nothing to retry")
}

func TestProgressAndPhrase(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodGet, "/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["complete"])
	assert.Equal(t, "___ ___", body["phrase"])

	f.store.RecordFragment("q1", "fix")
	f.store.RecordFragment("q2", "the")

	w = f.do(t, http.MethodGet, "/progress", nil)
	body = decode(t, w)
	assert.Equal(t, true, body["complete"])
	assert.Equal(t, "fix the", body["phrase"])

	w = f.do(t, http.MethodPost, "/phrase", gin.H{"phrase": "FIX THE"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["correct"])

	w = f.do(t, http.MethodPost, "/phrase", gin.H{"phrase": "wrong words"})
	assert.Equal(t, false, decode(t, w)["correct"])
}

func TestClaimReward(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodPost, "/claim", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "claim before completion")

	f.store.RecordFragment("q1", "fix")
	f.store.RecordFragment("q2", "the")

	w = f.do(t, http.MethodPost, "/claim", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "LNURL1TESTREF", body["claim_ref"])
	assert.Equal(t, true, body["claimed"])
}

func TestReset(t *testing.T) {
	f := newServerFixture(t)

	f.store.RecordFragment("q1", "fix")
	f.do(t, http.MethodPost, "/questions/q2/select", nil)

	w := f.do(t, http.MethodPost, "/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/progress", nil)
	assert.Equal(t, "___ ___", decode(t, w)["phrase"])

	w = f.do(t, http.MethodGet, "/questions/q2/session", nil)
	assert.Equal(t, "locked", decode(t, w)["state"])
}

func TestClientKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req
	assert.Equal(t, "203.0.113.7", clientKey(c))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:5555"
	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req
	assert.Equal(t, "192.0.2.9", clientKey(c))
}
