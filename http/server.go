// Package http exposes LNHunt over HTTP: the provider proxy endpoints the
// browser polls, and the unlock/answer/progress API backed by the session
// manager.
package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	lnhunt "github.com/lnhunt/lnhunt"
	"github.com/lnhunt/lnhunt/progress"
	"github.com/lnhunt/lnhunt/ratelimit"
	"github.com/lnhunt/lnhunt/session"
)

// Config wires the server's collaborators.
type Config struct {
	Catalog  *lnhunt.Catalog
	Provider lnhunt.InvoiceProvider
	Sessions *session.Manager
	Progress *progress.Aggregator
	Reward   *progress.RewardDispatcher
	Store    progress.Store

	// AmountSats is the default unlock price when a request does not name one.
	AmountSats int64

	// ClientLimiter and HashLimiter guard the status-check endpoint. When
	// nil, limiters with the default budgets are created.
	ClientLimiter *ratelimit.Limiter
	HashLimiter   *ratelimit.Limiter
}

// Server is the LNHunt HTTP surface.
type Server struct {
	engine        *gin.Engine
	catalog       *lnhunt.Catalog
	provider      lnhunt.InvoiceProvider
	sessions      *session.Manager
	progress      *progress.Aggregator
	reward        *progress.RewardDispatcher
	store         progress.Store
	amountSats    int64
	clientLimiter *ratelimit.Limiter
	hashLimiter   *ratelimit.Limiter
}

// NewServer builds the gin engine and registers all routes.
func NewServer(cfg Config) *Server {
	clientLimiter := cfg.ClientLimiter
	if clientLimiter == nil {
		clientLimiter = ratelimit.NewLimiter(ratelimit.DefaultWindow, ratelimit.DefaultClientLimit)
	}
	hashLimiter := cfg.HashLimiter
	if hashLimiter == nil {
		hashLimiter = ratelimit.NewLimiter(ratelimit.DefaultWindow, ratelimit.HashLimit(ratelimit.DefaultClientLimit))
	}

	amountSats := cfg.AmountSats
	if amountSats <= 0 {
		amountSats = lnhunt.DefaultAmountSats
	}

	s := &Server{
		engine:        gin.New(),
		catalog:       cfg.Catalog,
		provider:      cfg.Provider,
		sessions:      cfg.Sessions,
		progress:      cfg.Progress,
		reward:        cfg.Reward,
		store:         cfg.Store,
		amountSats:    amountSats,
		clientLimiter: clientLimiter,
		hashLimiter:   hashLimiter,
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	// Provider proxy endpoints; field names stay stable for compatibility.
	s.engine.POST("/invoice", s.createInvoice)
	s.engine.GET("/payment-status", s.paymentStatus)

	// Unlock flow.
	s.engine.GET("/questions", s.listQuestions)
	s.engine.GET("/questions/:id/session", s.sessionSnapshot)
	s.engine.POST("/questions/:id/select", s.selectQuestion)
	s.engine.POST("/questions/:id/code", s.submitCode)
	s.engine.POST("/questions/:id/answer", s.submitAnswer)
	s.engine.POST("/questions/:id/retry-invoice", s.retryInvoice)

	// Progress, finale and reward.
	s.engine.GET("/progress", s.getProgress)
	s.engine.POST("/phrase", s.checkPhrase)
	s.engine.POST("/claim", s.claimReward)
	s.engine.POST("/reset", s.reset)
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the listener fails. Production deployments should prefer
// an http.Server around Handler for graceful shutdown.
func (s *Server) Run(addr string) error { return s.engine.Run(addr) }

// Stop releases the server's limiters.
func (s *Server) Stop() {
	s.clientLimiter.Stop()
	s.hashLimiter.Stop()
}

// clientKey identifies the calling client for rate limiting: the first
// X-Forwarded-For hop when present, the remote address otherwise.
func clientKey(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	return c.ClientIP()
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
