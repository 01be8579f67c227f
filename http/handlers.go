package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	lnhunt "github.com/lnhunt/lnhunt"
)

type createInvoiceRequest struct {
	QuestionID string `json:"question_id"`
	AmountSats int64  `json:"amount_sats"`
}

// createInvoice proxies invoice creation to the payment provider.
func (s *Server) createInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.QuestionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question_id is required"})
		return
	}
	if _, ok := s.catalog.Get(req.QuestionID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown question_id"})
		return
	}

	amount := req.AmountSats
	if amount == 0 {
		amount = s.amountSats
	}
	if amount < 0 || amount > lnhunt.MaxAmountSats {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_sats out of range"})
		return
	}

	invoice, err := s.provider.CreateInvoice(c.Request.Context(), req.QuestionID, amount)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errorMessage(err, "failed to create invoice")})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment_request": invoice.PaymentRequest,
		"payment_hash":    invoice.PaymentHash,
	})
}

// paymentStatus proxies a settlement check, guarded by the per-client and the
// stricter per-invoice window.
func (s *Server) paymentStatus(c *gin.Context) {
	hash := c.Query("paymentHash")
	if hash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paymentHash is required"})
		return
	}
	if !lnhunt.ValidPaymentHash(hash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment hash format"})
		return
	}

	if d := s.clientLimiter.Allow(clientKey(c)); !d.Allowed {
		s.tooManyRequests(c, retryAfterSeconds(d.RetryAfter))
		return
	}
	if d := s.hashLimiter.Allow(hash); !d.Allowed {
		s.tooManyRequests(c, retryAfterSeconds(d.RetryAfter))
		return
	}

	status, err := s.provider.CheckPayment(c.Request.Context(), hash)
	if err != nil && status.State != lnhunt.PaymentRateLimited {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errorMessage(err, "failed to check payment")})
		return
	}

	switch status.State {
	case lnhunt.PaymentRateLimited:
		// The provider itself throttled us; pass its interval through.
		s.tooManyRequests(c, retryAfterSeconds(status.RetryAfter))
	case lnhunt.PaymentPaid:
		c.JSON(http.StatusOK, gin.H{"paid": true})
	default:
		c.JSON(http.StatusOK, gin.H{"paid": false})
	}
}

func (s *Server) tooManyRequests(c *gin.Context, retryAfter int) {
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":      "Too many requests",
		"retryAfter": retryAfter,
	})
}

// publicQuestion is the catalog view without answers or codes.
type publicQuestion struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Hint     string   `json:"hint,omitempty"`
	ImageRef string   `json:"image_ref,omitempty"`
}

func (s *Server) listQuestions(c *gin.Context) {
	questions := s.catalog.Ordered()
	out := make([]publicQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, publicQuestion{
			ID:       q.ID,
			Question: q.Question,
			Options:  q.Options,
			Hint:     q.Hint,
			ImageRef: q.ImageRef,
		})
	}
	c.JSON(http.StatusOK, gin.H{"questions": out})
}

func (s *Server) selectQuestion(c *gin.Context) {
	snap, err := s.sessions.Select(c.Param("id"))
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) sessionSnapshot(c *gin.Context) {
	snap, err := s.sessions.Snapshot(c.Param("id"))
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type submitCodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) submitCode(c *gin.Context) {
	var req submitCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	snap, err := s.sessions.SubmitCode(c.Param("id"), req.Code)
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type submitAnswerRequest struct {
	OptionIndex *int `json:"option_index"`
}

func (s *Server) submitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OptionIndex == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "option_index is required"})
		return
	}

	result, err := s.sessions.SubmitAnswer(c.Param("id"), *req.OptionIndex)
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) retryInvoice(c *gin.Context) {
	snap, err := s.sessions.RetryInvoice(c.Param("id"))
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) getProgress(c *gin.Context) {
	slots, err := s.progress.Collected()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load progress"})
		return
	}
	complete, err := s.progress.IsComplete()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load progress"})
		return
	}
	phrase, err := s.progress.DisplayPhrase()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load progress"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fragments": slots,
		"complete":  complete,
		"phrase":    phrase,
	})
}

type checkPhraseRequest struct {
	Phrase string `json:"phrase"`
}

func (s *Server) checkPhrase(c *gin.Context) {
	var req checkPhraseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phrase is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"correct": s.progress.CheckPhrase(req.Phrase)})
}

func (s *Server) claimReward(c *gin.Context) {
	ref, err := s.reward.Claim()
	if err != nil {
		if lnhunt.IsValidation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "hunt is not complete yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to claim reward"})
		return
	}

	claimed, _ := s.reward.Claimed()
	c.JSON(http.StatusOK, gin.H{"claim_ref": ref, "claimed": claimed})
}

// reset is the explicit cache-clear operation: all recorded progress and the
// active session are dropped.
func (s *Server) reset(c *gin.Context) {
	if err := s.store.Reset(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset progress"})
		return
	}
	s.sessions.Abandon()
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

// sessionError maps manager errors to HTTP responses.
func (s *Server) sessionError(c *gin.Context, err error) {
	var he *lnhunt.Error
	if !errors.As(err, &he) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	switch he.Code {
	case lnhunt.ErrCodeQuestionNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": he.Message})
	case lnhunt.ErrCodeValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": he.Message})
	case lnhunt.ErrCodeInvalidState:
		c.JSON(http.StatusConflict, gin.H{"error": he.Message})
	case lnhunt.ErrCodeRateLimited:
		s.tooManyRequests(c, 30)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": he.Message})
	}
}

func errorMessage(err error, fallback string) string {
	var he *lnhunt.Error
	if errors.As(err, &he) {
		return he.Message
	}
	return fallback
}
