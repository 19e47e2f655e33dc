package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/solten/donations/internal/service"
	"github.com/solten/donations/utils"
)

const donationListLimit = 50

type Handler struct {
	svc    *service.Service
	logger *utils.Logger
}

func NewHandler(svc *service.Service, logger *utils.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type generateRequest struct {
	AmountUSD     float64 `json:"amount_usd" binding:"required"`
	SessionID     string  `json:"session_id" binding:"required"`
	PlayerName    string  `json:"player_name"`
	UsePlayerName bool    `json:"use_player_name"`
	Message       string  `json:"message"`
}

func (h *Handler) GenerateAddress(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.svc.GenerateAddress(c.Request.Context(), req.AmountUSD, req.SessionID, service.Metadata{
		PlayerName:    req.PlayerName,
		UsePlayerName: req.UsePlayerName,
		Message:       req.Message,
	})
	if err != nil {
		h.renderError(c, err, "Unable to create Bitcoin payment address. Please try again or choose another method.")
		return
	}

	c.JSON(http.StatusOK, result)
}

type checkRequest struct {
	Address   string `json:"address" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
}

func (h *Handler) CheckPayment(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.svc.CheckPayment(c.Request.Context(), req.Address, req.SessionID)
	if err != nil {
		h.renderError(c, err, "Unable to check the payment. Please try again.")
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) MarkExpired(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.svc.MarkExpired(c.Request.Context(), req.Address, req.SessionID); err != nil {
		h.renderError(c, err, "Unable to expire the payment.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"expired": true})
}

// ListDonations exposes only id, display name and amount; payment ids and
// timestamps stay server-side.
func (h *Handler) ListDonations(c *gin.Context) {
	donations, err := h.svc.RecentDonations(c.Request.Context(), donationListLimit)
	if err != nil {
		h.logger.Errorf("failed to list donations: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to load donations."})
		return
	}

	type donationView struct {
		ID          string  `json:"id"`
		DisplayName string  `json:"display_name"`
		Amount      float64 `json:"amount"`
	}

	views := make([]donationView, 0, len(donations))
	for _, d := range donations {
		views = append(views, donationView{ID: d.ID, DisplayName: d.DisplayName, Amount: d.AmountUSD})
	}

	c.JSON(http.StatusOK, gin.H{"donations": views})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// renderError maps the service taxonomy onto HTTP statuses. User-facing
// messages stay generic; the specific cause goes to the logs only.
func (h *Handler) renderError(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, service.ErrNotOwned):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrExpired):
		status = http.StatusGone
	case errors.Is(err, service.ErrUnderpayment):
		status = http.StatusPaymentRequired
	case errors.Is(err, service.ErrOracleUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Errorf("request failed: %v", err)
	} else {
		h.logger.Warnf("request rejected (%d): %v", status, err)
	}

	c.JSON(status, gin.H{"error": message, "transient": status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable})
}
