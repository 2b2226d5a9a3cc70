package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/nonvi/booking-core/internal/models"
	"github.com/nonvi/booking-core/internal/services"
	"github.com/sirupsen/logrus"
)

type settler interface {
	SettleCallback(ctx context.Context, transactionID, claimedStatus string, meta services.RequestMeta) (*services.SettlementResult, error)
	SettleFromGateway(ctx context.Context, transactionID string, meta services.RequestMeta) (*services.SettlementResult, error)
}

// callbackParams is what the gateway sends on its redirect or webhook.
// Query values and form or JSON bodies are all accepted.
type callbackParams struct {
	ID     string `form:"id" json:"id"`
	Status string `form:"status" json:"status"`
}

// PaymentHandler receives gateway callbacks and browser returns
type PaymentHandler struct {
	settlement  settler
	redirectURI string
	logger      *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(settlement settler, redirectURI string, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{settlement: settlement, redirectURI: redirectURI, logger: logger}
}

// Callback settles the hold behind a gateway transaction. The status in the
// notification is checked against the gateway before anything is written.
// Duplicates answer 200 with outcome already_settled so the gateway stops retrying.
// GET|POST /api/v1/payments/callback/:type/:ref
func (h *PaymentHandler) Callback(c *gin.Context) {
	kind := models.HoldKind(c.Param("type"))
	if !kind.IsValid() {
		badRequest(c, "Unknown booking type", nil)
		return
	}

	params := h.bindParams(c)
	log := h.logger.WithFields(logrus.Fields{
		"type":           kind,
		"ref":            c.Param("ref"),
		"transaction_id": params.ID,
		"status":         params.Status,
	})
	log.Info("Payment callback received")

	result, err := h.settlement.SettleCallback(c.Request.Context(), params.ID, params.Status, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if result.Kind != "" && result.Kind != kind {
		log.WithField("hold_kind", result.Kind).Warn("Callback type does not match hold kind")
	}

	c.JSON(http.StatusOK, result)
}

// Return is where the hosted checkout sends the customer's browser.
// It confirms the status with the gateway, settles, and redirects into the app.
// GET /api/v1/payments/return/:type/:ref
func (h *PaymentHandler) Return(c *gin.Context) {
	kind := c.Param("type")
	params := h.bindParams(c)

	outcome := "error"
	if params.ID != "" && models.HoldKind(kind).IsValid() {
		result, err := h.settlement.SettleFromGateway(c.Request.Context(), params.ID, requestMeta(c))
		switch {
		case err != nil:
			h.logger.WithError(err).WithField("transaction_id", params.ID).Warn("Payment return could not be settled")
		case result.Outcome == "":
			outcome = string(services.OutcomePending)
		default:
			outcome = string(result.Outcome)
		}
	}

	c.Redirect(http.StatusFound, h.redirectURL(kind, c.Param("ref"), params.ID, outcome))
}

func (h *PaymentHandler) bindParams(c *gin.Context) callbackParams {
	var params callbackParams
	_ = c.ShouldBindQuery(&params)

	if c.Request.Method == http.MethodPost && (params.ID == "" || params.Status == "") {
		var body callbackParams
		if err := c.ShouldBind(&body); err == nil {
			if params.ID == "" {
				params.ID = body.ID
			}
			if params.Status == "" {
				params.Status = body.Status
			}
		}
	}
	return params
}

func (h *PaymentHandler) redirectURL(kind, ref, transactionID, outcome string) string {
	target, err := url.Parse(h.redirectURI)
	if err != nil {
		return h.redirectURI
	}
	q := target.Query()
	q.Set("status", outcome)
	q.Set("type", kind)
	q.Set("ref", ref)
	if transactionID != "" {
		q.Set("transaction_id", transactionID)
	}
	target.RawQuery = q.Encode()
	return target.String()
}
