package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-booking/internal/apperror"
	"ms-booking/internal/logger"
)

// PaymentRequest is the request-for-payment sent to the gateway. Field
// names follow the PortOne wire contract.
type PaymentRequest struct {
	PG          string `json:"pg"`
	PayMethod   string `json:"pay_method"`
	MerchantUID string `json:"merchant_uid"`
	Name        string `json:"name"`
	Amount      int64  `json:"amount"`
	BuyerEmail  string `json:"buyer_email"`
	BuyerName   string `json:"buyer_name,omitempty"`
	BuyerTel    string `json:"buyer_tel,omitempty"`
}

// Outcome is the gateway's verdict on a charge attempt. Success=false is
// a normal business outcome (declined card, user abort), not an error.
type Outcome struct {
	Success     bool   `json:"success"`
	ImpUID      string `json:"imp_uid,omitempty"`
	MerchantUID string `json:"merchant_uid,omitempty"`
	ErrorMsg    string `json:"error_msg,omitempty"`
}

type Client struct {
	client  *http.Client
	baseURL string
	pg      string
	logger  *logger.Logger
}

func NewClient(baseURL, pg string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		pg:      pg,
		logger:  log,
	}
}

// RequestPayment charges the buyer through the gateway. A transport or
// non-2xx failure means the charge outcome is unknown and returns a
// gateway error; a well-formed decline comes back as Outcome.Success=false.
func (c *Client) RequestPayment(ctx context.Context, req PaymentRequest) (Outcome, error) {
	if req.PG == "" {
		req.PG = c.pg
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Outcome{}, apperror.Wrap(err, apperror.ErrCodeGateway, "failed to encode payment request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments/request", bytes.NewReader(body))
	if err != nil {
		return Outcome{}, apperror.Wrap(err, apperror.ErrCodeGateway, "failed to build payment request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.LogGateway("REQUEST", req.MerchantUID, fmt.Sprintf("charging %d via %s/%s", req.Amount, req.PG, req.PayMethod))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.LogGateway("ERROR", req.MerchantUID, fmt.Sprintf("transport failure: %v", err))
		return Outcome{}, apperror.Wrap(err, apperror.ErrCodeGateway, "payment gateway unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.LogGateway("ERROR", req.MerchantUID, fmt.Sprintf("gateway returned HTTP %d", resp.StatusCode))
		return Outcome{}, apperror.New(apperror.ErrCodeGateway, fmt.Sprintf("payment gateway returned status %d", resp.StatusCode))
	}

	var outcome Outcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return Outcome{}, apperror.Wrap(err, apperror.ErrCodeGateway, "failed to decode gateway response")
	}
	if outcome.MerchantUID == "" {
		outcome.MerchantUID = req.MerchantUID
	}

	if outcome.Success {
		c.logger.LogGateway("CHARGED", req.MerchantUID, fmt.Sprintf("imp_uid=%s", outcome.ImpUID))
	} else {
		c.logger.LogGateway("DECLINED", req.MerchantUID, outcome.ErrorMsg)
	}
	return outcome, nil
}
