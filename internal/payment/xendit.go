// Package payment issues QR payment requests through the Xendit payment requests API.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/joao-fontenele/shopdash/internal/domain"
)

var tracer = otel.Tracer("payment/xendit")

// QRPayment is what the storefront needs to show a QR code and what the
// order keeps to correlate the payment later.
type QRPayment struct {
	ID              string
	PaymentMethodID string
	QRString        string
}

type XenditClient struct {
	baseURL    string
	secretKey  string
	currency   string
	httpClient *http.Client
}

func NewXenditClient(baseURL, secretKey, currency string, httpClient *http.Client) *XenditClient {
	return &XenditClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		currency:   currency,
		httpClient: httpClient,
	}
}

type qrCodeParams struct {
	ChannelCode string `json:"channel_code"`
}

type paymentMethodParams struct {
	Type        string       `json:"type"`
	Reusability string       `json:"reusability"`
	QRCode      qrCodeParams `json:"qr_code"`
}

type paymentRequestBody struct {
	ReferenceID   string              `json:"reference_id"`
	Amount        json.Number         `json:"amount"`
	Currency      string              `json:"currency"`
	PaymentMethod paymentMethodParams `json:"payment_method"`
}

type paymentRequestResponse struct {
	ID            string `json:"id"`
	ReferenceID   string `json:"reference_id"`
	Status        string `json:"status"`
	PaymentMethod struct {
		ID     string `json:"id"`
		QRCode *struct {
			ChannelProperties struct {
				QRString string `json:"qr_string"`
			} `json:"channel_properties"`
		} `json:"qr_code"`
	} `json:"payment_method"`
}

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// CreateQRPayment asks the gateway for a one-time QRIS payment of amount,
// tagged with referenceID. The reference id doubles as the idempotency key:
// retrying after a lost response returns the original payment request, and a
// fresh charge needs a new reference id.
func (c *XenditClient) CreateQRPayment(ctx context.Context, amount decimal.Decimal, referenceID string) (*QRPayment, error) {
	ctx, span := tracer.Start(ctx, "payment.create_qr")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.reference_id", referenceID),
		attribute.String("payment.amount", amount.String()),
	)

	payment, err := c.createQRPayment(ctx, amount, referenceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return payment, nil
}

func (c *XenditClient) createQRPayment(ctx context.Context, amount decimal.Decimal, referenceID string) (*QRPayment, error) {
	body := paymentRequestBody{
		ReferenceID: referenceID,
		Amount:      json.Number(amount.String()),
		Currency:    c.currency,
		PaymentMethod: paymentMethodParams{
			Type:        "QR_CODE",
			Reusability: "ONE_TIME_USE",
			QRCode:      qrCodeParams{ChannelCode: "QRIS"},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &domain.PaymentGatewayError{Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payment_requests", bytes.NewReader(data))
	if err != nil {
		return nil, &domain.PaymentGatewayError{Message: "build request", Err: err}
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("idempotency-key", referenceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.PaymentGatewayError{Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, &domain.PaymentGatewayError{
			StatusCode: resp.StatusCode,
			Code:       apiErr.ErrorCode,
			Message:    apiErr.Message,
		}
	}

	var result paymentRequestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &domain.PaymentGatewayError{Message: "decode response", Err: err}
	}
	if result.ID == "" || result.PaymentMethod.ID == "" {
		return nil, &domain.PaymentGatewayError{Message: fmt.Sprintf("response for %s is missing payment ids", referenceID)}
	}

	payment := &QRPayment{
		ID:              result.ID,
		PaymentMethodID: result.PaymentMethod.ID,
	}
	if result.PaymentMethod.QRCode != nil {
		payment.QRString = result.PaymentMethod.QRCode.ChannelProperties.QRString
	}

	return payment, nil
}
