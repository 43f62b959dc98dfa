package ippay

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meridian-erp/meridian-pay/internal/platform/httpx"
)

const transactionTokenize = "TOKENIZE"

// tokenizeRequest is the fixed-schema payload IPpay expects.
type tokenizeRequest struct {
	XMLName         xml.Name `xml:"ippay"`
	TransactionType string   `xml:"TransactionType"`
	TerminalID      string   `xml:"TerminalID"`
	CardNum         string   `xml:"CardNum"`
	CardExpMonth    string   `xml:"CardExpMonth"`
	CardExpYear     string   `xml:"CardExpYear"`
}

type gatewayResponse struct {
	XMLName xml.Name `xml:"IPPayResponse"`
	Token   string   `xml:"Token"`
	ErrMsg  string   `xml:"ErrMsg"`
}

// Client speaks the IPpay XML-over-HTTP protocol.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a gateway client. A bounded timeout keeps a slow gateway
// from stalling the caller's request.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Tokenize submits card details to the acquirer's endpoint and returns the
// gateway-issued token reference.
func (c *Client) Tokenize(ctx context.Context, acq Acquirer, card CardDetails) (string, error) {
	month, year, err := card.expiryParts()
	if err != nil {
		return "", err
	}
	payload, err := xml.Marshal(tokenizeRequest{
		TransactionType: transactionTokenize,
		TerminalID:      acq.TerminalID,
		CardNum:         card.normalizedNumber(),
		CardExpMonth:    fmt.Sprintf("%02d", month),
		CardExpYear:     fmt.Sprintf("%02d", year),
	})
	if err != nil {
		return "", fmt.Errorf("ippay: marshal tokenize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, acq.APIURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ippay: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", httpx.ErrGateway, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", httpx.ErrGateway, err)
	}
	var parsed gatewayResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", httpx.ErrGateway, err)
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("%w: customer payment token creation in IPpay failed: %s", httpx.ErrGateway, parsed.ErrMsg)
	}
	return parsed.Token, nil
}
