// Package ippay integrates the IPpay card tokenization gateway.
package ippay

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProviderIPpay identifies this acquirer integration.
const ProviderIPpay = "ippay"

// SaveTokenPolicy controls whether a token created during checkout is kept
// for future transactions.
type SaveTokenPolicy string

const (
	// SaveNever discards tokens after the current transaction.
	SaveNever SaveTokenPolicy = "none"
	// SaveAsk lets the customer decide per transaction.
	SaveAsk SaveTokenPolicy = "ask"
	// SaveAlways keeps every token for reuse.
	SaveAlways SaveTokenPolicy = "always"
)

// Acquirer is the gateway configuration for one IPpay terminal.
type Acquirer struct {
	ID         int64           `json:"id"`
	Provider   string          `json:"provider"`
	Name       string          `json:"name"`
	APIURL     string          `json:"api_url"`
	TerminalID string          `json:"terminal_id"`
	SaveToken  SaveTokenPolicy `json:"save_token"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Token is a stored gateway reference standing in for card details. The card
// number itself is never persisted, only the masked display name and a
// fingerprint used for duplicate detection.
type Token struct {
	ID          int64     `json:"id"`
	PartnerID   int64     `json:"partner_id"`
	AcquirerID  int64     `json:"acquirer_id"`
	Name        string    `json:"name"`
	AcquirerRef string    `json:"acquirer_ref"`
	SaveToken   bool      `json:"save_token"`
	ExpiryDate  time.Time `json:"expiry_date"`
	Fingerprint string    `json:"-"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	ErrCardValidation   = errors.New("card details failed validation")
	ErrDuplicateCard    = errors.New("this payment method is already assigned to this customer")
	ErrAcquirerNotFound = errors.New("payment acquirer not found")
	ErrTokenNotFound    = errors.New("payment token not found")
)

// maskedName renders the stored display name, e.g.
// "XXXXXXXXXXXX1234 - Jane Doe".
func maskedName(cardNumber, holderName string) string {
	return fmt.Sprintf("XXXXXXXXXXXX%s - %s", lastFour(cardNumber), holderName)
}

func lastFour(cardNumber string) string {
	n := strings.ReplaceAll(cardNumber, " ", "")
	if len(n) < 4 {
		return n
	}
	return n[len(n)-4:]
}

// endOfMonth returns the last calendar day of the given month.
func endOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}
