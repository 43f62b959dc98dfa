package ippay

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CardDetails is the raw card entry collected from the payment form.
type CardDetails struct {
	Number     string `json:"cc_number"`
	HolderName string `json:"cc_holder_name"`
	Expiry     string `json:"cc_expiry"`
	CVC        string `json:"cc_cvc"`
	Brand      string `json:"cc_brand"`
}

// Validate checks the raw card entry before it is submitted anywhere. The
// expiry must be exactly two numeric components separated by "/" and must
// not fall strictly before the current month.
func (c CardDetails) Validate(now time.Time) error {
	missing := make([]string, 0, 5)
	for _, f := range []struct{ name, value string }{
		{"cc_number", c.Number},
		{"cc_cvc", c.CVC},
		{"cc_holder_name", c.HolderName},
		{"cc_expiry", c.Expiry},
		{"cc_brand", c.Brand},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrCardValidation, strings.Join(missing, ", "))
	}

	month, year, err := c.expiryParts()
	if err != nil {
		return err
	}
	if year*100+month < now.Year()%100*100+int(now.Month()) {
		return fmt.Errorf("%w: card expired %02d/%02d", ErrCardValidation, month, year)
	}
	return nil
}

// expiryParts splits "MM/YY" into numeric month and two-digit year.
// Tolerates whitespace around the components.
func (c CardDetails) expiryParts() (month, year int, err error) {
	parts := strings.Split(c.Expiry, "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: expiry must be MM/YY", ErrCardValidation)
	}
	month, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: expiry must be MM/YY", ErrCardValidation)
	}
	year, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: expiry must be MM/YY", ErrCardValidation)
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("%w: expiry month out of range", ErrCardValidation)
	}
	if year < 0 || year > 99 {
		return 0, 0, fmt.Errorf("%w: expiry year must be two digits", ErrCardValidation)
	}
	return month, year, nil
}

// normalizedNumber strips the spaces customers type between digit groups.
func (c CardDetails) normalizedNumber() string {
	return strings.ReplaceAll(c.Number, " ", "")
}
