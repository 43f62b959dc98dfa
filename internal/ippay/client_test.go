package ippay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-pay/internal/platform/httpx"
)

func TestClientTokenize(t *testing.T) {
	var gotBody string
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotContentType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`<IPPayResponse><Token>TKN-123</Token></IPPayResponse>`))
	}))
	defer server.Close()

	client := NewClient(time.Second)
	acq := Acquirer{APIURL: server.URL, TerminalID: "TERM42"}

	token, err := client.Tokenize(context.Background(), acq, validCard())
	require.NoError(t, err)
	require.Equal(t, "TKN-123", token)

	require.Equal(t, "text/xml", gotContentType)
	require.Contains(t, gotBody, "<TransactionType>TOKENIZE</TransactionType>")
	require.Contains(t, gotBody, "<TerminalID>TERM42</TerminalID>")
	require.Contains(t, gotBody, "<CardNum>4111111111111111</CardNum>")
	require.Contains(t, gotBody, "<CardExpMonth>12</CardExpMonth>")
	require.Contains(t, gotBody, "<CardExpYear>99</CardExpYear>")
}

func TestClientTokenizeGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<IPPayResponse><ErrMsg>Invalid card number</ErrMsg></IPPayResponse>`))
	}))
	defer server.Close()

	client := NewClient(time.Second)
	acq := Acquirer{APIURL: server.URL, TerminalID: "TERM42"}

	_, err := client.Tokenize(context.Background(), acq, validCard())
	require.ErrorIs(t, err, httpx.ErrGateway)
	require.Contains(t, err.Error(), "Invalid card number")
}

func TestClientTokenizeUnreachableGateway(t *testing.T) {
	client := NewClient(100 * time.Millisecond)
	acq := Acquirer{APIURL: "http://127.0.0.1:1", TerminalID: "TERM42"}

	_, err := client.Tokenize(context.Background(), acq, validCard())
	require.ErrorIs(t, err, httpx.ErrGateway)
}

func TestClientTokenizeMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not xml at all`))
	}))
	defer server.Close()

	client := NewClient(time.Second)
	acq := Acquirer{APIURL: server.URL, TerminalID: "TERM42"}

	_, err := client.Tokenize(context.Background(), acq, validCard())
	require.ErrorIs(t, err, httpx.ErrGateway)
	require.True(t, strings.Contains(err.Error(), "malformed"))
}
