package iex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailableSymbolsAndFinancials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		switch r.URL.Path {
		case "/ref-data/symbols":
			_, _ = w.Write([]byte(`[{"symbol":"AAPL","isEnabled":true},{"symbol":"OLD","isEnabled":false}]`))
		case "/stock/market/batch":
			assert.Equal(t, "financials", r.URL.Query().Get("types"))
			assert.Equal(t, "AAPL,F", r.URL.Query().Get("symbols"))
			_, _ = w.Write([]byte(`{
				"AAPL":{"financials":{"symbol":"AAPL","financials":[{"reportDate":"2024-01-01","totalRevenue":119575000000}]}},
				"F":{"financials":{"symbol":"F","financials":[{"reportDate":"2024-01-01","totalRevenue":null}]}}
			}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")

	syms, err := c.AvailableSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, syms)

	fin, err := c.Financials(context.Background(), []string{"AAPL", "F"})
	require.NoError(t, err)
	require.Len(t, fin["AAPL"], 1)
	require.NotNil(t, fin["AAPL"][0].TotalRevenue)
	assert.Equal(t, 119575000000.0, *fin["AAPL"][0].TotalRevenue)
	assert.Nil(t, fin["F"][0].TotalRevenue)
}

func TestFinancialsRejectsOversizedBatch(t *testing.T) {
	c := NewClient("http://unused", "tok")
	_, err := c.Financials(context.Background(), strings.Split(strings.Repeat("A,", MaxBatch+1), ",")[:MaxBatch+1])
	assert.Error(t, err)
}
