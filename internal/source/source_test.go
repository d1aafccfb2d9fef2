package source_test

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pricefeed/internal/source"
)

func TestIsCrypto(t *testing.T) {
	t.Parallel()

	require.True(t, source.IsCrypto("BTC"))
	require.True(t, source.IsCrypto(" eth "))
	require.False(t, source.IsCrypto("AAPL"))
	require.False(t, source.IsCrypto("BTC.L"))
	require.Len(t, source.CryptoTickers(), 14)
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	// Assert: 2xx replies pass.
	require.NoError(t, source.CheckStatus(&http.Response{StatusCode: http.StatusOK, Body: http.NoBody}))

	// Act: a 429 carries its code and body.
	err := source.CheckStatus(&http.Response{
		StatusCode: http.StatusTooManyRequests,
		Body:       io.NopCloser(strings.NewReader("slow down\n")),
	})

	// Assert
	var se *source.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusTooManyRequests, se.Code)
	require.Equal(t, "slow down", se.Body)
	require.Equal(t, "unexpected status code: 429: slow down", err.Error())
}
