package yahoo_test

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pricefeed/internal/source"
	"pricefeed/internal/source/yahoo"
)

const aaplChart = `{"chart":{"result":[{"meta":{"currency":"USD","symbol":"AAPL",
"regularMarketPrice":150.25,"chartPreviousClose":148.5,"regularMarketTime":1741100400}}],"error":null}}`

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestWithBaseURL(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock http client
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	baseURL := "http://localhost:8080"

	// Assert: the request targets the overridden base URL.
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "http://localhost:8080/v8/finance/chart/AAPL?interval=1d&range=1d", req.URL.String())
			return okResponse(aaplChart), nil
		}).
		Times(1)

	client := yahoo.NewClient(yahoo.WithHTTPClient(httpClient), yahoo.WithBaseURL(baseURL))

	// Act
	_, err := client.GetChart(t.Context(), "AAPL")
	require.NoError(t, err)
}

func TestWithHeader(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock http client
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: the custom header is sent.
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "bar", req.Header.Get("foo"))
			require.Equal(t, "application/json", req.Header.Get("Accept"))
			return okResponse(aaplChart), nil
		}).
		Times(1)

	client := yahoo.NewClient(yahoo.WithHTTPClient(httpClient), yahoo.WithHeader(http.Header{
		"foo": []string{"bar"},
	}))

	// Act
	_, err := client.GetChart(t.Context(), "AAPL")
	require.NoError(t, err)
}

func TestGetChart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		res     *http.Response
		wantErr error
		check   func(t *testing.T, c yahoo.Chart)
	}{
		{
			name: "parses meta",
			res:  okResponse(aaplChart),
			check: func(t *testing.T, c yahoo.Chart) {
				require.Equal(t, "USD", c.Currency)
				require.Equal(t, "150.25", c.Price.String())
				require.Equal(t, "148.5", c.PreviousClose.String())
				require.Equal(t, int64(1741100400), c.MarketTime.Unix())
			},
		},
		{
			name: "falls back to previousClose",
			res:  okResponse(`{"chart":{"result":[{"meta":{"currency":"GBp","regularMarketPrice":7250,"previousClose":7300}}]}}`),
			check: func(t *testing.T, c yahoo.Chart) {
				require.Equal(t, "GBp", c.Currency)
				require.Equal(t, "7300", c.PreviousClose.String())
				require.True(t, c.MarketTime.IsZero())
			},
		},
		{
			name:    "null result is not found",
			res:     okResponse(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`),
			wantErr: source.ErrNotFound,
		},
		{
			name:    "404 is not found",
			res:     &http.Response{StatusCode: http.StatusNotFound, Body: http.NoBody},
			wantErr: source.ErrNotFound,
		},
		{
			name:    "missing price is malformed",
			res:     okResponse(`{"chart":{"result":[{"meta":{"currency":"USD"}}]}}`),
			wantErr: source.ErrMalformed,
		},
		{
			name:    "missing currency is malformed",
			res:     okResponse(`{"chart":{"result":[{"meta":{"regularMarketPrice":1}}]}}`),
			wantErr: source.ErrMalformed,
		},
		{
			name:    "invalid json is malformed",
			res:     okResponse(`{"chart":`),
			wantErr: source.ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().Do(gomock.Any()).Return(tt.res, nil).Times(1)
			client := yahoo.NewClient(yahoo.WithHTTPClient(httpClient))

			// Act
			chart, err := client.GetChart(t.Context(), "AAPL")

			// Assert
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, chart)
		})
	}
}

func TestGetChart_Status(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Return(&http.Response{
		StatusCode: http.StatusTooManyRequests,
		Body:       io.NopCloser(strings.NewReader("Too Many Requests")),
	}, nil)
	client := yahoo.NewClient(yahoo.WithHTTPClient(httpClient))

	// Act
	_, err := client.GetChart(t.Context(), "AAPL")

	// Assert
	var se *source.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusTooManyRequests, se.Code)
}
