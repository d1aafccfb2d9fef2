package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"pricefeed/internal/source"
)

// Chart is the quote-relevant part of a chart response.
type Chart struct {
	Symbol        string
	Currency      string
	Price         decimal.Decimal
	PreviousClose decimal.Decimal
	MarketTime    time.Time
}

const metaPath = "$.chart.result[0].meta"

// GetChart retrieves the daily chart metadata for symbol.
func (c *Client) GetChart(ctx context.Context, symbol string) (Chart, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), c.query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return Chart{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Chart{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Chart{}, fmt.Errorf("%s: %w", symbol, source.ErrNotFound)
	default:
		return Chart{}, source.CheckStatus(res)
	}

	// {
	//   "chart": {
	//     "result": [{"meta": {"currency": "USD", "symbol": "AAPL",
	//       "regularMarketPrice": 150.0, "chartPreviousClose": 148.5,
	//       "regularMarketTime": 1741100400}}],
	//     "error": null
	//   }
	// }
	var body any
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return Chart{}, fmt.Errorf("decoding chart response: %w: %w", source.ErrMalformed, err)
	}

	meta, err := get(body, metaPath)
	if err != nil || meta == nil {
		return Chart{}, fmt.Errorf("%s: %w", symbol, source.ErrNotFound)
	}

	var chart = Chart{Symbol: symbol}
	if chart.Price, err = number(meta, "$.regularMarketPrice"); err != nil {
		return Chart{}, fmt.Errorf("decoding regularMarketPrice: %w: %w", source.ErrMalformed, err)
	}
	if cur, err := get(meta, "$.currency"); err == nil {
		chart.Currency, _ = cur.(string)
	}
	if chart.Currency == "" {
		return Chart{}, fmt.Errorf("decoding currency: %w", source.ErrMalformed)
	}
	// previousClose is absent for some instruments; chartPreviousClose is
	// always present for a 1d range.
	for _, path := range []string{"$.chartPreviousClose", "$.previousClose"} {
		if prev, err := number(meta, path); err == nil {
			chart.PreviousClose = prev
			break
		}
	}
	if ts, err := number(meta, "$.regularMarketTime"); err == nil && ts.IsPositive() {
		chart.MarketTime = time.Unix(ts.IntPart(), 0).UTC()
	}
	return chart, nil
}

// get evaluates path against obj. jsonpath may wrap a single answer in a
// list; the first element is kept.
func get(obj any, path string) (any, error) {
	v, err := jsonpath.Get(path, obj)
	if err != nil {
		return nil, err
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil, errors.New("no match for " + path)
		}
		v = list[0]
	}
	return v, nil
}

func number(obj any, path string) (decimal.Decimal, error) {
	v, err := get(obj, path)
	if err != nil {
		return decimal.Zero, err
	}
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case float64:
		return decimal.NewFromFloat(n), nil
	case string:
		return decimal.NewFromString(n)
	case nil:
		return decimal.Zero, fmt.Errorf("%s is null", path)
	default:
		return decimal.Zero, fmt.Errorf("%s: unexpected type: %T", path, v)
	}
}
