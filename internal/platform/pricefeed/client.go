// Package pricefeed is the REST client for USD token quotes.
package pricefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondwizard/internal/crypto"
	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// Client fetches token prices by contract address.
type Client struct {
	baseURL    string
	platform   string
	signer     *crypto.RequestSigner
	httpClient *http.Client
}

// NewClient creates a price feed client.
//
// baseURL is the API root, e.g. "https://api.coingecko.com/api/v3", and
// platform the asset platform id ("ethereum"). signer may be nil for
// unauthenticated access.
func NewClient(baseURL, platform string, signer *crypto.RequestSigner) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		platform: platform,
		signer:   signer,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type apiPrice struct {
	USD           json.Number `json:"usd"`
	LastUpdatedAt int64       `json:"last_updated_at"`
}

// Quotes returns the USD quotes for tokens. Tokens the provider does not
// price are absent from the result.
func (c *Client) Quotes(ctx context.Context, tokens ...common.Address) (map[common.Address]domain.Quote, error) {
	if len(tokens) == 0 {
		return map[common.Address]domain.Quote{}, nil
	}
	addrs := make([]string, len(tokens))
	for i, t := range tokens {
		addrs[i] = strings.ToLower(t.Hex())
	}

	params := url.Values{}
	params.Set("contract_addresses", strings.Join(addrs, ","))
	params.Set("vs_currencies", "usd")
	params.Set("include_last_updated_at", "true")
	path := "/simple/token_price/" + url.PathEscape(c.platform) + "?" + params.Encode()

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("pricefeed: get prices: %w", err)
	}

	var raw map[string]apiPrice
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("pricefeed: decode prices: %w", err)
	}

	out := make(map[common.Address]domain.Quote, len(raw))
	for addr, p := range raw {
		if !common.IsHexAddress(addr) || p.USD == "" {
			continue
		}
		usd, err := decimal.NewFromString(p.USD.String())
		if err != nil {
			continue
		}
		q := domain.QuoteOf(usd)
		if p.LastUpdatedAt > 0 {
			q.At = time.Unix(p.LastUpdatedAt, 0).UTC()
		}
		out[common.HexToAddress(addr)] = q
	}
	return out, nil
}

// Quote returns the quote of a single token, or domain.ErrDataUnavailable
// when the provider has none.
func (c *Client) Quote(ctx context.Context, token common.Address) (domain.Quote, error) {
	quotes, err := c.Quotes(ctx, token)
	if err != nil {
		return domain.Quote{}, err
	}
	q, ok := quotes[token]
	if !ok {
		return domain.Quote{}, fmt.Errorf("pricefeed: %s: %w", token.Hex(), domain.ErrDataUnavailable)
	}
	return q, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.signer != nil {
		for k, v := range c.signer.Headers(http.MethodGet, req.URL.RequestURI(), "") {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
