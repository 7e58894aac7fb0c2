// Package indexer queries the bond and auction subgraph.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

// Client is a GraphQL client for the bond/auction subgraph.
type Client struct {
	graphqlURL string
	apiKey     string
	appURL     string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a subgraph client. appURL is the public base URL used
// to build offering links; it may be empty.
func NewClient(graphqlURL, apiKey, appURL string) *Client {
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		appURL:     strings.TrimRight(appURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const auctionsQuery = `
	query Auctions($first: Int!, $skip: Int!) {
		auctions(first: $first, skip: $skip, orderBy: end, orderDirection: desc) {
			id
			size
			end
			live
			minimumBondPrice
			clearingPrice
			bond {
				id
				name
				symbol
				maturity
				issuer { name }
			}
		}
	}
`

// FetchAuctions returns one page of auctions, newest end date first. The
// order is preserved by the listing table.
func (c *Client) FetchAuctions(ctx context.Context, first, skip int) ([]domain.Offering, error) {
	respData, err := c.doQuery(ctx, auctionsQuery, map[string]any{
		"first": first,
		"skip":  skip,
	})
	if err != nil {
		return nil, fmt.Errorf("indexer: fetch auctions: %w", err)
	}

	var result struct {
		Auctions []apiAuction `json:"auctions"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("indexer: decode auctions: %w", err)
	}

	now := c.now()
	offerings := make([]domain.Offering, 0, len(result.Auctions))
	for _, a := range result.Auctions {
		offerings = append(offerings, a.toOffering(c.appURL, now))
	}
	return offerings, nil
}

// FetchAllAuctions pages through every auction in batches of pageSize.
func (c *Client) FetchAllAuctions(ctx context.Context, pageSize int) ([]domain.Offering, error) {
	var all []domain.Offering
	for skip := 0; ; skip += pageSize {
		page, err := c.FetchAuctions(ctx, pageSize, skip)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

const bondFields = `
	id
	name
	symbol
	owner
	type
	state
	maturity
	createdAt
	collateralRatio
	convertibleRatio
	maxSupply
	paymentToken { id symbol decimals }
	collateralToken { id symbol decimals }
`

// FetchBonds lists bonds created by owner.
func (c *Client) FetchBonds(ctx context.Context, owner string, first int) ([]domain.BondDetail, error) {
	query := `
		query Bonds($owner: Bytes!, $first: Int!) {
			bonds(first: $first, orderBy: createdAt, orderDirection: desc, where: { owner: $owner }) {` +
		bondFields + `
			}
		}
	`
	respData, err := c.doQuery(ctx, query, map[string]any{
		"owner": strings.ToLower(owner),
		"first": first,
	})
	if err != nil {
		return nil, fmt.Errorf("indexer: fetch bonds: %w", err)
	}

	var result struct {
		Bonds []apiBond `json:"bonds"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("indexer: decode bonds: %w", err)
	}

	bonds := make([]domain.BondDetail, 0, len(result.Bonds))
	for _, b := range result.Bonds {
		bonds = append(bonds, b.toDomain())
	}
	return bonds, nil
}

// FetchBond returns a single bond, or domain.ErrNotFound.
func (c *Client) FetchBond(ctx context.Context, id string) (domain.BondDetail, error) {
	query := `
		query Bond($id: ID!) {
			bond(id: $id) {` + bondFields + `
			}
		}
	`
	respData, err := c.doQuery(ctx, query, map[string]any{"id": strings.ToLower(id)})
	if err != nil {
		return domain.BondDetail{}, fmt.Errorf("indexer: fetch bond %s: %w", id, err)
	}

	var result struct {
		Bond *apiBond `json:"bond"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.BondDetail{}, fmt.Errorf("indexer: decode bond: %w", err)
	}
	if result.Bond == nil {
		return domain.BondDetail{}, fmt.Errorf("indexer: bond %s: %w", id, domain.ErrNotFound)
	}
	return result.Bond.toDomain(), nil
}

// FetchLatestBlock returns the latest block indexed by the subgraph.
func (c *Client) FetchLatestBlock(ctx context.Context) (int64, error) {
	query := `
		query LatestBlock {
			_meta {
				block {
					number
				}
			}
		}
	`

	respData, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("indexer: fetch latest block: %w", err)
	}

	var result struct {
		Meta struct {
			Block struct {
				Number int64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return 0, fmt.Errorf("indexer: decode latest block: %w", err)
	}
	return result.Meta.Block.Number, nil
}

// doQuery executes a GraphQL query and returns the raw "data" field.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	jsonBody, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
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
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}
	return gqlResp.Data, nil
}
