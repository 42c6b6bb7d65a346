package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"moonx-swap/pkg/types"
)

const (
	DefaultAggregatorURL = "https://api.liquid.fun"
	DefaultHTTPTimeout   = 15 * time.Second
)

// AggregatorClient queries the swap rate API
type AggregatorClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// RateRequest identifies the swap to price. ExactOut selects destAmount
// (buy) instead of srcAmount (sell).
type RateRequest struct {
	ChainID        int64
	Src            common.Address
	Dest           common.Address
	Amount         *big.Int
	ExactOut       bool
	PlatformWallet common.Address
	UserAddress    common.Address
}

// Rate is the best rate returned by the API
type Rate struct {
	Amount *big.Int
	Data   []byte
}

type rateResponse struct {
	Rates []struct {
		Amount   json.RawMessage `json:"amount"`
		TxObject struct {
			Data string `json:"data"`
		} `json:"txObject"`
	} `json:"rates"`
}

// NewAggregatorClient creates a new rate API client
func NewAggregatorClient(baseURL, accessToken string, httpClient *http.Client) *AggregatorClient {
	if baseURL == "" {
		baseURL = DefaultAggregatorURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &AggregatorClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  httpClient,
	}
}

// GetRate fetches the best rate for req. Non-2xx responses become
// VenueUnavailable errors carrying the response body.
func (c *AggregatorClient) GetRate(ctx context.Context, req RateRequest) (*Rate, error) {
	if req.Amount == nil {
		return nil, types.Errorf(types.KindInvalidIntent, "amount is required")
	}

	q := url.Values{}
	q.Set("chainId", strconv.FormatInt(req.ChainID, 10))
	q.Set("src", req.Src.Hex())
	q.Set("dest", req.Dest.Hex())
	if req.ExactOut {
		q.Set("destAmount", req.Amount.String())
	} else {
		q.Set("srcAmount", req.Amount.String())
	}
	if req.PlatformWallet != (common.Address{}) {
		q.Set("platformWallet", req.PlatformWallet.Hex())
	}
	if req.UserAddress != (common.Address{}) {
		q.Set("userAddress", req.UserAddress.Hex())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/swap/rate?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build rate request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, types.Classify(types.KindVenueUnavailable, fmt.Errorf("failed to get rate: %w", err))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, types.Classify(types.KindVenueUnavailable, fmt.Errorf("failed to read rate response: %w", err))
	}

	// Check for successful status codes (200-299)
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = http.StatusText(httpResp.StatusCode)
		}
		return nil, types.Errorf(types.KindVenueUnavailable, "API error (status %d): %s", httpResp.StatusCode, detail)
	}

	var resp rateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewError(types.KindVenueUnavailable, "malformed rate response", err)
	}
	if len(resp.Rates) == 0 {
		return nil, types.Errorf(types.KindNoLiquidity, "no rates for %s -> %s", req.Src.Hex(), req.Dest.Hex())
	}

	best := resp.Rates[0]
	amount, err := parseAmount(best.Amount)
	if err != nil {
		return nil, types.NewError(types.KindVenueUnavailable, "malformed rate amount", err)
	}

	rate := &Rate{Amount: amount}
	if best.TxObject.Data != "" {
		rate.Data, err = hexutil.Decode(best.TxObject.Data)
		if err != nil {
			return nil, types.NewError(types.KindVenueUnavailable, "malformed rate calldata", err)
		}
	}

	return rate, nil
}

// parseAmount accepts the amount as a JSON string or number
func parseAmount(raw json.RawMessage) (*big.Int, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}
