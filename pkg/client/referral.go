package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ReferralClient talks to the referral store
type ReferralClient struct {
	baseURL    string
	httpClient *http.Client
}

type getRefResponse struct {
	RefParam *string `json:"refParam"`
}

type saveRefRequest struct {
	WalletAddress string `json:"walletAddress"`
	RefParam      string `json:"refParam"`
}

// NewReferralClient creates a referral store client
func NewReferralClient(baseURL string, httpClient *http.Client) *ReferralClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &ReferralClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// GetReferrer returns the referrer saved for wallet, or the zero address
func (c *ReferralClient) GetReferrer(ctx context.Context, wallet common.Address) (common.Address, error) {
	q := url.Values{}
	q.Set("walletAddress", strings.ToLower(wallet.Hex()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/get-ref?"+q.Encode(), nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to build request: %w", err)
	}

	var resp getRefResponse
	if err := c.do(req, &resp); err != nil {
		return common.Address{}, err
	}
	if resp.RefParam == nil || !common.IsHexAddress(*resp.RefParam) {
		return common.Address{}, nil
	}
	return common.HexToAddress(*resp.RefParam), nil
}

// SaveReferrer records referrer for wallet. Self-referral is rejected.
func (c *ReferralClient) SaveReferrer(ctx context.Context, wallet, referrer common.Address) error {
	if wallet == referrer {
		return fmt.Errorf("a wallet cannot refer itself")
	}
	if referrer == (common.Address{}) {
		return fmt.Errorf("referrer address is required")
	}

	body, err := json.Marshal(saveRefRequest{
		WalletAddress: strings.ToLower(wallet.Hex()),
		RefParam:      strings.ToLower(referrer.Hex()),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/save-ref", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, nil)
}

func (c *ReferralClient) do(req *http.Request, out interface{}) error {
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("referral request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("failed to read referral response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal referral response: %w", err)
	}
	return nil
}
