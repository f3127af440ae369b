package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Token program IDs. Sell-side balance resolution has to cover both the
// legacy program and Token-2022.
const (
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

// RPCClient handles Solana JSON-RPC calls with a fallback URL and a simple
// circuit breaker on the primary.
type RPCClient struct {
	primaryURL  string
	fallbackURL string
	httpClient  *http.Client

	mu          sync.RWMutex
	failures    int
	lastFailure time.Time
	circuitOpen bool
}

// RPCRequest is the JSON-RPC 2.0 request format.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// RPCResponse is the JSON-RPC 2.0 response format.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC 2.0 error format.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// NewRPCClient creates an RPC client. fallbackURL may equal primaryURL when
// no secondary endpoint is configured.
func NewRPCClient(primaryURL, fallbackURL string) *RPCClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &RPCClient{
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

// BlockhashResult is the result of getLatestBlockhash.
type BlockhashResult struct {
	Value struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

// GetLatestBlockhash fetches the latest blockhash.
func (c *RPCClient) GetLatestBlockhash(ctx context.Context) (*BlockhashResult, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getLatestBlockhash",
		Params:  []interface{}{map[string]string{"commitment": "processed"}},
	}

	var result BlockhashResult
	if err := c.call(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBalance fetches the SOL balance for a public key.
func (c *RPCClient) GetBalance(ctx context.Context, pubkey string) (uint64, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getBalance",
		Params:  []interface{}{pubkey, map[string]string{"commitment": "processed"}},
	}

	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, req, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// SendTransaction submits a base64-encoded signed transaction fire-and-forget:
// preflight skipped, processed commitment, no RPC-side retries. Confirmation
// is intentionally not awaited anywhere on the hot path.
func (c *RPCClient) SendTransaction(ctx context.Context, signedTxBase64 string) (string, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "sendTransaction",
		Params: []interface{}{
			signedTxBase64,
			map[string]interface{}{
				"encoding":            "base64",
				"skipPreflight":       true,
				"preflightCommitment": "processed",
				"maxRetries":          0,
			},
		},
	}

	var result string
	if err := c.call(ctx, req, &result); err != nil {
		return "", err
	}
	return result, nil
}

// TokenAccountInfo holds one parsed token account.
type TokenAccountInfo struct {
	Address  string
	Mint     string
	Amount   uint64
	Decimals uint8
}

// GetTokenAccountsByOwner fetches token accounts for an owner filtered by
// mint. The mint filter matches accounts under either token program.
func (c *RPCClient) GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]TokenAccountInfo, error) {
	return c.fetchTokenAccounts(ctx, owner, map[string]string{"mint": mint})
}

// GetTokenAccountsByProgram fetches all token accounts for an owner under one
// token program.
func (c *RPCClient) GetTokenAccountsByProgram(ctx context.Context, owner, programID string) ([]TokenAccountInfo, error) {
	return c.fetchTokenAccounts(ctx, owner, map[string]string{"programId": programID})
}

func (c *RPCClient) fetchTokenAccounts(ctx context.Context, owner string, filter map[string]string) ([]TokenAccountInfo, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTokenAccountsByOwner",
		Params: []interface{}{
			owner,
			filter,
			map[string]string{"encoding": "jsonParsed"},
		},
	}

	var result struct {
		Value []struct {
			Pubkey  string `json:"pubkey"`
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							Mint        string `json:"mint"`
							TokenAmount struct {
								Amount   string `json:"amount"`
								Decimals uint8  `json:"decimals"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}

	if err := c.call(ctx, req, &result); err != nil {
		return nil, err
	}

	accounts := make([]TokenAccountInfo, 0, len(result.Value))
	for _, v := range result.Value {
		amount, _ := strconv.ParseUint(v.Account.Data.Parsed.Info.TokenAmount.Amount, 10, 64)
		accounts = append(accounts, TokenAccountInfo{
			Address:  v.Pubkey,
			Mint:     v.Account.Data.Parsed.Info.Mint,
			Amount:   amount,
			Decimals: v.Account.Data.Parsed.Info.TokenAmount.Decimals,
		})
	}
	return accounts, nil
}

// GetTokenAccountBalance fetches the balance of one token account. Used by
// the associated-token-account fallback when the owner filter call fails.
func (c *RPCClient) GetTokenAccountBalance(ctx context.Context, tokenAccount string) (uint64, uint8, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTokenAccountBalance",
		Params:  []interface{}{tokenAccount},
	}

	var result struct {
		Value struct {
			Amount   string `json:"amount"`
			Decimals uint8  `json:"decimals"`
		} `json:"value"`
	}
	if err := c.call(ctx, req, &result); err != nil {
		return 0, 0, err
	}

	amount, _ := strconv.ParseUint(result.Value.Amount, 10, 64)
	return amount, result.Value.Decimals, nil
}

func (c *RPCClient) call(ctx context.Context, req RPCRequest, result interface{}) error {
	if c.isCircuitOpen() {
		return c.callURL(ctx, c.fallbackURL, req, result)
	}

	err := c.callURL(ctx, c.primaryURL, req, result)
	if err != nil {
		c.recordFailure()
		if c.fallbackURL == c.primaryURL {
			return err
		}
		log.Warn().Err(err).Str("method", req.Method).Msg("primary RPC failed, trying fallback")
		return c.callURL(ctx, c.fallbackURL, req, result)
	}

	c.recordSuccess()
	return nil
}

func (c *RPCClient) callURL(ctx context.Context, url string, rpcReq RPCRequest, result interface{}) error {
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

func (c *RPCClient) isCircuitOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.circuitOpen {
		return false
	}
	// Circuit resets after 30 seconds.
	return time.Since(c.lastFailure) <= 30*time.Second
}

func (c *RPCClient) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	c.lastFailure = time.Now()
	if c.failures >= 5 {
		c.circuitOpen = true
		log.Warn().Msg("RPC circuit breaker opened")
	}
}

func (c *RPCClient) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.circuitOpen = false
}

// LatencyMs measures a round trip to the RPC endpoint, for the health probe.
func (c *RPCClient) LatencyMs(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if _, err := c.GetLatestBlockhash(ctx); err != nil {
		return -1
	}
	return time.Since(start).Milliseconds()
}
