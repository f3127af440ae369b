// Package jupiter is the client for the aggregator's quote and swap
// endpoints. Tokens without a pump-venue route go through here: one call for
// the route, one call for the prebuilt transaction.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
)

// DefaultQuoteAPIURL is the aggregator v6 API base.
const DefaultQuoteAPIURL = "https://quote-api.jup.ag/v6"

// SOLMint is the wrapped SOL mint address.
const SOLMint = "So11111111111111111111111111111111111111112"

// hotPathSlippageBps is baked into every quote on the reactive path.
// Intentionally loose (25%) to maximize fill rate on volatile tokens.
const hotPathSlippageBps = 2500

// poolSize is one client per call of the quote-then-swap sequence, so the
// two requests of a trade never contend for the same connection.
const poolSize = 2

// clientPool rotates a small set of HTTP/2 clients. Each trade issues the
// quote and the swap build back to back; rotating transports keeps a stalled
// TLS handshake on one connection from delaying the next call.
type clientPool struct {
	clients []*http.Client
	next    atomic.Uint32
}

func newClientPool(size int, timeout time.Duration) *clientPool {
	if size < 1 {
		size = 1
	}

	pool := &clientPool{clients: make([]*http.Client, size)}
	for i := range pool.clients {
		transport := &http.Transport{
			ForceAttemptHTTP2:   true,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     2 * time.Minute,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: timeout,
		}
		http2.ConfigureTransport(transport)

		pool.clients[i] = &http.Client{
			Transport: transport,
			Timeout:   timeout,
		}
	}
	return pool
}

func (p *clientPool) get() *http.Client {
	return p.clients[int(p.next.Add(1))%len(p.clients)]
}

// Client talks to the aggregator API.
type Client struct {
	baseURL string
	pool    *clientPool
}

// NewClient creates an aggregator client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		pool:    newClientPool(poolSize, timeout),
	}
}

// QuoteResponse is the aggregator quote payload. It is passed back verbatim
// to the swap endpoint, so unknown fields must survive the round trip.
type QuoteResponse map[string]interface{}

// OutAmount returns the quoted output amount, if present.
func (q QuoteResponse) OutAmount() string {
	if v, ok := q["outAmount"].(string); ok {
		return v
	}
	return ""
}

// GetQuote fetches a swap route for amount base units of inputMint.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64) (QuoteResponse, error) {
	start := time.Now()

	url := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		c.baseURL, inputMint, outputMint, amount, hotPathSlippageBps)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.pool.get().Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("quote failed (%d): %s", resp.StatusCode, string(body))
	}

	var quote QuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}

	log.Debug().
		Dur("latency", time.Since(start)).
		Str("outAmount", quote.OutAmount()).
		Msg("aggregator quote")

	return quote, nil
}

// swapRequest is the body of POST /swap.
type swapRequest struct {
	QuoteResponse             QuoteResponse `json:"quoteResponse"`
	UserPublicKey             string        `json:"userPublicKey"`
	WrapAndUnwrapSol          bool          `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool          `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports uint64        `json:"prioritizationFeeLamports"`
}

// SwapResponse is the swap build payload.
type SwapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// GetSwapTransaction runs the quote-then-swap sequence and returns the
// base64-encoded serialized transaction.
func (c *Client) GetSwapTransaction(ctx context.Context, inputMint, outputMint, userPubkey string, amount, priorityFeeLamports uint64) (string, error) {
	start := time.Now()

	quote, err := c.GetQuote(ctx, inputMint, outputMint, amount)
	if err != nil {
		return "", fmt.Errorf("get quote: %w", err)
	}
	quoteLatency := time.Since(start)

	body, err := json.Marshal(swapRequest{
		QuoteResponse:             quote,
		UserPublicKey:             userPubkey,
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: priorityFeeLamports,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.pool.get().Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("swap failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var swapResp SwapResponse
	if err := json.NewDecoder(resp.Body).Decode(&swapResp); err != nil {
		return "", fmt.Errorf("decode swap response: %w", err)
	}
	if swapResp.SwapTransaction == "" {
		return "", fmt.Errorf("swap response missing transaction")
	}

	log.Info().
		Dur("quoteLatency", quoteLatency).
		Dur("totalLatency", time.Since(start)).
		Msg("aggregator swap tx")

	return swapResp.SwapTransaction, nil
}
