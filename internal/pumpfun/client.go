// Package pumpfun talks to the pump venue's local-transaction and quote
// endpoints. The trade endpoint returns a fully serialized transaction in a
// single round trip, which is why pump-suffixed tokens take this path.
package pumpfun

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DefaultAPIURL is the pump venue API host.
const DefaultAPIURL = "https://pumpportal.fun"

// Slippage percent sent to the trade endpoint. Intentionally loose to
// maximize fill rate on volatile tokens.
const tradeSlippagePercent = 50

// priceReferenceSOL is the tiny buy-side reference input used to derive a
// unit price from the quote endpoint.
const priceReferenceSOL = 0.001

// TradeRequest is the body of POST /api/trade-local. Amount is one of the
// encodings the endpoint accepts: a decimal string, a float, a raw integer,
// or the literal "100%".
type TradeRequest struct {
	PublicKey        string      `json:"publicKey"`
	Action           string      `json:"action"` // "buy" or "sell"
	Mint             string      `json:"mint"`
	Amount           interface{} `json:"amount"`
	DenominatedInSOL bool        `json:"denominatedInSol"`
	Slippage         int         `json:"slippage"`
	PriorityFee      float64     `json:"priorityFee"`
	Pool             string      `json:"pool"`
}

// StatusError is returned for non-2xx responses so callers can distinguish a
// venue rejection from transport failures.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pump venue status %d: %s", e.StatusCode, e.Body)
}

// Client is the pump venue HTTP client.
type Client struct {
	http *resty.Client
}

// NewClient creates a pump venue client against the given API base URL.
func NewClient(apiURL string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{http: httpClient}
}

// BuyRequest builds the trade body for a buy denominated in SOL.
func BuyRequest(publicKey, mint string, amountSOL, priorityFeeSOL float64) TradeRequest {
	return TradeRequest{
		PublicKey:        publicKey,
		Action:           "buy",
		Mint:             mint,
		Amount:           amountSOL,
		DenominatedInSOL: true,
		Slippage:         tradeSlippagePercent,
		PriorityFee:      priorityFeeSOL,
		Pool:             "pump",
	}
}

// SellRequest builds the trade body for a sell with one amount encoding.
func SellRequest(publicKey, mint string, amount interface{}, priorityFeeSOL float64) TradeRequest {
	return TradeRequest{
		PublicKey:        publicKey,
		Action:           "sell",
		Mint:             mint,
		Amount:           amount,
		DenominatedInSOL: false,
		Slippage:         tradeSlippagePercent,
		PriorityFee:      priorityFeeSOL,
		Pool:             "pump",
	}
}

// TradeLocal posts a trade request and returns the serialized transaction
// bytes. Non-2xx responses come back as *StatusError.
func (c *Client) TradeLocal(ctx context.Context, req TradeRequest) ([]byte, error) {
	start := time.Now()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/api/trade-local")
	if err != nil {
		return nil, fmt.Errorf("pump trade request: %w", err)
	}

	if resp.IsError() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("pump trade: empty transaction payload")
	}

	log.Debug().
		Str("action", req.Action).
		Str("mint", req.Mint).
		Int("txBytes", len(body)).
		Dur("latency", time.Since(start)).
		Msg("pump trade-local")

	return body, nil
}

// quoteResponse is the quote endpoint payload; only tokensOut matters here.
type quoteResponse struct {
	TokensOut float64 `json:"tokensOut"`
}

// Price returns the current unit price in SOL per token, derived from a
// fixed 0.001 SOL buy-side quote.
func (c *Client) Price(ctx context.Context, mint string) (float64, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"mint":  mint,
			"sol":   fmt.Sprintf("%g", priceReferenceSOL),
			"isBuy": "true",
		}).
		SetResult(&quoteResponse{}).
		Get("/api/quote")
	if err != nil {
		return 0, fmt.Errorf("pump quote request: %w", err)
	}
	if resp.IsError() {
		return 0, &StatusError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	quote, ok := resp.Result().(*quoteResponse)
	if !ok || quote.TokensOut <= 0 {
		return 0, fmt.Errorf("pump quote: no tokens out for mint %s", mint)
	}

	return priceReferenceSOL / quote.TokensOut, nil
}

// SellAmountEncodings returns the amount encodings to try against the sell
// endpoint, in order: UI-decimal string, UI-decimal float, raw base units,
// and the literal "100%". The endpoint sporadically rejects individual
// encodings with a generic 400, so callers iterate until one is accepted.
func SellAmountEncodings(amountRaw uint64, decimals uint8) []interface{} {
	ui := decimal.NewFromBigInt(new(big.Int).SetUint64(amountRaw), -int32(decimals))
	return []interface{}{
		ui.StringFixed(int32(decimals)),
		ui.InexactFloat64(),
		amountRaw,
		"100%",
	}
}
