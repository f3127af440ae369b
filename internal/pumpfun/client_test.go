package pumpfun

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTradeLocalBuy(t *testing.T) {
	txBytes := []byte{0x01, 0x02, 0x03, 0x04}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/trade-local" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)

		var req map[string]interface{}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		if req["action"] != "buy" {
			t.Errorf("action = %v", req["action"])
		}
		if req["denominatedInSol"] != true {
			t.Error("buy must set denominatedInSol")
		}
		if req["amount"] != 0.1 {
			t.Errorf("amount = %v, want 0.1", req["amount"])
		}
		if req["slippage"] != float64(50) {
			t.Errorf("slippage = %v, want 50", req["slippage"])
		}
		if req["pool"] != "pump" {
			t.Errorf("pool = %v", req["pool"])
		}

		w.Write(txBytes)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 5*time.Second)
	got, err := client.TradeLocal(context.Background(), BuyRequest("Wallet111", "MintPump", 0.1, 0.00001))
	if err != nil {
		t.Fatalf("TradeLocal: %v", err)
	}
	if !bytes.Equal(got, txBytes) {
		t.Errorf("tx bytes = %v", got)
	}
}

func TestTradeLocalStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad amount", http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 5*time.Second)
	_, err := client.TradeLocal(context.Background(), SellRequest("Wallet111", "MintPump", "1.0", 0))
	if err == nil {
		t.Fatal("expected error")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error type = %T, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", statusErr.StatusCode)
	}
}

func TestPrice(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/quote" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("mint") != "MintPump" || q.Get("sol") != "0.001" || q.Get("isBuy") != "true" {
			t.Errorf("query = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"tokensOut": 4000}`)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 3*time.Second)
	price, err := client.Price(context.Background(), "MintPump")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}

	// 0.001 SOL bought 4000 tokens -> 2.5e-7 SOL per token.
	want := 0.001 / 4000
	if price != want {
		t.Errorf("price = %g, want %g", price, want)
	}
}

func TestPriceZeroTokensOut(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"tokensOut": 0}`)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 3*time.Second)
	if _, err := client.Price(context.Background(), "MintPump"); err == nil {
		t.Error("expected error for zero tokensOut")
	}
}

func TestSellAmountEncodings(t *testing.T) {
	encodings := SellAmountEncodings(1_000_000, 6)
	if len(encodings) != 4 {
		t.Fatalf("expected 4 encodings, got %d", len(encodings))
	}

	if s, ok := encodings[0].(string); !ok || s != "1.000000" {
		t.Errorf("encoding 0 = %v (%T), want \"1.000000\"", encodings[0], encodings[0])
	}
	if f, ok := encodings[1].(float64); !ok || f != 1.0 {
		t.Errorf("encoding 1 = %v (%T), want 1.0", encodings[1], encodings[1])
	}
	if raw, ok := encodings[2].(uint64); !ok || raw != 1_000_000 {
		t.Errorf("encoding 2 = %v (%T), want 1000000", encodings[2], encodings[2])
	}
	if s, ok := encodings[3].(string); !ok || s != "100%" {
		t.Errorf("encoding 3 = %v, want \"100%%\"", encodings[3])
	}
}

func TestSellAmountEncodingsFractional(t *testing.T) {
	encodings := SellAmountEncodings(1_234_567, 6)
	if s := encodings[0].(string); s != "1.234567" {
		t.Errorf("fixed string = %s, want 1.234567", s)
	}
}
