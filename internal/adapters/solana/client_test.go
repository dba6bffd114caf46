package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	owner   = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	usdc    = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	solMint = "So11111111111111111111111111111111111111112"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeRPC answers JSON-RPC calls with canned results keyed by method.
func fakeRPC(t *testing.T, results map[string]func(params []json.RawMessage) string) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		build, ok := results[req.Method]
		if !ok {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}`, req.ID)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, build(req.Params))
	}))
	t.Cleanup(server.Close)
	return NewClient(Config{RPCURL: server.URL}, zap.NewNop())
}

func TestClient_Balance(t *testing.T) {
	client := fakeRPC(t, map[string]func([]json.RawMessage) string{
		"getBalance": func([]json.RawMessage) string {
			return `{"context":{"slot":1},"value":2500000000}`
		},
	})

	balance, err := client.Balance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 2.5, balance)
}

func TestClient_Balance_InvalidOwner(t *testing.T) {
	client := NewClient(Config{RPCURL: "http://127.0.0.1:0"}, zap.NewNop())
	_, err := client.Balance(context.Background(), "not-base58-0OIl")
	assert.Error(t, err)
}

func TestClient_TokenSupply(t *testing.T) {
	client := fakeRPC(t, map[string]func([]json.RawMessage) string{
		"getTokenSupply": func([]json.RawMessage) string {
			return `{"context":{"slot":1},"value":{"amount":"600000000000000000","decimals":9,"uiAmount":600000000,"uiAmountString":"600000000"}}`
		},
	})

	supply, err := client.TokenSupply(context.Background(), solMint)
	require.NoError(t, err)
	assert.Equal(t, 600000000.0, supply)
}

func TestClient_ParsedTokenAccounts(t *testing.T) {
	client := fakeRPC(t, map[string]func([]json.RawMessage) string{
		"getTokenAccountsByOwner": func(params []json.RawMessage) string {
			assert.Contains(t, string(params[1]), TokenProgramID.String())
			assert.Contains(t, string(params[2]), "jsonParsed")
			return `{"context":{"slot":1},"value":[{"pubkey":"` + owner + `","account":{"data":{"program":"spl-token","parsed":{"info":{"mint":"` + usdc + `","owner":"` + owner + `","tokenAmount":{"amount":"12500000","decimals":6,"uiAmount":12.5,"uiAmountString":"12.5"}},"type":"account"},"space":165},"executable":false,"lamports":2039280,"owner":"` + TokenProgramID.String() + `","rentEpoch":0}}]}`
		},
	})

	accounts, err := client.ParsedTokenAccounts(context.Background(), owner, TokenProgramID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, usdc, accounts[0].Mint)
	assert.Equal(t, 12.5, accounts[0].Balance)
	assert.Equal(t, uint8(6), accounts[0].Decimals)
}

func encodeTokenAccount(mint solana.PublicKey, amount uint64) string {
	data := make([]byte, 165)
	copy(data[0:32], mint[:])
	copy(data[32:64], solana.MustPublicKeyFromBase58(owner).Bytes())
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = 1 // initialized
	return base64.StdEncoding.EncodeToString(data)
}

func encodeMint(decimals uint8) string {
	data := make([]byte, 82)
	binary.LittleEndian.PutUint64(data[36:44], 1_000_000)
	data[44] = decimals
	data[45] = 1
	return base64.StdEncoding.EncodeToString(data)
}

func TestClient_RawTokenAccounts(t *testing.T) {
	mint := solana.MustPublicKeyFromBase58(usdc)
	mintLookups := 0

	client := fakeRPC(t, map[string]func([]json.RawMessage) string{
		"getTokenAccountsByOwner": func(params []json.RawMessage) string {
			assert.Contains(t, string(params[2]), "base64")
			account := `{"pubkey":"` + owner + `","account":{"data":["` + encodeTokenAccount(mint, 3_000_000) + `","base64"],"executable":false,"lamports":2039280,"owner":"` + Token2022ProgramID.String() + `","rentEpoch":0}}`
			return `{"context":{"slot":1},"value":[` + account + `,` + account + `]}`
		},
		"getAccountInfo": func([]json.RawMessage) string {
			mintLookups++
			return `{"context":{"slot":1},"value":{"data":["` + encodeMint(6) + `","base64"],"executable":false,"lamports":1461600,"owner":"` + Token2022ProgramID.String() + `","rentEpoch":0}}`
		},
	})

	accounts, err := client.RawTokenAccounts(context.Background(), owner, Token2022ProgramID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, usdc, accounts[0].Mint)
	assert.Equal(t, 3.0, accounts[0].Balance)
	assert.Equal(t, uint8(6), accounts[0].Decimals)
	assert.Equal(t, 1, mintLookups)
}

func TestUIAmount(t *testing.T) {
	v, err := uiAmount("1500000", 6)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	_, err = uiAmount("abc", 6)
	assert.Error(t, err)
}

// rateLimitedRPC answers the first n calls with HTTP 429 and a JSON-RPC 429 error.
func rateLimitedRPC(t *testing.T, n int32, result string) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if calls.Add(1) <= n {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":429,"message":"Too many requests"}}`, req.ID)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, result)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{RPCURL: server.URL, RateLimitBackoff: time.Millisecond}, zap.NewNop())
	return client, &calls
}

func TestClient_TokenSupply_RetriesRateLimit(t *testing.T) {
	client, calls := rateLimitedRPC(t, 2,
		`{"context":{"slot":1},"value":{"amount":"600000000000000000","decimals":9,"uiAmount":600000000,"uiAmountString":"600000000"}}`)

	supply, err := client.TokenSupply(context.Background(), solMint)
	require.NoError(t, err)
	assert.Equal(t, 600_000_000.0, supply)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_TokenSupply_GivesUpAfterRateLimitRetries(t *testing.T) {
	client, calls := rateLimitedRPC(t, 100, `null`)

	_, err := client.TokenSupply(context.Background(), solMint)
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, int32(4), calls.Load())
}

func TestClient_DoesNotRetryOtherRPCErrors(t *testing.T) {
	client := fakeRPC(t, map[string]func([]json.RawMessage) string{})

	_, err := client.TokenSupply(context.Background(), solMint)
	require.Error(t, err)
	assert.False(t, IsRateLimited(err))
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(fmt.Errorf("wrapped: %w", &jsonrpc.RPCError{Code: 429})))
	assert.False(t, IsRateLimited(&jsonrpc.RPCError{Code: -32601}))
	assert.False(t, IsRateLimited(fmt.Errorf("plain")))
}
