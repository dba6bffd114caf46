package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
	"github.com/stockline/stockline_service/pkg/metrics"
	"github.com/stockline/stockline_service/pkg/retry"
)

const lamportsPerSOL = 1_000_000_000

var (
	// TokenProgramID is the legacy SPL Token program.
	TokenProgramID = solana.TokenProgramID
	// Token2022ProgramID is the Token Extensions program.
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
)

// Config represents Solana RPC configuration
type Config struct {
	RPCURL     string
	Commitment rpc.CommitmentType
	Timeout    time.Duration
	// RateLimitRetries bounds how often a 429 from the node is retried.
	RateLimitRetries int
	RateLimitBackoff time.Duration
}

// Client wraps the solana-go RPC client with the lookups the wallet and price caches need
type Client struct {
	config         Config
	rpcClient      *rpc.Client
	circuitBreaker *gobreaker.CircuitBreaker
	retryPolicy    retry.Policy
	logger         *zap.Logger
}

// NewClient creates a new Solana RPC client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Commitment == "" {
		config.Commitment = rpc.CommitmentConfirmed
	}
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if config.RateLimitRetries == 0 {
		config.RateLimitRetries = 3
	}
	if config.RateLimitBackoff == 0 {
		config.RateLimitBackoff = 500 * time.Millisecond
	}

	st := gobreaker.Settings{
		Name:        "SolanaRPC",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 10
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		rpcClient:      rpc.New(config.RPCURL),
		circuitBreaker: gobreaker.NewCircuitBreaker(st),
		retryPolicy: retry.Policy{
			MaxRetries:    config.RateLimitRetries,
			BaseDelay:     config.RateLimitBackoff,
			MaxDelay:      8 * config.RateLimitBackoff,
			Strategy:      retry.StrategyExponential,
			RetryableFunc: IsRateLimited,
		},
		logger: logger,
	}
}

// Balance returns the SOL balance of owner
func (c *Client) Balance(ctx context.Context, owner string) (float64, error) {
	pk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, fmt.Errorf("invalid owner pubkey '%s': %w", owner, err)
	}

	result, err := execute(ctx, c, "get_balance", func() (*rpc.GetBalanceResult, error) {
		ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
		return c.rpcClient.GetBalance(ctx, pk, c.config.Commitment)
	})
	if err != nil {
		return 0, fmt.Errorf("get balance failed: %w", err)
	}
	return float64(result.Value) / lamportsPerSOL, nil
}

// TokenSupply returns the UI supply of mint
func (c *Client) TokenSupply(ctx context.Context, mint string) (float64, error) {
	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint '%s': %w", mint, err)
	}

	result, err := execute(ctx, c, "get_token_supply", func() (*rpc.GetTokenSupplyResult, error) {
		ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
		return c.rpcClient.GetTokenSupply(ctx, pk, c.config.Commitment)
	})
	if err != nil {
		return 0, fmt.Errorf("get token supply failed: %w", err)
	}
	if result.Value == nil {
		return 0, fmt.Errorf("empty supply for %s", mint)
	}
	if result.Value.UiAmount != nil {
		return *result.Value.UiAmount, nil
	}
	return uiAmount(result.Value.Amount, result.Value.Decimals)
}

type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			TokenAmount struct {
				Amount         string   `json:"amount"`
				Decimals       uint8    `json:"decimals"`
				UiAmount       *float64 `json:"uiAmount"`
				UiAmountString string   `json:"uiAmountString"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

// ParsedTokenAccounts lists owner's token accounts under programID using jsonParsed encoding
func (c *Client) ParsedTokenAccounts(ctx context.Context, owner string, programID solana.PublicKey) ([]entities.TokenAccount, error) {
	ownerPk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, fmt.Errorf("invalid owner pubkey '%s': %w", owner, err)
	}

	result, err := execute(ctx, c, "get_token_accounts_parsed", func() (*rpc.GetTokenAccountsResult, error) {
		ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
		return c.rpcClient.GetTokenAccountsByOwner(ctx, ownerPk,
			&rpc.GetTokenAccountsConfig{ProgramId: programID.ToPointer()},
			&rpc.GetTokenAccountsOpts{Commitment: c.config.Commitment, Encoding: solana.EncodingJSONParsed},
		)
	})
	if err != nil {
		return nil, fmt.Errorf("get parsed token accounts failed: %w", err)
	}

	accounts := make([]entities.TokenAccount, 0, len(result.Value))
	for _, keyed := range result.Value {
		if keyed == nil || keyed.Account.Data == nil {
			continue
		}
		raw := keyed.Account.Data.GetRawJSON()
		if raw == nil {
			continue
		}

		var parsed parsedTokenAccount
		if err := json.Unmarshal(raw, &parsed); err != nil {
			c.logger.Debug("Skipping unparsable token account",
				zap.String("account", keyed.Pubkey.String()),
				zap.Error(err))
			continue
		}

		info := parsed.Parsed.Info
		if info.Mint == "" {
			continue
		}

		balance := 0.0
		if info.TokenAmount.UiAmount != nil {
			balance = *info.TokenAmount.UiAmount
		} else if v, err := uiAmount(info.TokenAmount.Amount, info.TokenAmount.Decimals); err == nil {
			balance = v
		}

		accounts = append(accounts, entities.TokenAccount{
			Mint:     info.Mint,
			Balance:  balance,
			Decimals: info.TokenAmount.Decimals,
		})
	}
	return accounts, nil
}

// RawTokenAccounts lists owner's token accounts under programID using base64
// encoding and decodes the SPL layout locally. Decimals come from each mint account.
func (c *Client) RawTokenAccounts(ctx context.Context, owner string, programID solana.PublicKey) ([]entities.TokenAccount, error) {
	ownerPk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, fmt.Errorf("invalid owner pubkey '%s': %w", owner, err)
	}

	result, err := execute(ctx, c, "get_token_accounts_raw", func() (*rpc.GetTokenAccountsResult, error) {
		ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
		return c.rpcClient.GetTokenAccountsByOwner(ctx, ownerPk,
			&rpc.GetTokenAccountsConfig{ProgramId: programID.ToPointer()},
			&rpc.GetTokenAccountsOpts{Commitment: c.config.Commitment, Encoding: solana.EncodingBase64},
		)
	})
	if err != nil {
		return nil, fmt.Errorf("get raw token accounts failed: %w", err)
	}

	decimalsByMint := make(map[solana.PublicKey]uint8)
	accounts := make([]entities.TokenAccount, 0, len(result.Value))

	for _, keyed := range result.Value {
		if keyed == nil || keyed.Account.Data == nil {
			continue
		}

		var acc token.Account
		if err := bin.NewBinDecoder(keyed.Account.Data.GetBinary()).Decode(&acc); err != nil {
			c.logger.Debug("Skipping undecodable token account",
				zap.String("account", keyed.Pubkey.String()),
				zap.Error(err))
			continue
		}

		decimals, ok := decimalsByMint[acc.Mint]
		if !ok {
			decimals, err = c.mintDecimals(ctx, acc.Mint)
			if err != nil {
				c.logger.Warn("Failed to read mint decimals",
					zap.String("mint", acc.Mint.String()),
					zap.Error(err))
				continue
			}
			decimalsByMint[acc.Mint] = decimals
		}

		accounts = append(accounts, entities.TokenAccount{
			Mint:     acc.Mint.String(),
			Balance:  float64(acc.Amount) / math.Pow10(int(decimals)),
			Decimals: decimals,
		})
	}
	return accounts, nil
}

// MintDecimals reads the decimals field of a mint account
func (c *Client) MintDecimals(ctx context.Context, mint string) (uint8, error) {
	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint '%s': %w", mint, err)
	}
	return c.mintDecimals(ctx, pk)
}

func (c *Client) mintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	result, err := execute(ctx, c, "get_account_info", func() (*rpc.GetAccountInfoResult, error) {
		ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
		return c.rpcClient.GetAccountInfo(ctx, mint)
	})
	if err != nil {
		return 0, fmt.Errorf("get mint account failed: %w", err)
	}
	if result.Value == nil || result.Value.Data == nil {
		return 0, fmt.Errorf("mint %s not found", mint)
	}

	var m token.Mint
	if err := bin.NewBinDecoder(result.Value.Data.GetBinary()).Decode(&m); err != nil {
		return 0, fmt.Errorf("decode mint %s: %w", mint, err)
	}
	return m.Decimals, nil
}

// execute runs an RPC call through the circuit breaker and records metrics.
// IsRateLimited reports whether the node answered with JSON-RPC code 429.
func IsRateLimited(err error) bool {
	var rpcErr *jsonrpc.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == 429
}

// execute runs call through the circuit breaker, retrying 429s with backoff.
func execute[T any](ctx context.Context, c *Client, operation string, call func() (T, error)) (T, error) {
	return retry.DoValue(ctx, c.retryPolicy, c.logger, func() (T, error) {
		start := time.Now()
		result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return call()
		})
		metrics.UpstreamRequestDuration.WithLabelValues("solana", operation).Observe(time.Since(start).Seconds())
		metrics.UpstreamRequestsTotal.WithLabelValues("solana", operation, metrics.Outcome(err)).Inc()

		if err != nil {
			if IsRateLimited(err) {
				c.logger.Warn("Solana RPC rate limited", zap.String("operation", operation))
			}
			var zero T
			return zero, err
		}
		return result.(T), nil
	})
}

func uiAmount(amount string, decimals uint8) (float64, error) {
	raw, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return raw / math.Pow10(int(decimals)), nil
}
