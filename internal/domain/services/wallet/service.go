package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	solanaadapter "github.com/stockline/stockline_service/internal/adapters/solana"
	"github.com/stockline/stockline_service/internal/domain/entities"
	domainerrors "github.com/stockline/stockline_service/internal/domain/errors"
	"github.com/stockline/stockline_service/internal/domain/services/market"
	"github.com/stockline/stockline_service/internal/domain/validation"
	"github.com/stockline/stockline_service/internal/infrastructure/cache"
	"github.com/stockline/stockline_service/pkg/metrics"
)

const (
	snapshotKeyPrefix = "wallet_cache_"
	unknownTokenName  = "Unknown Token"
)

// ChainReader is the subset of the Solana RPC client the prefetcher needs.
type ChainReader interface {
	Balance(ctx context.Context, owner string) (float64, error)
	ParsedTokenAccounts(ctx context.Context, owner string, programID solana.PublicKey) ([]entities.TokenAccount, error)
	RawTokenAccounts(ctx context.Context, owner string, programID solana.PublicKey) ([]entities.TokenAccount, error)
}

// PriceFetcher prices a single mint through the token price cache.
type PriceFetcher interface {
	FetchTokenData(ctx context.Context, address string) entities.TokenData
}

// Config captures the freshness windows of stored snapshots
type Config struct {
	// PrefetchSkip is how young a snapshot must be for Prefetch to do nothing.
	PrefetchSkip time.Duration
	// ValidFor is how long Snapshot serves a stored snapshot.
	ValidFor   time.Duration
	ProgramIDs []solana.PublicKey
}

func DefaultConfig() Config {
	return Config{
		PrefetchSkip: 5 * time.Minute,
		ValidFor:     10 * time.Minute,
		ProgramIDs:   []solana.PublicKey{solanaadapter.TokenProgramID, solanaadapter.Token2022ProgramID},
	}
}

// Service builds wallet snapshots from chain state and the price cache
type Service struct {
	config Config
	chain  ChainReader
	prices PriceFetcher
	store  cache.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new wallet prefetch service
func NewService(config Config, chain ChainReader, prices PriceFetcher, store cache.Store, logger *zap.Logger) *Service {
	if len(config.ProgramIDs) == 0 {
		config.ProgramIDs = DefaultConfig().ProgramIDs
	}
	return &Service{
		config: config,
		chain:  chain,
		prices: prices,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// SnapshotKey is the store key holding owner's snapshot.
func SnapshotKey(owner string) string {
	return snapshotKeyPrefix + owner
}

// Prefetch builds and stores a snapshot for owner unless a recent one exists.
// Chain and pricing failures are logged and skipped; only a malformed owner
// address is reported as an error.
func (s *Service) Prefetch(ctx context.Context, owner string) (*entities.WalletSnapshot, error) {
	if !validation.IsPublicKey(owner) {
		return nil, domainerrors.ValidationError("address", "invalid wallet address")
	}

	if existing, err := s.load(ctx, owner); err == nil && existing.IsFresh(s.now(), s.config.PrefetchSkip) {
		metrics.WalletPrefetchTotal.WithLabelValues("skipped").Inc()
		s.logger.Debug("Wallet snapshot still fresh, skipping prefetch", zap.String("owner", owner))
		return existing, nil
	}

	start := s.now()

	balance, err := s.chain.Balance(ctx, owner)
	if err != nil {
		s.logger.Warn("Failed to fetch SOL balance", zap.String("owner", owner), zap.Error(err))
		balance = 0
	}

	tokens := s.priceTokens(ctx, withMetadata(mergeByMint(s.tokenAccounts(ctx, owner))))

	snapshot := &entities.WalletSnapshot{
		Address:   owner,
		Balance:   balance,
		Tokens:    tokens,
		Timestamp: s.now().UnixMilli(),
	}
	if ctx.Err() == nil {
		if sol := s.prices.FetchTokenData(ctx, entities.SOLMint); sol.Price > 0 {
			price := sol.Price
			snapshot.SOLPrice = &price
		}
	}

	if err := cache.SaveEnvelope(ctx, s.store, SnapshotKey(owner), snapshot, s.now()); err != nil {
		s.logger.Warn("Failed to store wallet snapshot", zap.String("owner", owner), zap.Error(err))
	}

	metrics.WalletPrefetchTotal.WithLabelValues("success").Inc()
	s.logger.Info("Wallet prefetched",
		zap.String("owner", owner),
		zap.Float64("sol_balance", balance),
		zap.Int("tokens", len(tokens)),
		zap.Duration("duration", s.now().Sub(start)))

	return snapshot, nil
}

// Snapshot returns the stored snapshot for owner while it is still valid.
func (s *Service) Snapshot(ctx context.Context, owner string) (*entities.WalletSnapshot, error) {
	if !validation.IsPublicKey(owner) {
		return nil, domainerrors.ValidationError("address", "invalid wallet address")
	}

	snapshot, err := s.load(ctx, owner)
	if err != nil {
		if cache.IsMiss(err) || errors.Is(err, cache.ErrVersionMismatch) {
			return nil, domainerrors.NotFoundError("WALLET_SNAPSHOT")
		}
		return nil, domainerrors.InternalError("failed to read wallet snapshot", err)
	}
	if !snapshot.IsFresh(s.now(), s.config.ValidFor) {
		return nil, domainerrors.NotFoundError("WALLET_SNAPSHOT")
	}
	return snapshot, nil
}

func (s *Service) load(ctx context.Context, owner string) (*entities.WalletSnapshot, error) {
	var snapshot entities.WalletSnapshot
	if err := cache.LoadEnvelope(ctx, s.store, SnapshotKey(owner), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// tokenAccounts walks every token program in parallel. Results keep the
// program order so merging is deterministic.
func (s *Service) tokenAccounts(ctx context.Context, owner string) []entities.TokenAccount {
	perProgram := make([][]entities.TokenAccount, len(s.config.ProgramIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, program := range s.config.ProgramIDs {
		g.Go(func() error {
			perProgram[i] = s.programAccounts(gctx, owner, program)
			return nil
		})
	}
	_ = g.Wait()

	var all []entities.TokenAccount
	for _, accounts := range perProgram {
		all = append(all, accounts...)
	}
	return all
}

func (s *Service) programAccounts(ctx context.Context, owner string, program solana.PublicKey) []entities.TokenAccount {
	parsed, err := s.chain.ParsedTokenAccounts(ctx, owner, program)
	if err != nil {
		s.logger.Warn("Parsed token account lookup failed",
			zap.String("owner", owner),
			zap.String("program", program.String()),
			zap.Error(err))
	}
	if len(parsed) > 0 {
		return parsed
	}

	raw, err := s.chain.RawTokenAccounts(ctx, owner, program)
	if err != nil {
		s.logger.Warn("Raw token account lookup failed",
			zap.String("owner", owner),
			zap.String("program", program.String()),
			zap.Error(err))
		return nil
	}
	return raw
}

// priceTokens prices mints one at a time through the price cache.
func (s *Service) priceTokens(ctx context.Context, tokens []entities.TokenAccount) []entities.TokenAccount {
	for i := range tokens {
		if ctx.Err() != nil {
			break
		}
		data := s.prices.FetchTokenData(ctx, tokens[i].Mint)
		if data.Price > 0 {
			price := data.Price
			tokens[i].Price = &price
		}
	}
	return tokens
}

// mergeByMint collapses accounts of the same mint, summing balances.
func mergeByMint(accounts []entities.TokenAccount) []entities.TokenAccount {
	index := make(map[string]int, len(accounts))
	merged := make([]entities.TokenAccount, 0, len(accounts))
	for _, account := range accounts {
		if i, ok := index[account.Mint]; ok {
			merged[i].Balance += account.Balance
			continue
		}
		index[account.Mint] = len(merged)
		merged = append(merged, account)
	}
	return merged
}

// withMetadata fills symbol, name and logo from the known-token table, then
// the stock catalog.
func withMetadata(tokens []entities.TokenAccount) []entities.TokenAccount {
	for i := range tokens {
		mint := tokens[i].Mint
		if known, ok := entities.KnownTokens[mint]; ok {
			tokens[i].Symbol = known.Symbol
			tokens[i].Name = known.Name
			tokens[i].LogoURI = known.LogoURI
			continue
		}
		if stock, ok := market.LookupStock(mint); ok {
			tokens[i].Symbol = stock.Symbol
			tokens[i].Name = stock.Name
			tokens[i].LogoURI = stock.LogoURI
			continue
		}
		tokens[i].Symbol = shortMint(mint)
		tokens[i].Name = unknownTokenName
	}
	return tokens
}

func shortMint(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return fmt.Sprintf("%s...%s", mint[:4], mint[len(mint)-4:])
}
