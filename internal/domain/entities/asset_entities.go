package entities

// AssetCategory distinguishes tokenized equities from crypto assets.
type AssetCategory string

const (
	AssetCategoryStock  AssetCategory = "stock"
	AssetCategoryCrypto AssetCategory = "crypto"
)

// DataSource selects which static list progressive results are merged onto.
type DataSource string

const (
	DataSourceStocks DataSource = "stocks"
	DataSourceCrypto DataSource = "crypto"
)

// IsValid reports whether the source names a known catalog.
func (d DataSource) IsValid() bool {
	return d == DataSourceStocks || d == DataSourceCrypto
}

// Asset is a catalog row with its last-known market figures.
type Asset struct {
	Symbol    string        `json:"symbol"`
	Name      string        `json:"name"`
	Address   string        `json:"address"`
	Category  AssetCategory `json:"category"`
	Price     float64       `json:"price"`
	MarketCap float64       `json:"marketCap"`
	Volume24h float64       `json:"volume24h"`
	Change24h float64       `json:"change24h"`
	LogoURI   string        `json:"logoURI,omitempty"`
}

const (
	SOLMint  = "So11111111111111111111111111111111111111112"
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	JUPMint  = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"
	BONKMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	WIFMint  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
	RAYMint  = "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"
)

// CryptoAddresses holds the mints whose market cap is price * supply. Every
// other mint is treated as an xStock and scaled down by 1000.
var CryptoAddresses = map[string]bool{
	SOLMint:  true,
	USDCMint: true,
	USDTMint: true,
	JUPMint:  true,
	BONKMint: true,
	WIFMint:  true,
	RAYMint:  true,
}

// IsCryptoAddress reports whether mint belongs to the crypto set.
func IsCryptoAddress(mint string) bool {
	return CryptoAddresses[mint]
}

// StockAssets is the static xStocks catalog with fallback figures.
var StockAssets = []Asset{
	{Symbol: "AAPLx", Name: "Apple xStock", Address: "XsbEhLAtcf6HdfpFZ5xEMdqW8nfAvcsP5bdudRLJzJp", Category: AssetCategoryStock, Price: 229.35, MarketCap: 3.41e12, Volume24h: 5.2e7, Change24h: 0.42},
	{Symbol: "TSLAx", Name: "Tesla xStock", Address: "XsDoVfqeBukxuZHWhdvWHBhgEHjGNst4MLodqsJHzoB", Category: AssetCategoryStock, Price: 338.53, MarketCap: 1.09e12, Volume24h: 9.6e7, Change24h: -1.18},
	{Symbol: "NVDAx", Name: "NVIDIA xStock", Address: "Xsc9qvGR1efVDFGLrVsmkzv3qi45LTBjeUKSPmx9qEh", Category: AssetCategoryStock, Price: 177.82, MarketCap: 4.33e12, Volume24h: 1.8e8, Change24h: 1.05},
	{Symbol: "SPYx", Name: "SP500 xStock", Address: "XsoCS1TfEyfFhfvj8EtZ528L3CaKBDBRqRapnBbDF2W", Category: AssetCategoryStock, Price: 645.05, MarketCap: 5.9e11, Volume24h: 6.1e7, Change24h: 0.21},
	{Symbol: "MSFTx", Name: "Microsoft xStock", Address: "XspzcW1PRtgf6Wj92HCiZdjzKCyFekVD8P5Ueh3dRMX", Category: AssetCategoryStock, Price: 505.12, MarketCap: 3.75e12, Volume24h: 2.3e7, Change24h: -0.33},
	{Symbol: "GOOGLx", Name: "Alphabet xStock", Address: "XsCPL9dNWBMvFtTmwcCA5v3xWPSMEBCszbQdiLLq6aN", Category: AssetCategoryStock, Price: 211.64, MarketCap: 2.56e12, Volume24h: 3.0e7, Change24h: 0.87},
}

// CryptoAssets is the static crypto catalog with fallback figures.
var CryptoAssets = []Asset{
	{Symbol: "SOL", Name: "Solana", Address: SOLMint, Category: AssetCategoryCrypto, Price: 150, MarketCap: 8.1e10, Volume24h: 3.2e9, Change24h: 0},
	{Symbol: "USDC", Name: "USD Coin", Address: USDCMint, Category: AssetCategoryCrypto, Price: 1, MarketCap: 7.3e10, Volume24h: 6.5e9, Change24h: 0},
	{Symbol: "USDT", Name: "Tether", Address: USDTMint, Category: AssetCategoryCrypto, Price: 1, MarketCap: 1.6e11, Volume24h: 4.1e10, Change24h: 0},
	{Symbol: "JUP", Name: "Jupiter", Address: JUPMint, Category: AssetCategoryCrypto, Price: 0.48, MarketCap: 1.5e9, Volume24h: 6.0e7, Change24h: 0},
	{Symbol: "BONK", Name: "Bonk", Address: BONKMint, Category: AssetCategoryCrypto, Price: 0.000021, MarketCap: 1.7e9, Volume24h: 1.2e8, Change24h: 0},
	{Symbol: "WIF", Name: "dogwifhat", Address: WIFMint, Category: AssetCategoryCrypto, Price: 0.85, MarketCap: 8.5e8, Volume24h: 2.4e8, Change24h: 0},
	{Symbol: "RAY", Name: "Raydium", Address: RAYMint, Category: AssetCategoryCrypto, Price: 2.9, MarketCap: 7.8e8, Volume24h: 4.5e7, Change24h: 0},
}

// KnownToken describes display metadata for a mint held in a wallet.
type KnownToken struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	LogoURI  string `json:"logoURI,omitempty"`
}

// KnownTokens is the metadata table consulted before the stock catalog.
var KnownTokens = map[string]KnownToken{
	SOLMint:  {Symbol: "SOL", Name: "Solana", Decimals: 9},
	USDCMint: {Symbol: "USDC", Name: "USD Coin", Decimals: 6},
	USDTMint: {Symbol: "USDT", Name: "Tether", Decimals: 6},
	JUPMint:  {Symbol: "JUP", Name: "Jupiter", Decimals: 6},
	BONKMint: {Symbol: "BONK", Name: "Bonk", Decimals: 5},
	WIFMint:  {Symbol: "WIF", Name: "dogwifhat", Decimals: 6},
	RAYMint:  {Symbol: "RAY", Name: "Raydium", Decimals: 6},
}
