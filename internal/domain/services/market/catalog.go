package market

import (
	"github.com/stockline/stockline_service/internal/domain/entities"
)

// Catalog returns a copy of the static asset list for source. Unknown
// sources fall back to the stock list.
func Catalog(source entities.DataSource) []entities.Asset {
	var assets []entities.Asset
	if source == entities.DataSourceCrypto {
		assets = entities.CryptoAssets
	} else {
		assets = entities.StockAssets
	}
	out := make([]entities.Asset, len(assets))
	copy(out, assets)
	return out
}

// Addresses lists the mints of a catalog in display order.
func Addresses(source entities.DataSource) []string {
	assets := Catalog(source)
	addresses := make([]string, len(assets))
	for i, asset := range assets {
		addresses[i] = asset.Address
	}
	return addresses
}

// AllAddresses lists every catalog mint, stocks first.
func AllAddresses() []string {
	return append(Addresses(entities.DataSourceStocks), Addresses(entities.DataSourceCrypto)...)
}

// MergeOntoCatalog overlays live figures onto the static list. Figures with a
// zero price keep the static values.
func MergeOntoCatalog(source entities.DataSource, data map[string]entities.TokenData) []entities.Asset {
	assets := Catalog(source)
	for i := range assets {
		live, ok := data[assets[i].Address]
		if !ok || live.Price <= 0 {
			continue
		}
		assets[i].Price = live.Price
		if live.MarketCap > 0 {
			assets[i].MarketCap = live.MarketCap
		}
		if live.Volume24h > 0 {
			assets[i].Volume24h = live.Volume24h
		}
		assets[i].Change24h = live.Change24h
	}
	return assets
}

// LookupStock finds an xStock by mint.
func LookupStock(address string) (entities.Asset, bool) {
	for _, asset := range entities.StockAssets {
		if asset.Address == address {
			return asset, true
		}
	}
	return entities.Asset{}, false
}

// Lookup finds any catalog asset by mint.
func Lookup(address string) (entities.Asset, bool) {
	if asset, ok := LookupStock(address); ok {
		return asset, true
	}
	for _, asset := range entities.CryptoAssets {
		if asset.Address == address {
			return asset, true
		}
	}
	return entities.Asset{}, false
}
