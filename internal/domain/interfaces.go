package domain

import (
	"context"
)

// CatalogSource supplies the list of tradable assets
type CatalogSource interface {
	FetchAssets(ctx context.Context, page, perPage int) ([]Asset, error)
}

// StreamDialer opens a connection to the live trade feed
type StreamDialer interface {
	Dial(ctx context.Context) (StreamConn, error)
}

// StreamConn is one live trade feed connection.
// ReadTrade returns ok=false for frames that are not trade events.
type StreamConn interface {
	Subscribe(channels []string, id int) error
	ReadTrade() (trade Trade, ok bool, err error)
	Close() error
}

// KeyValueStore persists independently keyed string slots
type KeyValueStore interface {
	GetValue(key string) (value string, found bool, err error)
	SaveValue(key, value string) error
}

// AssetRepository keeps the local snapshot of the catalog
type AssetRepository interface {
	UpsertAssets(records []AssetRecord) error
	GetAllAssets() ([]AssetRecord, error)
}
