package domain

import (
	"time"
)

// AssetRecord is the local snapshot of a catalog asset
type AssetRecord struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	Symbol         string    `json:"symbol" gorm:"index"`
	Name           string    `json:"name"`
	IconURL        string    `json:"icon_url"`
	IconPath       string    `json:"icon_path"`       // Local resized icon
	ReferencePrice string    `json:"reference_price"` // Decimal string
	CatalogRank    int       `json:"catalog_rank"`    // Position in the catalog fetch
	LastSyncedAt   time.Time `json:"last_synced_at"`  // Last icon sync time
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AppConfig represents user-specific configuration (Key-Value)
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
