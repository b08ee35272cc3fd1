package registry

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Asset struct {
	ID        uint64          `json:"id"`
	Owner     common.Address  `json:"owner"`
	Approved  *common.Address `json:"approved,omitempty"`
	TokenURI  string          `json:"token_uri"`
	CreatedAt time.Time       `json:"created_at"`
}

type AssetList struct {
	Items []Asset `json:"items"`
	Total int64   `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
}
