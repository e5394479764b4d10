package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AgentBinding maps a globally unique agent name to exactly one address.
// The reverse also holds: an address owns at most one name at a time.
type AgentBinding struct {
	Name         string         `json:"name"`
	Address      common.Address `json:"address"`
	RegisteredAt time.Time      `json:"registered_at"`
}
