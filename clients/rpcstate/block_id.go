package rpcstate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/NethermindEth/starknet-replay/core/felt"
)

type blockIDKind uint8

const (
	latest blockIDKind = iota
	pending
	byNumber
	byHash
)

// BlockID selects the block a query is answered against.
type BlockID struct {
	kind   blockIDKind
	number uint64
	hash   felt.Felt
}

func Latest() BlockID {
	return BlockID{kind: latest}
}

func Pending() BlockID {
	return BlockID{kind: pending}
}

func BlockNumber(number uint64) BlockID {
	return BlockID{kind: byNumber, number: number}
}

func BlockHash(hash *felt.Felt) BlockID {
	return BlockID{kind: byHash, hash: *hash}
}

// ParseBlockID accepts "latest", "pending", a decimal block number or a hex block hash.
func ParseBlockID(s string) (BlockID, error) {
	switch {
	case s == "latest":
		return Latest(), nil
	case s == "pending":
		return Pending(), nil
	case strings.HasPrefix(s, "0x"):
		hash, err := felt.NewFromHex(s)
		if err != nil {
			return BlockID{}, fmt.Errorf("block hash: %w", err)
		}
		return BlockHash(hash), nil
	default:
		number, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return BlockID{}, fmt.Errorf("block number: %w", err)
		}
		return BlockNumber(number), nil
	}
}

// Cacheable reports whether the block is pinned. Answers for latest and
// pending change over time and are never cached.
func (b BlockID) Cacheable() bool {
	return b.kind == byNumber || b.kind == byHash
}

func (b BlockID) Number() (uint64, bool) {
	return b.number, b.kind == byNumber
}

func (b BlockID) String() string {
	switch b.kind {
	case pending:
		return "pending"
	case byNumber:
		return "number:" + strconv.FormatUint(b.number, 10)
	case byHash:
		return "hash:" + b.hash.String()
	default:
		return "latest"
	}
}

func (b BlockID) MarshalJSON() ([]byte, error) {
	switch b.kind {
	case pending:
		return json.Marshal("pending")
	case byNumber:
		return json.Marshal(struct {
			Number uint64 `json:"block_number"`
		}{b.number})
	case byHash:
		return json.Marshal(struct {
			Hash felt.Felt `json:"block_hash"`
		}{b.hash})
	default:
		return json.Marshal("latest")
	}
}
