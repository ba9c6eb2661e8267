package replay

import (
	"time"

	"github.com/NethermindEth/starknet-replay/transaction"
)

type EventListener interface {
	OnTransaction(info *transaction.ExecutionInfo, took time.Duration)
	OnBlock(result *BlockResult, took time.Duration)
}

type SelectiveListener struct {
	OnTransactionCb func(info *transaction.ExecutionInfo, took time.Duration)
	OnBlockCb       func(result *BlockResult, took time.Duration)
}

func (l *SelectiveListener) OnTransaction(info *transaction.ExecutionInfo, took time.Duration) {
	if l.OnTransactionCb != nil {
		l.OnTransactionCb(info, took)
	}
}

func (l *SelectiveListener) OnBlock(result *BlockResult, took time.Duration) {
	if l.OnBlockCb != nil {
		l.OnBlockCb(result, took)
	}
}
