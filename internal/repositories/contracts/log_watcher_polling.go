package contracts

import (
	"context"
	"math/big"
	"time"

	"github.com/edubounty/edubounty/internal/interfaces"
	"github.com/edubounty/edubounty/internal/lib"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type LogFilterer interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

type LogWatcherPolling struct {
	// config
	maxReconnects int
	pollInterval  time.Duration

	// deps
	client LogFilterer
	log    interfaces.ILogger
}

func NewLogWatcherPolling(client LogFilterer, pollInterval time.Duration, maxReconnects int, log interfaces.ILogger) *LogWatcherPolling {
	if maxReconnects < 1 {
		maxReconnects = 1
	}
	return &LogWatcherPolling{
		client:        client,
		pollInterval:  pollInterval,
		maxReconnects: maxReconnects,
		log:           log,
	}
}

// Watch polls logs of contractAddr starting from fromBlock, or from the current head if nil,
// and emits the mapped events in chain order
func (w *LogWatcherPolling) Watch(ctx context.Context, contractAddr common.Address, mapper EventMapper, fromBlock *big.Int) (*lib.Subscription, error) {
	if fromBlock == nil {
		head, err := w.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, lib.ClassifyError(err)
		}
		fromBlock = head.Number
	}
	nextBlock := new(big.Int).Set(fromBlock)

	sink := make(chan interface{})
	return lib.NewSubscription(func(quit <-chan struct{}) error {
		defer close(sink)

		for {
			head, err := w.headRetry(ctx)
			if err != nil {
				return err
			}

			if head.Number.Cmp(nextBlock) >= 0 {
				query := ethereum.FilterQuery{
					Addresses: []common.Address{contractAddr},
					FromBlock: nextBlock,
					ToBlock:   head.Number,
				}
				logs, err := w.filterLogsRetry(ctx, query)
				if err != nil {
					return err
				}

				for _, log := range logs {
					if log.Removed {
						continue
					}
					event, err := mapper(log)
					if err != nil {
						return err // mapper error, retry won't help
					}
					if event == nil {
						continue
					}

					select {
					case <-quit:
						return nil
					case <-ctx.Done():
						return ctx.Err()
					case sink <- event:
					}
				}

				nextBlock = new(big.Int).Add(head.Number, big.NewInt(1))
			}

			select {
			case <-quit:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.pollInterval):
			}
		}
	}, sink), nil
}

func (w *LogWatcherPolling) headRetry(ctx context.Context) (*types.Header, error) {
	var lastErr error

	for attempts := 0; attempts < w.maxReconnects; attempts++ {
		head, err := w.client.HeaderByNumber(ctx, nil)
		if err != nil {
			lastErr = err
			continue
		}
		if attempts > 0 {
			w.log.Warnf("head query recovered after error: %s", lastErr)
		}
		return head, nil
	}

	return nil, lib.ClassifyError(lastErr)
}

func (w *LogWatcherPolling) filterLogsRetry(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var lastErr error

	for attempts := 0; attempts < w.maxReconnects; attempts++ {
		logs, err := w.client.FilterLogs(ctx, query)
		if err != nil {
			lastErr = err
			continue
		}
		if attempts > 0 {
			w.log.Warnf("subscription reconnected due to error: %s", lastErr)
		}

		return logs, nil
	}

	return nil, lib.ClassifyError(lastErr)
}
