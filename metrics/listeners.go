package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/NethermindEth/starknet-replay/clients/rpcstate"
	"github.com/NethermindEth/starknet-replay/db"
	"github.com/NethermindEth/starknet-replay/replay"
	"github.com/NethermindEth/starknet-replay/transaction"
	"github.com/prometheus/client_golang/prometheus"
)

func NewDBListener(reg prometheus.Registerer) db.EventListener {
	latencies := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "db",
		Name:      "latency",
		Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
	}, []string{"op"})
	bytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "db",
		Name:      "bytes",
	}, []string{"op"})
	reg.MustRegister(latencies, bytes)
	return &db.SelectiveListener{
		OnIOCb: func(op db.Op, size int, took time.Duration) {
			latencies.WithLabelValues(op.String()).Observe(took.Seconds())
			if size > 0 {
				bytes.WithLabelValues(op.String()).Add(float64(size))
			}
		},
	}
}

// callStatus labels a node response by how the client treats it.
func callStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var callErr *rpcstate.CallError
	switch {
	case !errors.As(err, &callErr):
		return "error"
	case callErr.NotFound():
		return "not_found"
	case callErr.Transient:
		return "transient"
	default:
		return strconv.Itoa(callErr.Code)
	}
}

func NewRPCListener(reg prometheus.Registerer) rpcstate.EventListener {
	requestLatencies := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rpc",
		Subsystem: "client",
		Name:      "request_latency",
	}, []string{"method", "status"})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpc",
		Subsystem: "cache",
		Name:      "lookups",
	}, []string{"method", "outcome"})
	reg.MustRegister(requestLatencies, cacheLookups)
	return &rpcstate.SelectiveListener{
		OnResponseCb: func(method string, err error, took time.Duration) {
			requestLatencies.WithLabelValues(method, callStatus(err)).Observe(took.Seconds())
		},
		OnCacheLookupCb: func(method string, outcome rpcstate.CacheOutcome) {
			cacheLookups.WithLabelValues(method, string(outcome)).Inc()
		},
	}
}

func NewReplayListener(reg prometheus.Registerer) replay.EventListener {
	txLatencies := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "replay",
		Subsystem: "transaction",
		Name:      "latency",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"type", "disposition"})
	blockLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "replay",
		Subsystem: "block",
		Name:      "latency",
	})
	blocks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replay",
		Name:      "blocks",
	}, []string{"outcome"})
	steps := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "replay",
		Name:      "steps",
	})
	reg.MustRegister(txLatencies, blockLatency, blocks, steps)
	return &replay.SelectiveListener{
		OnTransactionCb: func(info *transaction.ExecutionInfo, took time.Duration) {
			txLatencies.WithLabelValues(info.Type.String(), info.Disposition.String()).Observe(took.Seconds())
			steps.Add(float64(info.Resources.Steps))
		},
		OnBlockCb: func(result *replay.BlockResult, took time.Duration) {
			switch {
			case result.Err != nil:
				blocks.WithLabelValues("error").Inc()
				return
			case result.Divergence != nil:
				blocks.WithLabelValues("divergence").Inc()
			default:
				blocks.WithLabelValues("match").Inc()
			}
			blockLatency.Observe(took.Seconds())
		},
	}
}
