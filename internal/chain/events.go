package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Fields carries event attributes. Values are normalized to JSON-safe forms
// (hex strings for addresses and hashes, decimal strings for amounts).
type Fields map[string]interface{}

// Event is a log record emitted by a contract during a transaction.
type Event struct {
	Index        int            `json:"index"`
	Contract     common.Address `json:"contract"`
	ContractName string         `json:"contract_name"`
	Name         string         `json:"name"`
	Fields       Fields         `json:"fields"`
}

// Receipt describes a committed transaction.
type Receipt struct {
	TxHash    common.Hash    `json:"tx_hash"`
	Sequence  uint64         `json:"sequence"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Value     *big.Int       `json:"value"`
	Timestamp uint64         `json:"timestamp"`
	Events    []Event        `json:"events"`
}

// EventsNamed returns the events with the given name, in emission order.
func (r *Receipt) EventsNamed(name string) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// EventSink receives every committed receipt. Sinks run while the runtime is
// still serialized and must not call back into Execute.
type EventSink interface {
	HandleReceipt(ctx context.Context, receipt *Receipt) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, receipt *Receipt) error

func (f SinkFunc) HandleReceipt(ctx context.Context, receipt *Receipt) error {
	return f(ctx, receipt)
}

func normalizeFields(in Fields) Fields {
	out := make(Fields, len(in))
	for k, v := range in {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case common.Address:
		return x.Hex()
	case common.Hash:
		return x.Hex()
	case *big.Int:
		if x == nil {
			return "0"
		}
		return x.String()
	case []common.Hash:
		s := make([]string, len(x))
		for i, h := range x {
			s[i] = h.Hex()
		}
		return s
	case []common.Address:
		s := make([]string, len(x))
		for i, a := range x {
			s[i] = a.Hex()
		}
		return s
	case []*big.Int:
		s := make([]string, len(x))
		for i, n := range x {
			s[i] = normalize(n).(string)
		}
		return s
	case fmt.Stringer:
		return x.String()
	default:
		return v
	}
}
