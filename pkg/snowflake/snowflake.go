// Package snowflake generates time ordered 63 bit message ids.
//
// Layout: 41 bits of milliseconds since Epoch, 10 bits of node id, 12 bits of
// per-millisecond sequence.
package snowflake

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	nodeBits  = 10
	stepBits  = 12
	nodeMax   = -1 ^ (-1 << nodeBits)
	stepMask  = -1 ^ (-1 << stepBits)
	timeShift = nodeBits + stepBits
	nodeShift = stepBits

	// Epoch is 2024-01-01 00:00:00 UTC in unix milliseconds.
	Epoch int64 = 1704067200000
)

type Node struct {
	mu   sync.Mutex
	last int64
	node int64
	step int64
	now  func() int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.Errorf("node number must be between 0 and %d, got %d", nodeMax, node)
	}
	return &Node{
		node: node,
		now:  func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Generate returns the next id. Ids from one node are strictly increasing even
// if the wall clock steps backwards.
func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if now < n.last {
		now = n.last
	}

	if now == n.last {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			// sequence exhausted for this millisecond
			for now <= n.last {
				now = n.now()
			}
		}
	} else {
		n.step = 0
	}

	n.last = now
	return ((now - Epoch) << timeShift) | (n.node << nodeShift) | n.step
}

// Time extracts the generation time embedded in id.
func Time(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + Epoch).UTC()
}

// NodeOf extracts the node number embedded in id.
func NodeOf(id int64) int64 {
	return (id >> nodeShift) & nodeMax
}
