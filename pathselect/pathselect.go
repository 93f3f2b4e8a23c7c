// Package pathselect chooses the three relays used for one circuit.
// Per §4.3, selection is a uniform random sample of size 3 without
// replacement from the directory's node list — no weighting, no
// subnet diversity policy.
package pathselect

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/JGiraldo29/giralnet/descriptor"
	"github.com/JGiraldo29/giralnet/errs"
)

// SelectPath draws 3 distinct nodes uniformly at random from nodes, in
// circuit order [entry, middle, exit]. Refuses with a
// *errs.CircuitError wrapping errs.ErrInsufficientNodes if fewer than
// 3 nodes are available (§4.3, §6 exit codes).
func SelectPath(nodes []descriptor.NodeInfo) ([]descriptor.NodeInfo, error) {
	if len(nodes) < 3 {
		return nil, &errs.CircuitError{Detail: fmt.Sprintf("only %d nodes available", len(nodes)), Cause: errs.ErrInsufficientNodes}
	}

	pool := make([]descriptor.NodeInfo, len(nodes))
	copy(pool, nodes)

	selected := make([]descriptor.NodeInfo, 0, 3)
	for i := 0; i < 3; i++ {
		idx, err := uniformIndex(len(pool))
		if err != nil {
			return nil, fmt.Errorf("select path: %w", err)
		}
		selected = append(selected, pool[idx])
		pool[idx] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
	}
	return selected, nil
}

// uniformIndex returns a uniformly random index in [0, n) using the
// platform CSPRNG, avoiding modulo bias.
func uniformIndex(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("uniformIndex: n must be positive, got %d", n)
	}
	max := big.NewInt(int64(n))
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return 0, fmt.Errorf("crypto/rand: %w", err)
	}
	return int(v.Int64()), nil
}
