//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package driver implements the external RunNodes entry point
// (spec.md section 6): given a participant count, each party's
// private inputs, and a raw expression, it decorates and schedules
// the expression once, then starts one node task and one party task
// per participant plus one dealer task, wires them together with the
// in-process network and preprocessing channels, and collects every
// party's reconstructed result. RunAttested runs the same evaluation
// and then, while the network and party tasks are still live, layers
// a threshold-ECDSA attestation of the result on top (see package
// attest).
package driver

import (
	"encoding/binary"
	"sync"

	"github.com/bnb-chain/tss-lib/v2/ecdsa/keygen"
	"golang.org/x/crypto/sha3"

	"github.com/markkurossi/arithmpc/attest"
	"github.com/markkurossi/arithmpc/circuit"
	"github.com/markkurossi/arithmpc/dealer"
	"github.com/markkurossi/arithmpc/internal/queue"
	"github.com/markkurossi/arithmpc/network"
	"github.com/markkurossi/arithmpc/node"
	"github.com/markkurossi/arithmpc/party"
)

// evaluation holds every task and channel started by evaluate, still
// live, so that a caller can do more with them (attestResult) before
// calling close.
type evaluation struct {
	nets         []network.Network
	parties      []*party.Party
	nodeCmds     []*queue.Queue[node.Command]
	dealerEvents []*queue.Queue[dealer.Event]
	dealerCmds   *queue.Queue[dealer.Command]

	dealerWG *sync.WaitGroup
	partyWG  *sync.WaitGroup

	results []uint64
	errs    []error
}

// evaluate decorates and schedules expr once, then runs the node,
// party, and dealer tasks to completion and returns every result
// alongside the still-open network and still-running party tasks.
// Callers must call close when done with them.
func evaluate(n int, inputs []map[string]uint64, expr *circuit.RawExpression) (*evaluation, error) {
	ownership := make(map[string]int)
	for i, vars := range inputs {
		for name := range vars {
			ownership[name] = i
		}
	}

	provider := circuit.NewProvider(ownership)
	decorated, err := circuit.Decorate(expr, provider)
	if err != nil {
		return nil, err
	}

	sched := decorated.IntoOrdered()
	mulIDs := decorated.MulIds()
	rootID := decorated.CirId()

	d, err := dealer.New(n)
	if err != nil {
		return nil, err
	}

	nets := network.NewChannelNetworks(n)
	dealerCmds := queue.New[dealer.Command]()
	dealerEvents := make([]*queue.Queue[dealer.Event], n)
	nodeCmds := make([]*queue.Queue[node.Command], n)
	nodeEvents := make([]*queue.Queue[node.Event], n)
	parties := make([]*party.Party, n)

	for i := 0; i < n; i++ {
		dealerEvents[i] = queue.New[dealer.Event]()
		nodeCmds[i] = queue.New[node.Command]()
		nodeEvents[i] = queue.New[node.Event]()
		parties[i] = party.New(i, n, nets[i], nodeCmds[i], nodeEvents[i], dealerCmds, dealerEvents[i])
	}

	var dealerWG sync.WaitGroup
	dealerWG.Go(func() { d.Run(dealerCmds, dealerEvents) })

	var partyWG sync.WaitGroup
	for i := 0; i < n; i++ {
		p := parties[i]
		partyWG.Go(func() { p.Run() })
	}

	results := make([]uint64, n)
	errs := make([]error, n)

	var nodeWG sync.WaitGroup
	for i := 0; i < n; i++ {
		owner := i
		selfVars := decorated.SelfVarIds(&owner)
		nd := node.New(i, n, nodeCmds[i], nodeEvents[i], inputs[i])
		nodeWG.Go(func() {
			results[i], errs[i] = nd.Run(sched, mulIDs, selfVars, rootID)
		})
	}
	nodeWG.Wait()

	return &evaluation{
		nets:         nets,
		parties:      parties,
		nodeCmds:     nodeCmds,
		dealerEvents: dealerEvents,
		dealerCmds:   dealerCmds,
		dealerWG:     &dealerWG,
		partyWG:      &partyWG,
		results:      results,
		errs:         errs,
	}, nil
}

// close shuts every task down in the order RunNodes always has: node
// command queues and dealer event queues first (so the party tasks'
// remaining two pump goroutines see end-of-stream), then the network
// (so the third), then the dealer command queue, then waits for the
// dealer and party tasks to return.
func (e *evaluation) close() {
	for i := range e.nodeCmds {
		e.nodeCmds[i].Close()
		e.dealerEvents[i].Close()
	}
	network.Close(e.nets)
	e.dealerCmds.Close()

	e.dealerWG.Wait()
	e.partyWG.Wait()
}

func (e *evaluation) firstErr() error {
	for _, err := range e.errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// RunNodes evaluates expr jointly across n parties. inputs[i] gives
// party i's own private variable values; the index of a map in inputs
// is that party's index in the ownership map derived from it. All
// parties must return the same integer under honest execution.
func RunNodes(n int, inputs []map[string]uint64, expr *circuit.RawExpression) ([]uint64, error) {
	ev, err := evaluate(n, inputs, expr)
	if err != nil {
		return nil, err
	}
	ev.close()

	if err := ev.firstErr(); err != nil {
		return nil, err
	}
	return ev.results, nil
}

// RunAttested evaluates expr exactly as RunNodes does, and then, before
// tearing the network down, runs an N-party threshold-ECDSA keygen and
// has every party sign the SHA3-256 digest of the agreed result (see
// package attest). It returns the shared result and the resulting
// ASN.1 ECDSA signature, verifiable against the keygen's group public
// key by any third party.
func RunAttested(n int, inputs []map[string]uint64, expr *circuit.RawExpression) ([]uint64, []byte, error) {
	ev, err := evaluate(n, inputs, expr)
	if err != nil {
		return nil, nil, err
	}
	if err := ev.firstErr(); err != nil {
		ev.close()
		return nil, nil, err
	}

	sig, attErr := attestResult(ev.nets, ev.parties, ev.results[0])
	ev.close()
	if attErr != nil {
		return nil, nil, attErr
	}
	return ev.results, sig, nil
}

// attestResult runs Keygen once and Sign once across one attest.Peer
// per party, all sharing the party tasks' still-open networks via
// party.Party.AttachAttest, and returns the resulting signature over
// SHA3-256(result). Every honest peer computes the identical
// signature, so the first is representative of all.
func attestResult(nets []network.Network, parties []*party.Party, result uint64) ([]byte, error) {
	n := len(nets)
	peers := make([]*attest.Peer, n)
	for i := 0; i < n; i++ {
		inbox := queue.New[network.Envelope]()
		parties[i].AttachAttest(inbox)
		peers[i] = attest.NewPeer(nets[i], inbox, i, n)
	}

	keys := make([]*keygen.LocalPartySaveData, n)
	keyErrs := make([]error, n)
	var keygenWG sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		keygenWG.Go(func() { keys[i], keyErrs[i] = peers[i].Keygen() })
	}
	keygenWG.Wait()
	for _, err := range keyErrs {
		if err != nil {
			return nil, err
		}
	}

	digest := resultDigest(result)
	sigs := make([][]byte, n)
	sigErrs := make([]error, n)
	var signWG sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		signWG.Go(func() { sigs[i], sigErrs[i] = peers[i].Sign(keys[i], digest) })
	}
	signWG.Wait()
	for _, err := range sigErrs {
		if err != nil {
			return nil, err
		}
	}
	return sigs[0], nil
}

// resultDigest hashes the agreed result the same way attest.Peer.Sign
// expects: a SHA3-256 digest over the result's canonical 8-byte
// big-endian encoding.
func resultDigest(result uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], result)
	sum := sha3.Sum256(buf[:])
	return sum[:]
}
