//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package network

import (
	"bytes"
	"sync"
	"testing"

	"github.com/markkurossi/arithmpc/circuit"
	"github.com/markkurossi/arithmpc/commitment"
	"github.com/markkurossi/arithmpc/field"
	"github.com/markkurossi/arithmpc/share"
	"github.com/markkurossi/mpc/p2p"
)

func pairedSecureConns(t *testing.T) (*SecureConn, *SecureConn) {
	t.Helper()
	aConn, bConn := p2p.Pipe()
	secret := []byte("a shared secret established out of band")
	a := NewSecureConn(aConn, secret, true)
	b := NewSecureConn(bConn, secret, false)
	return a, b
}

func TestSecureConnRoundTrip(t *testing.T) {
	a, b := pairedSecureConns(t)

	want := []byte("hello over an authenticated channel")
	var wg sync.WaitGroup
	var sendErr error
	wg.Go(func() { sendErr = a.SendFrame(want) })

	got, err := b.ReceiveFrame()
	wg.Wait()

	if sendErr != nil {
		t.Fatalf("SendFrame: %v", sendErr)
	}
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReceiveFrame = %q, want %q", got, want)
	}
}

// Two parties deriving opposite send/recv keys from the same secret
// must disagree if either claims to be the initiator: sending with a
// swapped key must fail authentication rather than decrypt to garbage.
func TestSecureConnWrongKeyFailsAuthentication(t *testing.T) {
	aConn, bConn := p2p.Pipe()
	secret := []byte("a shared secret established out of band")
	a := NewSecureConn(aConn, secret, true)
	wrong := NewSecureConn(bConn, secret, true) // should be false

	var wg sync.WaitGroup
	wg.Go(func() { a.SendFrame([]byte("payload")) })

	_, err := wrong.ReceiveFrame()
	wg.Wait()
	if err == nil {
		t.Fatal("expected frame authentication to fail with mismatched roles")
	}
}

func TestSecureConnSequenceAdvances(t *testing.T) {
	a, b := pairedSecureConns(t)

	for i := 0; i < 5; i++ {
		want := []byte{byte(i), byte(i + 1), byte(i + 2)}
		var wg sync.WaitGroup
		wg.Go(func() { a.SendFrame(want) })
		got, err := b.ReceiveFrame()
		wg.Wait()
		if err != nil {
			t.Fatalf("frame %d: ReceiveFrame: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d: got %v, want %v", i, got, want)
		}
	}
}

func sampleMessage() Message {
	return Message{
		Kind:  KindOpenShare,
		Cid:   circuit.CirId("node-7"),
		Share: share.Share{S: field.FromUint64(11), M: field.FromUint64(22)},
		Elem:  field.FromUint64(33),
		Hash:  commitment.Hash{1, 2, 3},
		Proof: commitment.Proof{
			Hash:  commitment.Hash{4, 5, 6},
			Value: field.FromUint64(44),
			Salt:  [commitment.SaltLen]byte{7, 8, 9},
		},
		Payload: []byte("attestation frame"),
	}
}

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	want := sampleMessage()
	buf := encodeMessage(want)

	got, err := decodeMessage(buf)
	if err != nil {
		t.Fatalf("decodeMessage: %v", err)
	}
	if got.Kind != want.Kind || got.Cid != want.Cid || got.Payload == nil {
		t.Fatalf("decodeMessage = %+v, want %+v", got, want)
	}
	if !got.Share.S.Equal(want.Share.S) || !got.Share.M.Equal(want.Share.M) {
		t.Errorf("Share mismatch: got %+v, want %+v", got.Share, want.Share)
	}
	if !got.Elem.Equal(want.Elem) {
		t.Errorf("Elem mismatch: got %v, want %v", got.Elem, want.Elem)
	}
	if got.Hash != want.Hash {
		t.Errorf("Hash mismatch: got %v, want %v", got.Hash, want.Hash)
	}
	if !bytes.Equal(got.Payload, want.Payload) {
		t.Errorf("Payload mismatch: got %q, want %q", got.Payload, want.Payload)
	}
}

func TestDecodeMessageRejectsTruncatedInput(t *testing.T) {
	buf := encodeMessage(sampleMessage())
	if _, err := decodeMessage(buf[:len(buf)-1]); err == nil {
		t.Fatal("expected a truncated wire message to be rejected")
	}
}

func TestSecureNetworkImplementsNetworkOverThreeParties(t *testing.T) {
	const n = 3
	links := make([][]*SecureConn, n)
	for i := range links {
		links[i] = make([]*SecureConn, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			ci, cj := p2p.Pipe()
			secret := []byte("shared secret for a pair")
			links[i][j] = NewSecureConn(ci, secret, true)
			links[j][i] = NewSecureConn(cj, secret, false)
		}
	}

	nets := make([]Network, n)
	for i := 0; i < n; i++ {
		nets[i] = NewSecureNetwork(i, links[i])
	}

	msg := Message{Kind: KindOpenShare, Cid: circuit.CirId("bcast"), Share: share.Share{S: field.FromUint64(1)}}
	if err := nets[0].Broadcast(msg); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	for i := 0; i < n; i++ {
		env, ok := nets[i].Receive()
		if !ok {
			t.Fatalf("party %d: Receive closed unexpectedly", i)
		}
		if env.From != 0 || env.Msg.Cid != msg.Cid {
			t.Errorf("party %d: Receive = %+v", i, env)
		}
	}

	unicast := Message{Kind: KindOpenShare, Cid: circuit.CirId("unicast"), Share: share.Share{S: field.FromUint64(2)}}
	if err := nets[1].SendTo(2, unicast); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	env, ok := nets[2].Receive()
	if !ok || env.From != 1 || env.Msg.Cid != unicast.Cid {
		t.Errorf("party 2: Receive = %+v, ok=%v", env, ok)
	}
}
