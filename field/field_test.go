//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package field

import (
	"math/big"
	"testing"
)

func TestAddSubMul(t *testing.T) {
	a := FromUint64(5)
	b := FromUint64(6)

	if got := a.Add(b).Uint64(); got != 11 {
		t.Errorf("Add: got %v, want 11", got)
	}
	if got := a.Mul(b).Uint64(); got != 30 {
		t.Errorf("Mul: got %v, want 30", got)
	}
	if got := b.Sub(a).Uint64(); got != 1 {
		t.Errorf("Sub: got %v, want 1", got)
	}
}

func TestWraparound(t *testing.T) {
	pMinusOne := New(new(big.Int).Sub(P, big.NewInt(1)))
	sum := pMinusOne.Add(FromUint64(2))
	if sum.Uint64() != 1 {
		t.Errorf("wraparound: got %v, want 1", sum.Uint64())
	}
}

func TestBytesRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 42, 1 << 40} {
		e := FromUint64(v)
		b := e.Bytes()
		if len(b) != ByteLen {
			t.Fatalf("bad length %v", len(b))
		}
		got := FromBytes(b)
		if !got.Equal(e) {
			t.Errorf("round trip mismatch for %v", v)
		}
		if got.Uint64() != v {
			t.Errorf("Uint64 mismatch: got %v, want %v", got.Uint64(), v)
		}
	}
}

func TestBytesLittleEndian(t *testing.T) {
	e := FromUint64(1)
	b := e.Bytes()
	if b[0] != 1 {
		t.Fatalf("expected low byte set for value 1, got %x", b)
	}
	for i := 1; i < ByteLen; i++ {
		if b[i] != 0 {
			t.Fatalf("expected zero byte at %v, got %x", i, b[i])
		}
	}
}

func TestRandomDistinct(t *testing.T) {
	a, err := Random()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Random()
	if err != nil {
		t.Fatal(err)
	}
	if a.Equal(b) {
		t.Errorf("two random draws collided (astronomically unlikely): %v", a)
	}
}

func TestNewReducesModP(t *testing.T) {
	over := new(big.Int).Add(P, big.NewInt(7))
	e := New(over)
	if e.Uint64() != 7 {
		t.Errorf("New did not reduce mod P: got %v, want 7", e.Uint64())
	}
}
