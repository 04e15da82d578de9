//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package commitment

import (
	"testing"

	"github.com/markkurossi/arithmpc/field"
)

func TestCommitVerify(t *testing.T) {
	v := field.FromUint64(17)
	p, err := Commit(v)
	if err != nil {
		t.Fatal(err)
	}
	if !Verify(p) {
		t.Errorf("valid proof failed to verify")
	}
}

func TestVerifyRejectsTamperedValue(t *testing.T) {
	v := field.FromUint64(17)
	p, err := Commit(v)
	if err != nil {
		t.Fatal(err)
	}
	p.Value = field.FromUint64(18)
	if Verify(p) {
		t.Errorf("tampered value verified")
	}
}

func TestVerifyRejectsTamperedSalt(t *testing.T) {
	v := field.FromUint64(17)
	p, err := Commit(v)
	if err != nil {
		t.Fatal(err)
	}
	p.Salt[0] ^= 0xff
	if Verify(p) {
		t.Errorf("tampered salt verified")
	}
}

func TestDistinctSaltsYieldDistinctHashes(t *testing.T) {
	v := field.FromUint64(17)
	p1, err := Commit(v)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := Commit(v)
	if err != nil {
		t.Fatal(err)
	}
	if p1.Hash == p2.Hash {
		t.Errorf("two independent commitments to the same value collided")
	}
}
