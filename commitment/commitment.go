//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package commitment implements SHA3-256 hash commitments to field
// elements with a random 32-byte salt, and verification of the
// resulting (hash, element, salt) proofs.
package commitment

import (
	"crypto/rand"
	"errors"

	"github.com/markkurossi/arithmpc/field"
	"golang.org/x/crypto/sha3"
)

// SaltLen is the size of the random salt mixed into a commitment.
const SaltLen = 32

// Hash is a SHA3-256 commitment digest.
type Hash [32]byte

// Proof is a commitment opening: the element and salt that produced a
// Hash, plus the Hash itself so the pair can be checked without
// recomputing it against a remembered commitment.
type Proof struct {
	Hash  Hash
	Value field.Elem
	Salt  [SaltLen]byte
}

var errSaltLen = errors.New("commitment: short random read")

// Commit computes a fresh random salt and returns the commitment hash
// together with a Proof that opens it.
func Commit(v field.Elem) (Proof, error) {
	var salt [SaltLen]byte
	n, err := rand.Read(salt[:])
	if err != nil {
		return Proof{}, err
	}
	if n != SaltLen {
		return Proof{}, errSaltLen
	}
	return Proof{
		Hash:  hash(v, salt),
		Value: v,
		Salt:  salt,
	}, nil
}

// Verify reports whether p.Hash is the SHA3-256 commitment of
// p.Value concatenated with p.Salt.
func Verify(p Proof) bool {
	return hash(p.Value, p.Salt) == p.Hash
}

// VerifyAll reports whether every proof in the slice opens its own
// Hash correctly. The node's MAC audit does not call it; it verifies
// each proof individually against the matching commitment.
func VerifyAll(proofs []Proof) bool {
	for _, p := range proofs {
		if !Verify(p) {
			return false
		}
	}
	return true
}

// ZeroSum reports whether the opened values of a batch of proofs sum
// to zero in Fp. This is the MAC-audit acceptance test: a batch of
// per-party commitment values (spec.md's d_i = alpha_i*opened - m)
// sums to zero in Fp iff the opening they were computed from is
// consistent with every party's MAC share.
func ZeroSum(proofs []Proof) bool {
	sum := field.Zero()
	for _, p := range proofs {
		sum = sum.Add(p.Value)
	}
	return sum.IsZero()
}

func hash(v field.Elem, salt [SaltLen]byte) Hash {
	b := v.Bytes()
	var buf [field.ByteLen + SaltLen]byte
	copy(buf[:field.ByteLen], b[:])
	copy(buf[field.ByteLen:], salt[:])
	return Hash(sha3.Sum256(buf[:]))
}
