//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package circuit

import (
	"errors"
	"testing"

	"github.com/markkurossi/arithmpc/field"
)

func TestDecorateFoldsAdjacentConstants(t *testing.T) {
	p := NewProvider(map[string]int{"v0": 0})
	raw := Bin(Number(2), Number(3), OpAdd)
	n, err := Decorate(raw, p)
	if err != nil {
		t.Fatalf("Decorate: %v", err)
	}
	if n.Kind != KindConstant {
		t.Fatalf("Kind = %v, want KindConstant", n.Kind)
	}
	if !n.Const.Equal(field.FromUint64(5)) {
		t.Errorf("Const = %v, want 5", n.Const)
	}
}

func TestDecorateMulConstHasNoMulOrConstantInSchedule(t *testing.T) {
	// (2+3)*v0 -- after decoration the multiplication has a constant
	// left operand; scheduling must contain exactly one MulConst and
	// one Var, no Mul.
	p := NewProvider(map[string]int{"v0": 0})
	raw := Bin(Bin(Number(2), Number(3), OpAdd), Variable("v0"), OpMul)
	n, err := Decorate(raw, p)
	if err != nil {
		t.Fatalf("Decorate: %v", err)
	}
	if n.Kind != KindMulConst {
		t.Fatalf("Kind = %v, want KindMulConst", n.Kind)
	}
	if !n.Const.Equal(field.FromUint64(5)) {
		t.Errorf("Const = %v, want 5", n.Const)
	}

	sched := n.IntoOrdered()
	var nVar, nMulConst, nMul int
	for _, op := range sched {
		switch op.Kind {
		case OpKindVar:
			nVar++
		case OpKindMulConst:
			nMulConst++
		case OpKindMul:
			nMul++
		}
	}
	if nVar != 1 || nMulConst != 1 || nMul != 0 {
		t.Errorf("schedule has %d Var, %d MulConst, %d Mul; want 1, 1, 0", nVar, nMulConst, nMul)
	}
	if len(n.MulIds()) != 0 {
		t.Errorf("MulIds() = %v, want none", n.MulIds())
	}
}

func TestDecorateRejectsSubAndDiv(t *testing.T) {
	for _, op := range []BinOp{OpSub, OpDiv} {
		p := NewProvider(map[string]int{})
		_, err := Decorate(Bin(Number(1), Number(2), op), p)
		var decErr *DecorationError
		if err == nil {
			t.Errorf("op %v: expected a DecorationError, got nil", op)
		} else if !errors.As(err, &decErr) {
			t.Errorf("op %v: error %v is not a *DecorationError", op, err)
		}
	}
}

func TestDecorateRejectsOrphanedVariable(t *testing.T) {
	p := NewProvider(map[string]int{"v0": 0})
	_, err := Decorate(Variable("ghost"), p)
	if err == nil {
		t.Fatal("expected an error for an orphaned variable")
	}
}

func TestIntoOrderedOperandsPrecedeUse(t *testing.T) {
	// v0 * v1 + v2
	p := NewProvider(map[string]int{"v0": 0, "v1": 1, "v2": 2})
	raw := Bin(Bin(Variable("v0"), Variable("v1"), OpMul), Variable("v2"), OpAdd)
	n, err := Decorate(raw, p)
	if err != nil {
		t.Fatalf("Decorate: %v", err)
	}
	sched := n.IntoOrdered()

	pos := make(map[CirId]int)
	for i, op := range sched {
		pos[op.Id] = i
	}
	for _, op := range sched {
		for _, dep := range []CirId{op.ChildId, op.LeftId, op.RightId} {
			if dep == "" {
				continue
			}
			if pos[dep] >= pos[op.Id] {
				t.Errorf("operand %v of %v does not precede its use", dep, op.Id)
			}
		}
	}
}

func TestSelfVarIdsFiltersByOwner(t *testing.T) {
	p := NewProvider(map[string]int{"v0": 0, "v1": 1})
	raw := Bin(Variable("v0"), Variable("v1"), OpMul)
	n, err := Decorate(raw, p)
	if err != nil {
		t.Fatalf("Decorate: %v", err)
	}
	owner0 := 0
	refs := n.SelfVarIds(&owner0)
	if len(refs) != 1 || refs[0].Name != "v0" {
		t.Errorf("SelfVarIds(0) = %+v, want one ref to v0", refs)
	}
	all := n.SelfVarIds(nil)
	if len(all) != 2 {
		t.Errorf("SelfVarIds(nil) = %+v, want both variables", all)
	}
}
