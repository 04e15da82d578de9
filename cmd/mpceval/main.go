//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// The mpceval command runs the arithmetic MPC engine end to end for a
// single expression, spawning one goroutine per party in-process (via
// driver.RunNodes) and printing the result every party reconstructed.
// With -attest it instead calls driver.RunAttested, which additionally
// runs a threshold-ECDSA ceremony over the result and prints the
// resulting signature. It is the replacement for this repository's
// old cmd/tss and cmd/fs-tool demo programs, wired to the arithmpc
// engine instead.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/markkurossi/arithmpc/circuit"
	"github.com/markkurossi/arithmpc/driver"
)

// config is the on-disk job description: the expression to evaluate,
// JSON-decoded through circuit.RawExpression's Type-discriminated sum
// type, plus one input map per party (by variable name).
type config struct {
	Expression circuit.RawExpression `json:"expression"`
	Inputs     []map[string]uint64   `json:"inputs"`
}

func main() {
	path := flag.String("job", "", "path to a job JSON file")
	attestFlag := flag.Bool("attest", false,
		"after evaluation, run a threshold-ECDSA ceremony attesting the result")
	flag.Parse()

	if len(*path) == 0 {
		log.Fatalf("usage: mpceval -job job.json [-attest]")
	}

	cfg, err := readConfig(*path)
	if err != nil {
		log.Fatalf("could not read job %s: %s", *path, err)
	}

	if *attestFlag {
		results, sig, err := driver.RunAttested(len(cfg.Inputs), cfg.Inputs, &cfg.Expression)
		if err != nil {
			log.Fatalf("evaluation failed: %s", err)
		}
		for i, r := range results {
			fmt.Printf("party %d: result=%d\n", i, r)
		}
		fmt.Printf("attestation: %x\n", sig)
		return
	}

	results, err := driver.RunNodes(len(cfg.Inputs), cfg.Inputs, &cfg.Expression)
	if err != nil {
		log.Fatalf("evaluation failed: %s", err)
	}

	for i, r := range results {
		fmt.Printf("party %d: result=%d\n", i, r)
	}
}

func readConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Inputs) == 0 {
		return nil, fmt.Errorf("job must list at least one party's inputs")
	}
	return &cfg, nil
}
