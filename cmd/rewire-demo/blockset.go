// Completion: 100% - synthetic block set loader complete
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xyproto/rewire/address"
	"github.com/xyproto/rewire/block"
	"github.com/xyproto/rewire/group"
	"github.com/xyproto/rewire/layout"
)

// blockSetFile is the on-disk JSON shape of a synthetic input: a bag of
// (original, derived, status) triples plus optional grouping collaborators,
// mirroring the block-recovery contract the layout engine consumes.
type blockSetFile struct {
	Blocks []struct {
		Addr         uint64 `json:"addr"`
		OriginalSize int    `json:"original_size"`
		NewSize      int    `json:"new_size"`
		Status       string `json:"status"`
		Symbolic     uint64 `json:"symbolic"`
	} `json:"blocks"`
	Loops [][]uint64          `json:"loops"`
	Funcs map[string][]uint64 `json:"funcs"`
}

func loadBlockSet(path string) (layout.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return layout.Input{}, fmt.Errorf("read block set: %w", err)
	}
	var file blockSetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return layout.Input{}, fmt.Errorf("parse block set: %w", err)
	}

	in := layout.Input{}
	for _, b := range file.Blocks {
		status, err := parseStatus(b.Status)
		if err != nil {
			return layout.Input{}, err
		}
		addr := address.NewConcrete(address.SpaceOriginalText, b.Addr)
		pair := block.Pair{
			Original: block.Concrete{Addr: addr, Instructions: []block.Instruction{{Mnemonic: "orig", Size: b.OriginalSize}}},
			Status:   status,
		}
		if status == block.Modified {
			body := b.NewSize - 1
			if body < 0 {
				body = 0
			}
			pair.Derived = block.Symbolic{
				Addr:         address.Symbolic(b.Symbolic),
				Instructions: []block.Instruction{{Mnemonic: "body", Size: body}, {Bytes: []byte{0xC3}, Mnemonic: "ret", Size: 1}},
				OriginalAddr: addr,
			}
		}
		in.Pairs = append(in.Pairs, pair)
	}

	for _, loop := range file.Loops {
		component := make(group.WTOComponent, len(loop))
		for i, a := range loop {
			component[i] = address.NewConcrete(address.SpaceOriginalText, a)
		}
		in.WTO = append(in.WTO, component)
	}

	if len(file.Funcs) > 0 {
		in.FunctionMap = make(group.FunctionMap, len(file.Funcs))
		for entryStr, members := range file.Funcs {
			var entryAddr uint64
			if _, err := fmt.Sscanf(entryStr, "0x%x", &entryAddr); err != nil {
				return layout.Input{}, fmt.Errorf("parse function entry %q: %w", entryStr, err)
			}
			entry := address.NewConcrete(address.SpaceOriginalText, entryAddr)
			addrs := make([]address.Concrete, len(members))
			for i, a := range members {
				addrs[i] = address.NewConcrete(address.SpaceOriginalText, a)
			}
			in.FunctionMap[entry] = addrs
		}
	}

	return in, nil
}

func parseStatus(s string) (block.Status, error) {
	switch s {
	case "unmodified":
		return block.Unmodified, nil
	case "modified":
		return block.Modified, nil
	case "immutable":
		return block.Immutable, nil
	case "subsumed":
		return block.Subsumed, nil
	default:
		return 0, fmt.Errorf("unknown block status %q", s)
	}
}
