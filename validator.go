package v4vkit

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/btcsuite/btcd/btcec"
)

// nodePubkeyLen is the hex length of a compressed secp256k1 public key.
const nodePubkeyLen = 66

// ValidateBlock checks one raw value block. Every rule runs; an error
// makes the block invalid, a warning does not.
func ValidateBlock(raw RawValueBlock) BlockReport {
	report := BlockReport{
		IsValid:      true,
		Errors:       []string{},
		Warnings:     []string{},
		Recipients:   []ValueRecipient{},
		EpisodeIndex: -1,
	}

	if raw.Type != BlockTypeLightning {
		report.fail("Value block type should be 'lightning'")
	}

	if raw.Method != MethodSplit {
		report.fail("Value block method should be 'split'")
	}

	block := raw.ValueBlock("")
	report.Block = block

	if _, ok := block.SuggestedAmount(); !ok {
		report.warn("Missing or invalid suggested amount")
	}

	if len(block.Recipients) == 0 {
		report.fail("No value recipients found")
		return report
	}

	var totalSplit uint64
	saturated := false
	for i, r := range block.Recipients {
		validateRecipient(&report, i+1, r)
		report.Recipients = append(report.Recipients, r)

		var carry uint64
		totalSplit, carry = bits.Add64(totalSplit,
			uint64(r.SplitValue()), 0)
		if carry != 0 {
			saturated = true
		}
	}

	switch {
	case saturated:
		report.warn("Total split should be 100%%, got more than %d%%",
			uint64(math.MaxUint64))

	case totalSplit != 100:
		report.warn("Total split should be 100%%, got %d%%", totalSplit)
	}

	return report
}

func validateRecipient(report *BlockReport, n int, r ValueRecipient) {
	if r.Name == "" {
		report.fail("Recipient %d: Missing name", n)
	}

	if r.Type != RecipientLightning && r.Type != RecipientNode {
		report.fail("Recipient %d: Invalid type (should be 'lightning' "+
			"or 'node')", n)
	}

	if r.Address == "" {
		report.fail("Recipient %d: Missing address", n)
		return
	}

	switch r.Type {
	case RecipientNode:
		validateNodePubkey(report, n, r.Address)

	case RecipientLightning:
		if !IsLightningAddress(r.Address) {
			report.fail("Recipient %d: Invalid Lightning address "+
				"format", n)
		}
	}
}

func validateNodePubkey(report *BlockReport, n int, pubkey string) {
	shapeOK := true
	if len(pubkey) != nodePubkeyLen {
		report.fail("Recipient %d: Invalid node pubkey length", n)
		shapeOK = false
	}

	if !strings.HasPrefix(pubkey, "02") && !strings.HasPrefix(pubkey, "03") {
		report.fail("Recipient %d: Invalid node pubkey format", n)
		shapeOK = false
	}

	if !shapeOK {
		return
	}

	raw, err := hex.DecodeString(pubkey)
	if err != nil {
		report.fail("Recipient %d: Invalid node pubkey encoding", n)
		return
	}

	if _, err := btcec.ParsePubKey(raw, btcec.S256()); err != nil {
		report.warn("Recipient %d: Node pubkey is not a valid "+
			"secp256k1 point", n)
	}
}

// IsLightningAddress reports whether addr has the user@domain shape.
func IsLightningAddress(addr string) bool {
	parts := strings.Split(addr, "@")

	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}

// IsNodePubkey reports whether key is a 66 character hex compressed
// public key with a 02 or 03 prefix.
func IsNodePubkey(key string) bool {
	if len(key) != nodePubkeyLen {
		return false
	}
	if !strings.HasPrefix(key, "02") && !strings.HasPrefix(key, "03") {
		return false
	}
	_, err := hex.DecodeString(key)

	return err == nil
}

func (r *BlockReport) fail(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.IsValid = false
}

func (r *BlockReport) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
