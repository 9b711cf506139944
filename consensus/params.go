// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package consensus holds the network constants every other subsystem
// consults: epoch length, reward schedule, hardfork switches and the
// proposal window. Nothing here touches the store or the network; it is
// pure parameter data plus the small pieces of arithmetic (reward curve,
// epoch-length adjustment) that are simple functions of those parameters.
package consensus

import (
	"github.com/nervosnetwork/ckb-sub009/types"
)

// ProposalWindow is the {closest, farthest} pair bounding where a committed
// transaction must have been proposed, measured in blocks before the
// commit. A proposal window closes (stops accepting new commits for ids
// proposed at a given height) at tip - closest + 1.
type ProposalWindow struct {
	Closest  uint64
	Farthest uint64
}

// HardforkSwitch names the epoch at which a given behavior change takes
// effect. Epoch numbers in the far future (EpochNumberNever) mean the
// switch is not yet scheduled.
type HardforkSwitch struct {
	// RFCVMVersion1 is the epoch at which newly admitted transactions
	// default to VM version 1 for Data-style scripts.
	RFCVMVersion1 uint64
	// RFCVMVersion2 is the epoch at which newly admitted transactions
	// default to VM version 2.
	RFCVMVersion2 uint64
}

// EpochNumberNever marks a hardfork switch as not scheduled.
const EpochNumberNever = ^uint64(0)

// Params bundles every network constant the chain engine, verifier, script
// VM and transaction pool consult. A Params value is immutable once built
// and is shared by pointer across subsystems (mirroring dagconfig.Params).
type Params struct {
	Name string

	// GenesisBlock is the network's block zero.
	GenesisBlock *types.Block

	// TargetEpochDurationMs is the length in wall-clock milliseconds an
	// epoch should take; EpochLengthFor adjusts epoch Length to
	// track it.
	TargetEpochDurationMs uint64
	// GenesisEpochLength is the number of blocks in the first epoch,
	// before any difficulty-adjustment feedback has occurred.
	GenesisEpochLength uint64
	// MaxEpochLength and MinEpochLength bound how far an epoch-length
	// adjustment may move length in one step.
	MaxEpochLength uint64
	MinEpochLength uint64

	// MaxBlockCycles is the per-block VM cycle ceiling (invariant #4 in
	// spec.md §8).
	MaxBlockCycles types.Cycle
	// MaxBlockBytes is the per-block serialized-size ceiling.
	MaxBlockBytes uint64
	// MaxBlockProposalsLimit caps the number of ProposalShortIds a block
	// may declare.
	MaxBlockProposalsLimit uint64

	// MaxTxVerifyCycles is the per-transaction VM cycle ceiling checked
	// by the verifier and the pool's admission policy.
	MaxTxVerifyCycles types.Cycle

	// CellbaseMaturity is the number of epochs that must elapse before a
	// cellbase output becomes spendable.
	CellbaseMaturity uint64

	// MedianTimeBlockCount is the number of preceding block timestamps
	// averaged (by median) to produce the median-time-past used for
	// since-timestamp locks; spec.md fixes this at 37.
	MedianTimeBlockCount int

	// ProposalWindow bounds where a committed transaction must have been
	// proposed.
	ProposalWindow ProposalWindow

	// MaxUnclesNum bounds how many uncles a block may declare.
	MaxUnclesNum uint64
	// MaxUnclesAge bounds how many blocks back an uncle may still be
	// referenced from.
	MaxUnclesAge uint64

	// PrimaryEpochReward is the fixed block-reward component paid to
	// every epoch's miners before transaction fees, divided evenly across
	// the epoch's blocks.
	PrimaryEpochReward types.Capacity
	// SecondaryEpochReward funds the DAO's deposit interest.
	SecondaryEpochReward types.Capacity

	// Hardforks schedules epoch-triggered behavior switches.
	Hardforks HardforkSwitch

	// MaxFutureTimeMs bounds how far ahead of this node's own clock a
	// candidate block's timestamp may sit before it is rejected outright,
	// mirroring Bitcoin's 2-hour MAX_FUTURE_BLOCK_TIME convention.
	MaxFutureTimeMs uint64
}

// DefaultMainnetParams returns a Params describing a mainnet-shaped
// network. Concrete numeric values mirror spec.md where it fixes one
// (proposal window, median-time count) and otherwise use conservative
// defaults appropriate for a reference implementation.
func DefaultMainnetParams() *Params {
	p := &Params{
		Name:                   "ckb-mainnet",
		TargetEpochDurationMs:  4 * 60 * 60 * 1000, // 4 hours
		GenesisEpochLength:     1000,
		MaxEpochLength:         4 * 1000,
		MinEpochLength:         1000 / 10,
		MaxBlockCycles:         types.Cycle(3_500_000_000),
		MaxBlockBytes:          597_000,
		MaxBlockProposalsLimit: 1_500,
		MaxTxVerifyCycles:      types.Cycle(70_000_000),
		CellbaseMaturity:       4,
		MedianTimeBlockCount:   37,
		ProposalWindow:         ProposalWindow{Closest: 2, Farthest: 10},
		MaxUnclesNum:           2,
		MaxUnclesAge:           6,
		PrimaryEpochReward:     types.Capacity(1_917_808_21) * types.ShannonsPerCKB / 100,
		SecondaryEpochReward:   types.Capacity(613_698_6) * types.ShannonsPerCKB / 100,
		Hardforks: HardforkSwitch{
			RFCVMVersion1: 1_000,
			RFCVMVersion2: EpochNumberNever,
		},
		MaxFutureTimeMs: 2 * 60 * 60 * 1000, // 2 hours
	}
	p.GenesisBlock = NewGenesisBlock(p.GenesisEpochLength)
	return p
}

// DefaultDevParams returns a Params tuned for fast local devnets: short
// epochs and a wide-open hardfork schedule so every feature is always on,
// grounded on dagconfig's SimNetParams role.
func DefaultDevParams() *Params {
	p := DefaultMainnetParams()
	p.Name = "ckb-dev"
	p.GenesisEpochLength = 10
	p.MaxEpochLength = 40
	p.MinEpochLength = 1
	p.TargetEpochDurationMs = 10 * 1000
	p.Hardforks.RFCVMVersion1 = 0
	p.Hardforks.RFCVMVersion2 = 0
	p.GenesisBlock = NewGenesisBlock(p.GenesisEpochLength)
	return p
}

// VMVersionForEpoch returns the default VM version newly admitted Data-type
// scripts should run under at the given epoch, per the hardfork schedule.
func (p *Params) VMVersionForEpoch(epochNumber uint64) uint32 {
	version := uint32(0)
	if epochNumber >= p.Hardforks.RFCVMVersion1 {
		version = 1
	}
	if epochNumber >= p.Hardforks.RFCVMVersion2 {
		version = 2
	}
	return version
}

// ProposalWindowClosedAt returns the block number at which the proposal
// window for proposals made at tip closes: tip - closest + 1.
func (p *Params) ProposalWindowClosedAt(tip types.Number) types.Number {
	closest := p.ProposalWindow.Closest
	if uint64(tip)+1 < closest {
		return 0
	}
	return types.Number(uint64(tip) + 1 - closest)
}
