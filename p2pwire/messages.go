package p2pwire

import "github.com/nervosnetwork/ckb-sub009/types"

// Sync protocol.

type MsgGetHeaders struct {
	Locator  []types.Hash32
	HashStop types.Hash32
}

func (*MsgGetHeaders) Protocol() ProtocolID { return ProtocolSync }
func (*MsgGetHeaders) Command() Command     { return CmdGetHeaders }

type MsgSendHeaders struct {
	Headers []types.Header
}

func (*MsgSendHeaders) Protocol() ProtocolID { return ProtocolSync }
func (*MsgSendHeaders) Command() Command     { return CmdSendHeaders }

type MsgGetBlocks struct {
	BlockHashes []types.Hash32
}

func (*MsgGetBlocks) Protocol() ProtocolID { return ProtocolSync }
func (*MsgGetBlocks) Command() Command     { return CmdGetBlocks }

type MsgBlock struct {
	Block *types.Block
}

func (*MsgBlock) Protocol() ProtocolID { return ProtocolSync }
func (*MsgBlock) Command() Command     { return CmdBlock }

// Relay protocol.

type MsgCompactBlock struct {
	Header               types.Header
	Nonce                uint64
	ShortIDs             []types.ProposalShortId
	PrefilledTransactions []PrefilledTransaction
}

// PrefilledTransaction carries a transaction the sender includes in full
// inside the compact block (conventionally the cellbase), keyed by its
// position among the block's transactions.
type PrefilledTransaction struct {
	Index int
	Tx    *types.Transaction
}

func (*MsgCompactBlock) Protocol() ProtocolID { return ProtocolRelay }
func (*MsgCompactBlock) Command() Command     { return CmdCompactBlock }

type MsgGetBlockTransactions struct {
	BlockHash   types.Hash32
	Indexes     []uint32
	UncleIndexes []uint32
}

func (*MsgGetBlockTransactions) Protocol() ProtocolID { return ProtocolRelay }
func (*MsgGetBlockTransactions) Command() Command     { return CmdGetBlockTransactions }

type MsgBlockTransactions struct {
	BlockHash    types.Hash32
	Transactions []*types.Transaction
	Uncles       []types.Header
}

func (*MsgBlockTransactions) Protocol() ProtocolID { return ProtocolRelay }
func (*MsgBlockTransactions) Command() Command     { return CmdBlockTransactions }

type MsgRelayTransactionHashes struct {
	Hashes []types.Hash32
}

func (*MsgRelayTransactionHashes) Protocol() ProtocolID { return ProtocolRelay }
func (*MsgRelayTransactionHashes) Command() Command     { return CmdRelayTransactionHashes }

type MsgGetRelayTransactions struct {
	Hashes []types.Hash32
}

func (*MsgGetRelayTransactions) Protocol() ProtocolID { return ProtocolRelay }
func (*MsgGetRelayTransactions) Command() Command     { return CmdGetRelayTransactions }

// RelayedTransaction pairs a transaction with the cycles its sender
// measured running it, so the receiver can cross-check against its own
// verifier output per spec.md §4.9's tx-relay malformed check.
type RelayedTransaction struct {
	Tx     *types.Transaction
	Cycles types.Cycle
}

type MsgRelayTransactions struct {
	Transactions []RelayedTransaction
}

func (*MsgRelayTransactions) Protocol() ProtocolID { return ProtocolRelay }
func (*MsgRelayTransactions) Command() Command     { return CmdRelayTransactions }

// Discovery protocol.

type NetAddress struct {
	Host string
	Port uint16
}

type MsgGetAddresses struct{}

func (*MsgGetAddresses) Protocol() ProtocolID { return ProtocolDiscovery }
func (*MsgGetAddresses) Command() Command     { return CmdGetAddresses }

type MsgAddresses struct {
	Addresses []NetAddress
}

func (*MsgAddresses) Protocol() ProtocolID { return ProtocolDiscovery }
func (*MsgAddresses) Command() Command     { return CmdAddresses }

// Identify protocol: the handshake's version exchange.

type MsgVersion struct {
	ProtocolVersion uint32
	UserAgent       string
	Network         string
	TipHash         types.Hash32
	TipNumber       types.Number
	Nonce           uint64
}

func (*MsgVersion) Protocol() ProtocolID { return ProtocolIdentify }
func (*MsgVersion) Command() Command     { return CmdVersion }

type MsgVerAck struct{}

func (*MsgVerAck) Protocol() ProtocolID { return ProtocolIdentify }
func (*MsgVerAck) Command() Command     { return CmdVerAck }

// Ping protocol.

type MsgPing struct{ Nonce uint64 }

func (*MsgPing) Protocol() ProtocolID { return ProtocolPing }
func (*MsgPing) Command() Command     { return CmdPing }

type MsgPong struct{ Nonce uint64 }

func (*MsgPong) Protocol() ProtocolID { return ProtocolPing }
func (*MsgPong) Command() Command     { return CmdPong }

// Filter protocol: status/reject replies, per spec.md §4.9's 3-digit
// status codes and §7's malformed classification.

type MsgReject struct {
	Code   StatusCode
	Reason string
}

func (*MsgReject) Protocol() ProtocolID { return ProtocolFilter }
func (*MsgReject) Command() Command     { return CmdReject }
