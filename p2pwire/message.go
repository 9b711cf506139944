// Package p2pwire defines the binary wire messages the sync and network
// glue layers exchange and the length-delimited, Snappy-compressible
// framing spec.md §6 requires for them: Sync, Relay, Discovery, Identify,
// Ping and Filter.
//
// Grounded on wire/message.go's MessageCommand enum (a small integer tag
// plus a string table), generalized from kaspad's Bitcoin/kaspa
// message set to CKB's headers-first sync and compact-block relay
// messages.
package p2pwire

import "fmt"

// ProtocolID names one of the six protocols spec.md §6 lists; each
// connection multiplexes all six over the same framed stream, the
// protocol id living in every envelope's header.
type ProtocolID uint8

const (
	ProtocolSync ProtocolID = iota
	ProtocolRelay
	ProtocolDiscovery
	ProtocolIdentify
	ProtocolPing
	ProtocolFilter
)

func (p ProtocolID) String() string {
	switch p {
	case ProtocolSync:
		return "sync"
	case ProtocolRelay:
		return "relay"
	case ProtocolDiscovery:
		return "discovery"
	case ProtocolIdentify:
		return "identify"
	case ProtocolPing:
		return "ping"
	case ProtocolFilter:
		return "filter"
	default:
		return fmt.Sprintf("protocol(%d)", uint8(p))
	}
}

// Command identifies a message's concrete type within its protocol.
type Command uint8

const (
	CmdGetHeaders Command = iota
	CmdSendHeaders
	CmdGetBlocks
	CmdSendBlock
	CmdBlock

	CmdCompactBlock
	CmdGetBlockTransactions
	CmdBlockTransactions
	CmdRelayTransactionHashes
	CmdGetRelayTransactions
	CmdRelayTransactions

	CmdGetAddresses
	CmdAddresses

	CmdVersion
	CmdVerAck

	CmdPing
	CmdPong

	CmdReject
)

var commandNames = map[Command]string{
	CmdGetHeaders:             "GetHeaders",
	CmdSendHeaders:            "SendHeaders",
	CmdGetBlocks:              "GetBlocks",
	CmdSendBlock:              "SendBlock",
	CmdBlock:                  "Block",
	CmdCompactBlock:           "CompactBlock",
	CmdGetBlockTransactions:   "GetBlockTransactions",
	CmdBlockTransactions:      "BlockTransactions",
	CmdRelayTransactionHashes: "RelayTransactionHashes",
	CmdGetRelayTransactions:   "GetRelayTransactions",
	CmdRelayTransactions:      "RelayTransactions",
	CmdGetAddresses:           "GetAddresses",
	CmdAddresses:              "Addresses",
	CmdVersion:                "Version",
	CmdVerAck:                 "VerAck",
	CmdPing:                   "Ping",
	CmdPong:                   "Pong",
	CmdReject:                 "Reject",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown command (%d)", uint8(c))
}

// Message is anything that can travel framed over a connection.
type Message interface {
	Protocol() ProtocolID
	Command() Command
}
