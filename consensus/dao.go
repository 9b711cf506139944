package consensus

import "github.com/nervosnetwork/ckb-sub009/types"

// DaoTypeHash is the code hash identifying the network's distinguished
// DAO deposit/withdraw script (glossary: "a distinguished script enabling
// lock-up of capacity for interest"). A cell whose type script carries
// this code hash is a DAO deposit, and its capacity counts toward the
// header's dao.U component.
var DaoTypeHash = types.Hash32{
	0xda, 0x0a, 0xda, 0x0a, 0xda, 0x0a, 0xda, 0x0a,
	0xda, 0x0a, 0xda, 0x0a, 0xda, 0x0a, 0xda, 0x0a,
	0xda, 0x0a, 0xda, 0x0a, 0xda, 0x0a, 0xda, 0x0a,
	0xda, 0x0a, 0xda, 0x0a, 0xda, 0x0a, 0xda, 0x0a,
}
