package main

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/chain"
	"github.com/nervosnetwork/ckb-sub009/ckbhash"
	"github.com/nervosnetwork/ckb-sub009/consensus"
	"github.com/nervosnetwork/ckb-sub009/mmr"
	"github.com/nervosnetwork/ckb-sub009/netglue"
	"github.com/nervosnetwork/ckb-sub009/netsync"
	"github.com/nervosnetwork/ckb-sub009/pow"
	"github.com/nervosnetwork/ckb-sub009/store/leveldbstore"
	"github.com/nervosnetwork/ckb-sub009/store/migrate"
	"github.com/nervosnetwork/ckb-sub009/store/ttlstore"
	"github.com/nervosnetwork/ckb-sub009/txpool"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// poolUpdaterProxy lets chain.New receive a chain.PoolUpdater before the
// *txpool.Pool it will eventually forward to exists yet: txpool.New itself
// needs a ChainSnapshot satisfied by the *chain.Chain under construction.
// The proxy's pool field is filled in immediately after txpool.New
// returns, before either engine processes a single block.
type poolUpdaterProxy struct {
	pool *txpool.Pool
}

func (p *poolUpdaterProxy) RemoveCommitted(ids []types.Hash32) { p.pool.RemoveCommitted(ids) }

func (p *poolUpdaterProxy) ReturnToPending(txs []*types.Transaction) { p.pool.ReturnToPending(txs) }

func (p *poolUpdaterProxy) RecordProposals(number types.Number, ids []types.ProposalShortId) {
	p.pool.RecordProposals(number, ids)
}

func (p *poolUpdaterProxy) RemoveProposals(number types.Number) {
	p.pool.RemoveProposals(number)
}

func (p *poolUpdaterProxy) UpdateProposalWindow(number types.Number) {
	p.pool.UpdateProposalWindow(number)
}

// node is a wrapper for all the services a running instance owns, grounded
// on kaspad.go's kaspad struct and its start/stop lifecycle.
type node struct {
	cfg *config

	chainEngine *chain.Chain
	pool        *txpool.Pool
	hub         *netglue.Hub
	syncManager *netsync.Manager

	started, shutdown int32
}

func newNode(cfg *config) (*node, error) {
	params := consensus.DefaultMainnetParams()
	if cfg.Network == "dev" {
		params = consensus.DefaultDevParams()
	}
	hasher := ckbhash.Hasher{}

	db, err := leveldbstore.Open(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return nil, errors.Wrap(err, "opening chain store")
	}
	if err := migrate.NewRunner().Run(db, true); err != nil {
		return nil, errors.Wrap(err, "running chain store migrations")
	}

	rejectDB, err := ttlstore.Open(filepath.Join(cfg.DataDir, "reject"), time.Duration(cfg.RejectSweepSeconds)*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "opening reject cache store")
	}

	proxy := &poolUpdaterProxy{}
	chainEngine, err := chain.New(db, params, hasher, mmr.NewKVStore(db), proxy, pow.Dummy{}, nowMs)
	if err != nil {
		return nil, errors.Wrap(err, "constructing chain engine")
	}

	pool := txpool.New(params, chainEngine, hasher, rejectDB, nowMs)
	proxy.pool = pool

	var mgr *netsync.Manager
	hub := netglue.NewHub(
		func(peerID netsync.PeerID, conn netglue.Connection) *netglue.Router {
			return mgr.RouterInitializer(peerID, conn)
		},
		func(peerID netsync.PeerID) {
			mgr.OnDisconnected(peerID)
		},
	)
	mgr = netsync.NewManager(hub, chainEngine, pool, hasher, params.Name)

	return &node{
		cfg:         cfg,
		chainEngine: chainEngine,
		pool:        pool,
		hub:         hub,
		syncManager: mgr,
	}, nil
}

// start launches every service: the peer listener and any configured
// outbound dials, mirroring kaspad.start's networkAdapter/connectionManager
// sequencing.
func (n *node) start() error {
	if atomic.AddInt32(&n.started, 1) != 1 {
		return nil
	}
	log.Infof("starting node on %s (%s)", n.cfg.ListenAddr, n.cfg.Network)

	if err := n.hub.Listen(n.cfg.ListenAddr); err != nil {
		return errors.Wrap(err, "listening for peers")
	}
	for _, addr := range n.cfg.ConnectTo {
		if _, err := n.hub.Dial(addr); err != nil {
			log.Warnf("dialing %s: %s", addr, err)
		}
	}
	return nil
}

// stop gracefully shuts the node down, mirroring kaspad.stop's
// shutdown-once guard.
func (n *node) stop() error {
	if atomic.AddInt32(&n.shutdown, 1) != 1 {
		log.Infof("node is already shutting down")
		return nil
	}
	log.Warnf("node shutting down")
	if err := n.hub.Stop(); err != nil {
		log.Errorf("error stopping hub: %s", err)
	}
	return nil
}
