// SPDX-License-Identifier: Apache-2.0
package main

// CLI driver: thin cobra wrapper around core.Node/core.Wallet, per §1's
// Out-of-scope note ("the CLI driver and subcommand plumbing ... are
// external collaborators, interfaces only"). Grounded on the teacher's
// cmd/synnergy/main.go root-command structure (cobra.Command tree, flag
// binding), trimmed to this spec's two command groups.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"botho/core"
	"botho/pkg/config"
)

func main() {
	root := &cobra.Command{Use: "botho"}
	root.AddCommand(nodeCmd())
	root.AddCommand(walletCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func nodeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "node"}
	cmd.AddCommand(nodeRunCmd())
	return cmd
}

func nodeRunCmd() *cobra.Command {
	var env, rpcAddr string
	run := &cobra.Command{
		Use:   "run",
		Short: "run a botho node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return err
			}
			return runNode(cfg, rpcAddr)
		},
	}
	run.Flags().StringVar(&env, "env", "", "environment overlay to merge onto default.yaml")
	run.Flags().StringVar(&rpcAddr, "rpc", ":8645", "JSON-RPC listen address")
	return run
}

func runNode(cfg *config.Config, rpcAddr string) error {
	log := logrus.NewEntry(logrus.StandardLogger())

	ledger := core.NewLedger(1)
	feeConfig := core.DefaultFeeConfig()
	wealth := core.NullClusterWealthProvider{}
	validator := core.NewValidator(ledger, func(height, totalMined uint64) uint64 { return 0 })
	mempool := core.NewMempool(ledger, validator, feeConfig, wealth)

	self := core.NodeID("self")
	quorum := core.QuorumSet{Threshold: cfg.Consensus.QuorumThreshold, Members: []core.NodeID{self}}
	consensus := core.NewConsensusService(self, quorum, core.DefaultConsensusConfig(), ledger, func(height, totalMined uint64) uint64 { return 0 }, log)

	nodeCfg := core.DefaultNodeConfig()
	nodeCfg.QuorumThreshold = cfg.Consensus.QuorumThreshold
	nodeCfg.QuorumMembers = []core.NodeID{self}

	n := core.NewNode(nodeCfg, ledger, mempool, consensus, nil, core.StaticPeerSet{Members: []core.NodeID{self}}, nil, nil, nil, log)

	rpc := core.NewRPCServer(n, rpcAddr)
	go func() {
		if err := rpc.Start(); err != nil {
			log.WithError(err).Warn("rpc server stopped")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	n.Run(ctx)
	return rpc.Stop()
}

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "wallet"}
	cmd.AddCommand(walletNewCmd())
	cmd.AddCommand(walletBalanceCmd())
	return cmd
}

func walletNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "generate a new stealth keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := core.NewStealthKeys()
			if err != nil {
				return err
			}
			fmt.Printf("view_public:  %x\n", keys.ViewPublic.Bytes())
			fmt.Printf("spend_public: %x\n", keys.SpendPublic.Bytes())
			return nil
		},
	}
}

func walletBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "show the balance of a scanned UTXO set",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("wallet balance requires a running node's chain_getOutputs RPC; see docs")
			return nil
		},
	}
}
