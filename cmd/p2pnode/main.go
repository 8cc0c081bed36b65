// Copyright 2026 The P2P Authors
// This file is part of the P2P library.
//
// The P2P library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The P2P library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the P2P library. If not, see <http://www.gnu.org/licenses/>.

// p2pnode runs a secret-handshake overlay node.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/BinaryBand/P2P/log"
	"github.com/BinaryBand/P2P/node"
	"github.com/BinaryBand/P2P/params"
)

var logger = log.NewModuleLogger(log.CMD)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	passphraseFlag = cli.StringFlag{
		Name:  "passphrase",
		Usage: "Shared admission passphrase",
	}
	listenFlag = cli.StringSliceFlag{
		Name:  "listen",
		Usage: "Transport listen multiaddr (repeatable)",
	}
	bootstrapFlag = cli.StringSliceFlag{
		Name:  "bootnode",
		Usage: "Bootstrap peer multiaddr including /p2p/<id> (repeatable)",
	}
	nodeKeyFlag = cli.StringFlag{
		Name:  "nodekey",
		Usage: "File holding the long-term identity key (created when absent)",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Log verbosity, 0=error .. 4=trace",
		Value: 2,
	}
	swarmSizeFlag = cli.IntFlag{
		Name:  "swarm-size",
		Usage: "Replication degree of content fragments",
		Value: params.SwarmSize,
	}
	timeoutFlag = cli.Int64Flag{
		Name:  "timeout",
		Usage: "Per-request deadline in milliseconds",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "p2pnode"
	app.Usage = "secret-handshake overlay node"
	app.Version = params.ProtocolVersion
	app.Flags = []cli.Flag{
		configFlag,
		passphraseFlag,
		listenFlag,
		bootstrapFlag,
		nodeKeyFlag,
		verbosityFlag,
		swarmSizeFlag,
		timeoutFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		return err
	}
	logger.Info("overlay node running", "address", n.Address(), "protocol", params.ProtocolID)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	return n.Stop()
}

func makeConfig(ctx *cli.Context) (*node.Config, error) {
	cfg := node.DefaultConfig()
	if path := ctx.String(configFlag.Name); path != "" {
		loaded, err := node.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if ctx.IsSet(passphraseFlag.Name) {
		cfg.Passphrase = ctx.String(passphraseFlag.Name)
	}
	if addrs := ctx.StringSlice(listenFlag.Name); len(addrs) > 0 {
		cfg.ListenAddrs = addrs
	}
	if boots := ctx.StringSlice(bootstrapFlag.Name); len(boots) > 0 {
		cfg.BootstrapNodes = boots
	}
	if ctx.IsSet(nodeKeyFlag.Name) {
		cfg.NodeKeyFile = ctx.String(nodeKeyFlag.Name)
	}
	if ctx.IsSet(verbosityFlag.Name) {
		cfg.Verbosity = ctx.Int(verbosityFlag.Name)
	}
	if ctx.IsSet(swarmSizeFlag.Name) {
		cfg.SwarmSize = ctx.Int(swarmSizeFlag.Name)
	}
	if ctx.IsSet(timeoutFlag.Name) {
		cfg.TimeoutMs = ctx.Int64(timeoutFlag.Name)
	}
	return cfg, nil
}
