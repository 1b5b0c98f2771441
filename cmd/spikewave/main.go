package main

import (
	"github.com/huangsam/spikewave/cmd"
	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/internal/iocache"
	"github.com/huangsam/spikewave/internal/log"
)

func main() {
	cmd.SetStoreManager(iocache.Manager)
	defer iocache.CloseStores()
	defer func() { _ = cmd.StopProfiling() }()
	defer log.Sync()

	if err := cmd.Execute(); err != nil {
		contract.LogFatal("Error running command", err)
	}
}
