// Command fleetcentral runs the central node: it broadcasts the periodic
// beacon that every audio node in the fleet disciplines its clock against,
// and accepts operator commands over a TCP console.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/northbeacon/fleetsync/internal/central"
	"github.com/northbeacon/fleetsync/internal/config"
	"github.com/northbeacon/fleetsync/internal/hwclock"
	"github.com/northbeacon/fleetsync/internal/transport"
)

func main() {
	var configFile = pflag.StringP("config-file", "c", "", "Configuration file name. Searches default locations if unset.")
	var ipcSocket = pflag.StringP("ipc-socket", "i", "/tmp/fleetsync-central.sock", "Unix socket path for the radio-adjacent packet-end feed.")
	var announceName = pflag.StringP("announce-name", "n", "fleetcentral", "mDNS service instance name.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fleetcentral - beacon broadcaster and operator console for a fleetsync central node.\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	root, err := config.Load(*configFile)
	if err != nil {
		log.Warn("fleetcentral: no config file, using defaults", "err", err)
		root = &config.Root{}
	}
	cfg := config.DefaultCentral()
	if root.Central != nil {
		cfg = *root.Central
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var iface *net.Interface
	if cfg.Interface != "" {
		iface, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			log.Fatal("fleetcentral: resolve interface", "name", cfg.Interface, "err", err)
		}
	}

	mcast, err := transport.DialUDPMulticast(cfg.MulticastGroup, iface)
	if err != nil {
		log.Fatal("fleetcentral: dial multicast", "err", err)
	}
	defer mcast.Close()

	announcer, err := transport.Announce(ctx, *announceName, udpPort(cfg.MulticastGroup), cfg.MulticastGroup)
	if err != nil {
		log.Warn("fleetcentral: mDNS announce failed, continuing without discovery", "err", err)
	} else {
		defer announcer.Close()
	}

	cmdQueue := central.NewCommandQueue(2)
	updater := central.NewTransportUpdater(mcast)
	assembler := central.NewBeaconAssembler(cmdQueue, updater)
	go assembler.Run()
	defer assembler.Close()

	ipc, err := central.ListenIPC(*ipcSocket)
	if err != nil {
		log.Fatal("fleetcentral: listen ipc", "err", err)
	}
	defer ipc.Close()
	go ipc.Serve(assembler)

	console, err := central.ListenConsole(cfg.OperatorAddr, assembler, cmdQueue, hwclockNominalFreq)
	if err != nil {
		log.Fatal("fleetcentral: listen console", "err", err)
	}
	defer console.Close()
	go console.Serve()

	log.Info("fleetcentral: running",
		"multicast", cfg.MulticastGroup, "operator_addr", cfg.OperatorAddr, "ipc_socket", *ipcSocket)

	runLocalPacketFeed(ctx, assembler, cfg.BeaconIntervalMS)
}

// hwclockNominalFreq is the radio-adjacent counter's nominal tick rate,
// matching the audio node's NOMINAL_FREQ so ScheduleStart's lead time is in
// the same units the beacon payload carries.
const hwclockNominalFreq = 16_000_000

// runLocalPacketFeed drives BeaconAssembler.OnPacketEvent from a local
// free-running counter, so a single fleetcentral binary is runnable
// standalone for development and simulation. It runs whether or not an
// external radio-adjacent process is connected over the IPC socket; events
// from both sources reach the same assembler.
func runLocalPacketFeed(ctx context.Context, assembler *central.BeaconAssembler, intervalMS int) {
	counter := hwclock.NewSyntheticCounter(hwclockNominalFreq)
	registry := hwclock.NewRegistry(counter)
	var seq uint8
	ch := registry.Allocate(func(tick uint32) {
		assembler.OnPacketEvent(central.PacketEvent{Seq: seq, Time: tick})
		seq++
	})

	ticker := time.NewTicker(time.Duration(intervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := registry.Fire(ch); err != nil {
				log.Error("fleetcentral: packet feed", "err", err)
			}
		}
	}
}

func udpPort(group string) int {
	_, portStr, err := net.SplitHostPort(group)
	if err != nil {
		return 0
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return port
}
