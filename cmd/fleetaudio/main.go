// Command fleetaudio runs an audio node: it disciplines a local audio
// sample clock against the central node's beacon, captures stereo PCM, and
// slices it into WAVE files on commanded record boundaries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/northbeacon/fleetsync/internal/audio"
	"github.com/northbeacon/fleetsync/internal/config"
	"github.com/northbeacon/fleetsync/internal/ctrl"
	"github.com/northbeacon/fleetsync/internal/hwclock"
	"github.com/northbeacon/fleetsync/internal/kalman"
	"github.com/northbeacon/fleetsync/internal/qfix"
	"github.com/northbeacon/fleetsync/internal/recorder"
	"github.com/northbeacon/fleetsync/internal/rtprio"
	"github.com/northbeacon/fleetsync/internal/synctimer"
	"github.com/northbeacon/fleetsync/internal/transport"
	"github.com/northbeacon/fleetsync/internal/wav"
	"github.com/northbeacon/fleetsync/internal/wire"
)

func main() {
	var configFile = pflag.StringP("config-file", "c", "", "Configuration file name. Searches default locations if unset.")
	var synthetic = pflag.BoolP("synthetic", "s", false, "Use a synthetic PCM source instead of a real sound device.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fleetaudio - clock-disciplined audio capture node for fleetsync.\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	root, err := config.Load(*configFile)
	if err != nil {
		log.Warn("fleetaudio: no config file, using defaults", "err", err)
		root = &config.Root{}
	}
	cfg := config.DefaultAudio()
	if root.Audio != nil {
		cfg = *root.Audio
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.RealtimePriority > 0 {
		if err := rtprio.Raise(cfg.RealtimePriority); err != nil {
			log.Warn("fleetaudio: could not raise realtime priority, continuing at default", "err", err)
		}
	}

	// maxWAVFileSize keeps the declared chunk sizes within the 32-bit RIFF
	// size field's range, matching the firmware's fixed per-file ceiling.
	const maxWAVFileSize = 1 << 31

	format := wav.Format{
		SampleRate:    cfg.SampleRateHz,
		Channels:      uint16(cfg.Channels),
		BitsPerSample: 24,
		MaxFileSize:   maxWAVFileSize,
	}

	rec, err := recorder.New(cfg.RecordingDir, format)
	if err != nil {
		log.Fatal("fleetaudio: open recorder", "err", err)
	}

	sink := synctimer.CommandSink{Start: rec.Start, Stop: rec.Stop}

	est := synctimer.New(kalman.Config{
		NominalFreq:        cfg.NominalFreqHz,
		KU:                 1.0,
		QTheta:             0.0,
		QF:                 256.0,
		R:                  390625.0,
		P0:                 1e6,
		OutlierThreshold:   6.0,
		OutlierResyncCount: 4,
	})
	recv := synctimer.NewAdvReceiver(est, sink)

	counter := hwclock.NewSyntheticCounter(cfg.NominalFreqHz)
	registry := hwclock.NewRegistry(counter)
	advCh := registry.Allocate(func(uint32) {})

	mcast, err := transport.DialUDPMulticast(cfg.MulticastGroup, nil)
	if err != nil {
		log.Fatal("fleetaudio: dial multicast", "err", err)
	}
	defer mcast.Close()

	go receiveBeacons(ctx, mcast, registry, advCh, recv)

	ctrlCfg := ctrl.Config{KTheta: cfg.KTheta, KF: cfg.KFreq, MaxStep: cfg.MaxTrimStep}
	controller := ctrl.New(ctrlCfg)

	samplePeriod := qfix.FromFloat(float64(cfg.NominalFreqHz) / float64(cfg.SampleRateHz))
	blockDuration := qfix.FromFloat(float64(cfg.BlockSizeFrames) * float64(cfg.NominalFreqHz) / float64(cfg.SampleRateHz))

	pipelineCfg := audio.Config{
		NominalFreq:          cfg.NominalFreqHz,
		SamplePeriod:         samplePeriod,
		BlockDuration:        blockDuration,
		BytesPerFrame:        uint32(cfg.Channels) * 3,
		ClockRecoveryEnabled: cfg.ClockRecovery,
	}

	var source audio.BlockSource
	if *synthetic {
		blockBytes := int(cfg.BlockSizeFrames) * cfg.Channels * 4
		source = audio.NewSyntheticSource(blockBytes, 1)
	} else {
		s, err := audio.OpenPortAudioSource(cfg.Channels, float64(cfg.SampleRateHz), int(cfg.BlockSizeFrames))
		if err != nil {
			log.Fatal("fleetaudio: open audio device", "err", err)
		}
		defer s.Close()
		source = s
	}

	trim := audio.NewHFClockTrim()
	blockTimeCh := make(chan audio.BlockTimeSnapshot, 4)
	i2sCh := registry.Allocate(func(tick uint32) {})
	go runBlockTimeFeed(ctx, registry, i2sCh, pipelineCfg.BlockDuration, cfg.NominalFreqHz, blockTimeCh)

	pipeline := audio.NewPipeline(pipelineCfg, est, controller, rec, source, blockTimeCh, trim, registry.Get)

	log.Info("fleetaudio: running", "sample_rate", cfg.SampleRateHz, "channels", cfg.Channels, "clock_recovery", cfg.ClockRecovery)

	if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("fleetaudio: pipeline stopped", "err", err)
	}
}

// receiveBeacons decodes incoming multicast beacon payloads and dispatches
// each to recv, pairing it with a local capture of the radio-end-of-packet
// counter route.
func receiveBeacons(ctx context.Context, t transport.Transport, registry *hwclock.Registry, ch hwclock.Channel, recv *synctimer.AdvReceiver) {
	for {
		buf, err := t.Recv(ctx)
		if err != nil {
			return
		}
		payload, err := wire.Decode(buf)
		if err != nil {
			log.Warn("fleetaudio: invalid beacon payload", "err", err)
			continue
		}
		tick, err := registry.Fire(ch)
		if err != nil {
			log.Error("fleetaudio: capture fire", "err", err)
			continue
		}
		recv.Receive(payload, qfix.FromInt(tick))
	}
}

// runBlockTimeFeed simulates the hardware's I2S-buffer-boundary capture
// route: every blockDuration ticks it latches the counter and enqueues the
// matching snapshot, standing in for the firmware's block-time mailbox
// when no real I2S peripheral interrupt is available.
func runBlockTimeFeed(ctx context.Context, registry *hwclock.Registry, ch hwclock.Channel, blockDuration qfix.Q, nominalFreq uint32, out chan<- audio.BlockTimeSnapshot) {
	var i2sTime qfix.Q
	period := time.Duration(qfix.ToFloat(blockDuration) / float64(nominalFreq) * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick, err := registry.Fire(ch)
			if err != nil {
				log.Error("fleetaudio: block-time capture", "err", err)
				continue
			}
			i2sTime += blockDuration
			select {
			case out <- audio.BlockTimeSnapshot{I2STime: i2sTime, RefTime: tick}:
			case <-ctx.Done():
				return
			default:
				log.Warn("fleetaudio: block-time mailbox miss")
			}
		}
	}
}
