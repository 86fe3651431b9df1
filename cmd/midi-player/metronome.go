package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/JeanRibes/midi-player/music"
	"github.com/JeanRibes/midi-player/synth"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var metronomeFlags struct {
	output   string
	tempo    int
	measure  int
	velocity uint8
	noBell   bool
	duration time.Duration
}

var metronomeCmd = &cobra.Command{
	Use:   "metronome",
	Short: "Click a metronome until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.FromContext(cmd.Context())
		drv, err := driver(logger)
		if err != nil {
			return err
		}

		output := cfg.Metronome.Output
		if output == "" {
			output = cfg.Output
		}
		if cmd.Flags().Changed("output") {
			output = metronomeFlags.output
		}
		m := music.NewMetronome(drv, synth.GM{}, output, music.WithMetronomeLogger(logger))
		m.SetVelocity(cfg.Metronome.Velocity)
		if cmd.Flags().Changed("velocity") {
			m.SetVelocity(metronomeFlags.velocity)
		}
		m.SetBell(cfg.Metronome.Bell && !metronomeFlags.noBell)

		tempo, measure := cfg.Metronome.Tempo, cfg.Metronome.Measure
		if cmd.Flags().Changed("tempo") {
			tempo = metronomeFlags.tempo
		}
		if cmd.Flags().Changed("measure") {
			measure = metronomeFlags.measure
		}
		if err := m.Start(tempo, measure); err != nil {
			return err
		}
		defer m.Stop()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if metronomeFlags.duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, metronomeFlags.duration)
			defer cancel()
		}
		<-ctx.Done()
		return nil
	},
}

func init() {
	f := metronomeCmd.Flags()
	f.StringVarP(&metronomeFlags.output, "output", "o", "", "output port name substring (default from config)")
	f.IntVarP(&metronomeFlags.tempo, "tempo", "t", 120, "beats per minute")
	f.IntVarP(&metronomeFlags.measure, "measure", "m", 4, "beats per measure")
	f.Uint8Var(&metronomeFlags.velocity, "velocity", 90, "click velocity")
	f.BoolVar(&metronomeFlags.noBell, "no-bell", false, "do not accent the first beat of each measure")
	f.DurationVarP(&metronomeFlags.duration, "duration", "d", 0, "stop after this long")
}
