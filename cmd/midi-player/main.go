// Command midi-player plays MIDI files, clicks a metronome and routes live
// MIDI input to an output.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/JeanRibes/midi-player/config"
	"github.com/JeanRibes/midi-player/ports"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters driver
)

var (
	configFile string
	logLevel   string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:           "midi-player",
	Short:         "Play MIDI files to synthesizers, with a metronome and a live router",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		level, err := cfg.Level()
		if err != nil {
			return err
		}
		logger := log.NewWithOptions(os.Stderr, log.Options{
			Level:           level,
			ReportTimestamp: level == log.DebugLevel,
			Prefix:          "midi-player",
		})
		cmd.SetContext(log.WithContext(cmd.Context(), logger))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides the config file)")
	rootCmd.AddCommand(portsCmd, inspectCmd, playCmd, metronomeCmd, routeCmd, recentCmd)
}

// driver returns the MIDI ports of the system, plus the serial keyboards when
// a keymap is configured.
func driver(logger *log.Logger) (ports.Driver, error) {
	drv := ports.GoMIDI()
	if cfg.Serial.Keymap == "" {
		return drv, nil
	}
	keymap, err := ports.LoadKeymap(cfg.Serial.Keymap)
	if err != nil {
		return nil, fmt.Errorf("keymap: %w", err)
	}
	return ports.WithSerial(drv, ports.SerialConfig{
		Baud:   cfg.Serial.Baud,
		Keymap: keymap,
		Logger: logger,
	}), nil
}

func main() {
	defer midi.CloseDriver()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		midi.CloseDriver()
		os.Exit(1)
	}
}
