package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/JeanRibes/midi-player/router"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var routeFlags struct {
	input      string
	output     string
	serial     string
	keymap     string
	virtual    string
	filter     []string
	queue      int
	dropOldest bool
	print      bool
}

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Forward a live MIDI input to an output",
	Long: `Forward a live MIDI input to an output.

A serial keyboard can be used as input with --serial and --keymap. With
--virtual NAME, "virtual:NAME" can be given as input or output to create a
virtual port other applications connect to.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.FromContext(cmd.Context())
		flags := cmd.Flags()
		if flags.Changed("keymap") {
			cfg.Serial.Keymap = routeFlags.keymap
		}
		input, output := cfg.Input, cfg.Output
		if flags.Changed("serial") {
			cfg.Serial.Port = routeFlags.serial
		}
		if cfg.Serial.Port != "" {
			if cfg.Serial.Keymap == "" {
				return fmt.Errorf("a keymap is needed to read %s", cfg.Serial.Port)
			}
			input = "serial:" + cfg.Serial.Port
		}
		if flags.Changed("input") {
			input = routeFlags.input
		}
		if flags.Changed("output") {
			output = routeFlags.output
		}
		if flags.Changed("filter") {
			cfg.Router.Filter = routeFlags.filter
		}
		filter, err := cfg.Filter()
		if err != nil {
			return err
		}

		drv, err := driver(logger)
		if err != nil {
			return err
		}
		if routeFlags.virtual != "" {
			drv = withVirtual(drv, routeFlags.virtual)
		}

		size := cfg.Router.QueueSize
		if flags.Changed("queue") {
			size = routeFlags.queue
		}
		opts := []router.Option{
			router.WithLogger(logger),
			router.WithFilter(filter...),
			router.WithQueueSize(size),
		}
		if cfg.Router.DropOldest || routeFlags.dropOldest {
			opts = append(opts, router.WithDropOldest())
		}
		r := router.New(drv, opts...)
		if err := r.OpenInput(input); err != nil {
			return err
		}
		if err := r.OpenOutput(output); err != nil {
			r.Stop()
			return err
		}
		if !r.Start() {
			r.Stop()
			return fmt.Errorf("router could not start")
		}
		defer func() {
			r.Stop()
			if n := r.Dropped(); n > 0 {
				logger.Warn("queue overflowed", "dropped", n)
			}
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				for {
					msg, ok := r.Get()
					if !ok {
						break
					}
					if routeFlags.print {
						fmt.Println(timeStyle.Render(time.Now().Format("15:04:05.000")), msg.String())
					}
				}
			}
		}
	},
}

func init() {
	f := routeCmd.Flags()
	f.StringVarP(&routeFlags.input, "input", "i", "", "input port name substring (default from config)")
	f.StringVarP(&routeFlags.output, "output", "o", "", "output port name substring (default from config)")
	f.StringVar(&routeFlags.serial, "serial", "", "serial keyboard device, e.g. /dev/ttyUSB0")
	f.StringVar(&routeFlags.keymap, "keymap", "", "serial keyboard keymap file")
	f.StringVar(&routeFlags.virtual, "virtual", "", "name of the virtual ports to offer")
	f.StringSliceVar(&routeFlags.filter, "filter", nil, "message types not to forward, e.g. aftertouch")
	f.IntVar(&routeFlags.queue, "queue", 100, "size of the receive queue")
	f.BoolVar(&routeFlags.dropOldest, "drop-oldest", false, "drop the oldest message when the queue is full")
	f.BoolVarP(&routeFlags.print, "print", "p", false, "print the received messages")
}
