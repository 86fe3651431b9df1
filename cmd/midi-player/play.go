package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/JeanRibes/midi-player/config"
	"github.com/JeanRibes/midi-player/music"
	"github.com/JeanRibes/midi-player/shared"
	"github.com/JeanRibes/midi-player/synth"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var playFlags struct {
	output      string
	channels    int
	from        int
	fromTime    time.Duration
	until       int
	untilTime   time.Duration
	quantize    bool
	loose       bool
	interactive bool
}

var playCmd = &cobra.Command{
	Use:   "play FILE",
	Short: "Play a MIDI file",
	Long: `Play a MIDI file, spreading its tracks over up to --channels output ports.

With --interactive, commands are read from standard input, one per line:
  p          play/pause
  s INDEX    seek to an event
  t TIME     seek to a time (1.5s, 2m or plain seconds)
  r          rewind to the beginning bound
  b INDEX    set the beginning bound
  e INDEX    set the end bound
  ?          show the position
  q          quit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.FromContext(cmd.Context())
		tf, err := loadFile(args[0], playFlags.quantize)
		if err != nil {
			return err
		}
		drv, err := driver(logger)
		if err != nil {
			return err
		}

		output := cfg.Output
		if cmd.Flags().Changed("output") {
			output = playFlags.output
		}
		channels := cfg.MaxChannels
		if cmd.Flags().Changed("channels") {
			channels = playFlags.channels
		}
		p := music.NewPlayer(drv, synth.GM{}, output,
			music.WithLogger(logger),
			music.WithPrograms(cfg.Channels...),
			music.WithStrictPorts(cfg.StrictPorts && !playFlags.loose),
		)
		p.Open(tf)

		opts := []music.StartOption{music.WithMaxChannels(channels)}
		switch {
		case cmd.Flags().Changed("from"):
			opts = append(opts, music.FromIndex(playFlags.from))
		case cmd.Flags().Changed("from-time"):
			opts = append(opts, music.FromTime(playFlags.fromTime))
		}
		switch {
		case cmd.Flags().Changed("until"):
			opts = append(opts, music.UntilIndex(playFlags.until))
		case cmd.Flags().Changed("until-time"):
			opts = append(opts, music.UntilTime(playFlags.untilTime))
		}
		if err := p.Start(opts...); err != nil {
			return err
		}
		defer p.Stop()
		remember(logger, args[0])

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if !playFlags.interactive {
			if err := p.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}

		sink := make(chan shared.Message)
		notify := make(chan shared.Message, 8)
		go readControls(ctx, os.Stdin, sink, logger)
		printed := printReplies(os.Stdout, notify)
		music.Control(ctx, p, sink, notify)
		close(notify)
		<-printed
		return nil
	},
}

func init() {
	f := playCmd.Flags()
	f.StringVarP(&playFlags.output, "output", "o", "", "output port name substring (default from config)")
	f.IntVarP(&playFlags.channels, "channels", "n", 1, "maximum number of output ports, one per track")
	f.IntVar(&playFlags.from, "from", 0, "start at this event index")
	f.DurationVar(&playFlags.fromTime, "from-time", 0, "start at this time")
	f.IntVar(&playFlags.until, "until", 0, "pause before this event index")
	f.DurationVar(&playFlags.untilTime, "until-time", 0, "pause after this time")
	f.BoolVarP(&playFlags.quantize, "quantize", "q", false, "quantize the notes before playing")
	f.BoolVar(&playFlags.loose, "loose", false, "play with fewer ports than channels if some cannot be opened")
	f.BoolVarP(&playFlags.interactive, "interactive", "i", false, "read commands from standard input")
}

func remember(logger *log.Logger, path string) {
	recentFile, err := config.RecentPath()
	if err != nil {
		logger.Debug("no recent files", "err", err)
		return
	}
	recent, err := config.LoadRecent(recentFile)
	if err != nil {
		logger.Warn("recent files", "err", err)
		return
	}
	recent.Add(path)
	if err := recent.Save(); err != nil {
		logger.Warn("recent files", "err", err)
	}
}

// readControls feeds sink with the commands read from r, one per line, and
// sends Quit at the end of input.
func readControls(ctx context.Context, r io.Reader, sink chan<- shared.Message, logger *log.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg, err := parseControl(line)
		if err != nil {
			logger.Warn("ignored", "line", line, "err", err)
			continue
		}
		select {
		case sink <- msg:
		case <-ctx.Done():
			return
		}
		if msg.Type == shared.Quit {
			return
		}
	}
	select {
	case sink <- shared.Message{Type: shared.Quit}:
	case <-ctx.Done():
	}
}

// printReplies writes every reply to w until replies is closed, then closes
// the returned channel.
func printReplies(w io.Writer, replies <-chan shared.Message) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range replies {
			fmt.Fprintln(w, describe(msg))
		}
	}()
	return done
}

func parseControl(line string) (shared.Message, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	index := func(t shared.Event) (shared.Message, error) {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return shared.Message{}, fmt.Errorf("bad index %q", arg)
		}
		return shared.Message{Type: t, Number: n}, nil
	}
	switch cmd {
	case "p", "play", "pause":
		return shared.Message{Type: shared.PlayPause}, nil
	case "s", "seek":
		return index(shared.Seek)
	case "t", "time":
		d, err := parseTime(arg)
		if err != nil {
			return shared.Message{}, err
		}
		return shared.Message{Type: shared.SeekTime, Number: int(d.Milliseconds())}, nil
	case "r", "rewind":
		return shared.Message{Type: shared.Rewind}, nil
	case "b", "begin":
		return index(shared.SetBeginning)
	case "e", "end":
		return index(shared.SetEnd)
	case "?", "status":
		return shared.Message{Type: shared.Status}, nil
	case "q", "quit":
		return shared.Message{Type: shared.Quit}, nil
	}
	return shared.Message{}, fmt.Errorf("unknown command %q", cmd)
}

// parseTime accepts Go durations and plain seconds.
func parseTime(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad time %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func describe(msg shared.Message) string {
	at := (time.Duration(msg.Number2) * time.Millisecond).String()
	switch msg.Type {
	case shared.Error:
		return errorStyle.Render("error:") + " " + msg.String
	case shared.Status:
		return field(msg.String, fmt.Sprintf("#%d at %s", msg.Number, at))
	}
	return field(msg.Type.String(), fmt.Sprintf("#%d at %s", msg.Number, at))
}
