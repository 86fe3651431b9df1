package main

import (
	"fmt"
	"time"

	"github.com/JeanRibes/midi-player/music"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
)

var inspectFlags struct {
	events   bool
	meta     bool
	quantize bool
}

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Show the tracks, tempo map and timed events of a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tf, err := loadFile(args[0], inspectFlags.quantize)
		if err != nil {
			return err
		}

		fmt.Println(titleStyle.Render(args[0]))
		fmt.Println(field("format", tf.Format()))
		fmt.Println(field("ticks/beat", tf.TicksPerBeat()))
		fmt.Println(field("tracks", fmt.Sprintf("%d (%d playable)", tf.TrackCount(false), tf.TrackCount(true))))
		fmt.Println(field("messages", fmt.Sprintf("%d (%d with meta)", tf.MessageCount(false, false), tf.MessageCount(true, false))))
		if !tf.Merged() {
			fmt.Println(metaStyle.Render("asynchronous tracks, not merged"))
		} else {
			fmt.Println(field("events", tf.Len()))
			fmt.Println(field("length", tf.Length().Round(time.Millisecond)))
		}
		for i := range tf.Tracks() {
			if name := tf.TrackName(i); name != "" {
				fmt.Println(field(fmt.Sprintf("track %d", i), name))
			}
		}
		for _, t := range tf.Tempos() {
			fmt.Println(field("tempo", fmt.Sprintf("%.2f BPM from #%d at %s",
				60_000_000/float64(t.MicrosPerBeat), t.Index, tf.TimeAt(t.Index).Round(time.Millisecond))))
		}

		if !inspectFlags.events {
			return nil
		}
		for _, ev := range tf.Events() {
			if ev.Message.IsMeta() && !inspectFlags.meta {
				continue
			}
			line := indexStyle.Render(fmt.Sprint(ev.Index)) + " " + timeStyle.Render(ev.Absolute.Round(time.Millisecond).String())
			if ev.Message.IsMeta() {
				line += " " + metaStyle.Render(ev.Message.String())
			} else {
				line += " " + midi.Message(ev.Message).String()
			}
			if ev.Duration > 0 {
				line += " " + metaStyle.Render("("+ev.Duration.Round(time.Millisecond).String()+")")
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVarP(&inspectFlags.events, "events", "e", false, "list the merged events")
	inspectCmd.Flags().BoolVarP(&inspectFlags.meta, "meta", "m", false, "include meta events in the list")
	inspectCmd.Flags().BoolVarP(&inspectFlags.quantize, "quantize", "q", false, "quantize the notes before inspecting")
}

func loadFile(path string, quantize bool) (*music.TimedFile, error) {
	if quantize {
		return music.LoadQuantized(path)
	}
	return music.Load(path)
}
