package main

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List the MIDI inputs and outputs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, err := driver(log.FromContext(cmd.Context()))
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render("inputs"))
		for i, name := range drv.Ins() {
			fmt.Println(indexStyle.Render(fmt.Sprint(i)), name)
		}
		fmt.Println(titleStyle.Render("outputs"))
		for i, name := range drv.Outs() {
			fmt.Println(indexStyle.Render(fmt.Sprint(i)), name)
		}
		return nil
	},
}
