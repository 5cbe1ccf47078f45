package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arfarlow/tinyjvm/pkg/jlog"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <class-name>",
	Short: "Load a class and dump its materialized object graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := jlog.New(os.Stderr, cfg.GCVerbose)
		vm, loader := newVM(cfg, logger)

		className := args[0]
		class, err := loader.LoadClass(className)
		if err != nil {
			logger.Error("loading %s: %v", className, err)
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), vm.Heap.DumpObject(class))
		return nil
	},
}
