package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arfarlow/tinyjvm/pkg/classloader"
	"github.com/arfarlow/tinyjvm/pkg/jlog"
	"github.com/arfarlow/tinyjvm/pkg/ssa"
)

var liftCmd = &cobra.Command{
	Use:   "lift <class-name> <method-name> <descriptor>",
	Short: "Lift one method's bytecode to SSA form and print its basic blocks (experimental)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		className, methodName, descriptor := args[0], args[1], args[2]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := jlog.New(os.Stderr, cfg.GCVerbose)
		vm, loader := newVM(cfg, logger)

		class, err := loader.LoadClass(className)
		if err != nil {
			logger.Error("loading %s: %v", className, err)
			return err
		}
		method, _, err := loader.FindMethod(class, methodName, descriptor)
		if err != nil {
			logger.Error("%s.%s%s not found: %v", className, methodName, descriptor, err)
			return err
		}
		if method.IsNative() || method.Instructions.Len() == 0 {
			return fmt.Errorf("tinyjvm lift: %s.%s%s has no bytecode body", className, methodName, descriptor)
		}

		hdr, err := vm.Heap.Load(class)
		if err != nil {
			return err
		}
		pool := hdr.Payload.(*classloader.Class).Pool

		fn, err := ssa.Build(method.Instructions, pool, int(method.MaxLocals))
		if err != nil {
			return fmt.Errorf("tinyjvm lift: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, b := range fn.Blocks {
			fmt.Fprintf(out, "block %d [%d,%d) term=%s preds=%v\n", b.ID, b.Start, b.End, b.Term, b.Preds)
			for _, instr := range b.Code {
				fmt.Fprintf(out, "  %s\n", instr.Op)
			}
		}
		return nil
	},
}
