package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arfarlow/tinyjvm/pkg/classloader"
	"github.com/arfarlow/tinyjvm/pkg/interp"
	"github.com/arfarlow/tinyjvm/pkg/jlog"
)

var runCmd = &cobra.Command{
	Use:   "run <class-name>",
	Short: "Load, link, and execute a class's public static void main(String[])",
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
		if err := vm.EnsureInitialized(class); err != nil {
			logger.Error("initializing %s: %v", className, err)
			return err
		}

		method, declClass, err := loader.FindMethod(class, "main", "([Ljava/lang/String;)V")
		if err != nil {
			logger.Error("%s has no main method: %v", className, err)
			return err
		}

		stringClass, err := loader.LoadClass("java/lang/String")
		if err != nil {
			return err
		}
		argv, err := vm.ArrayInstance(classloader.ElementKind{ElemClass: stringClass}, 0, nil)
		if err != nil {
			return err
		}

		if _, err := vm.Invoke(method, declClass, []interp.Value{interp.RefValue(argv)}); err != nil {
			logger.Error("%s.main threw: %v", className, err)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), jlog.Styled{
			Heading: "run " + className,
			Rows:    [][2]string{{"collections", fmt.Sprintf("%d", vm.Heap.CollectionIndex)}},
			Ok:      true,
		})
		return nil
	},
}
