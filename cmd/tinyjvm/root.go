package main

import (
	"github.com/spf13/cobra"

	"github.com/arfarlow/tinyjvm/pkg/jvmconfig"
)

var rootViper = jvmconfig.New(".")

var rootCmd = &cobra.Command{
	Use:   "tinyjvm",
	Short: "A from-scratch JVM: class loading, verification, GC, and bytecode interpretation",
}

func init() {
	rootCmd.PersistentFlags().String("classpath", ".", "directory to resolve class names against")
	rootCmd.PersistentFlags().Uint64("heap-bytes", 0, "GC accounting-arena capacity in bytes (0 = jvmconfig default)")
	rootCmd.PersistentFlags().Bool("gc-verbose", false, "trace each GC cycle's reclaim summary")

	must(rootViper.BindPFlag("classpath", rootCmd.PersistentFlags().Lookup("classpath")))
	must(rootViper.BindPFlag("heap_bytes", rootCmd.PersistentFlags().Lookup("heap-bytes")))
	must(rootViper.BindPFlag("gc_verbose", rootCmd.PersistentFlags().Lookup("gc-verbose")))

	rootCmd.AddCommand(runCmd, inspectCmd, liftCmd)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func loadConfig() (*jvmconfig.Config, error) {
	return jvmconfig.Load(rootViper)
}
