// Command tinyjvm loads, verifies, and executes JVM class files against a
// from-scratch class loader, garbage collector, and bytecode interpreter.
// It also exposes two auxiliary subcommands for poking at the VM's
// internals: inspect (dump a loaded class's object graph) and lift (run
// the experimental SSA lifter over one method and print its blocks).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
