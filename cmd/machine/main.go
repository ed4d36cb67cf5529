// Command machine simulates a linked program file against an input
// file, per spec sections 4.8 and 6.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"accvm/internal/memory"
	"accvm/internal/program"
	"accvm/internal/sim"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dataMemorySize int
	var limit int

	cmd := &cobra.Command{
		Use:   "machine <code-path> <input-path> [debug-path]",
		Short: "Simulate a linked program file against an input file",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			debugPath := ""
			if len(args) == 3 {
				debugPath = args[2]
			}
			return run(args[0], args[1], debugPath, dataMemorySize, limit)
		},
		SilenceUsage: true,
	}
	cmd.Flags().IntVar(&dataMemorySize, "data-memory-size", memory.DefaultSize, "number of addressable words in data memory")
	cmd.Flags().IntVar(&limit, "limit", sim.DefaultLimit, "instruction-count ceiling before a graceful stop")
	return cmd
}

func run(codePath, inputPath, debugPath string, dataMemorySize, limit int) error {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	if debugPath != "" {
		f, err := os.Create(debugPath)
		if err != nil {
			return err
		}
		defer f.Close()
		log.SetOutput(f)
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}

	prog, err := program.ReadFile(codePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Reading code error")
		return err
	}

	input, err := readInput(inputPath)
	if err != nil {
		return err
	}

	result, err := sim.Run(prog, input, dataMemorySize, limit, log)
	fmt.Println(result.Output)
	fmt.Printf("instr_counter:  %d ticks: %d\n", result.InstrCounter, result.Ticks)
	if err != nil {
		log.WithError(err).Error("fatal control-unit error")
		return err
	}
	return nil
}

// readInput enqueues each character's code point followed by a
// terminating 0, per spec section 6's input file contract.
func readInput(path string) ([]int32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	codes := make([]int32, 0, len(data)+1)
	for _, r := range string(data) {
		codes = append(codes, int32(r))
	}
	codes = append(codes, 0)
	return codes, nil
}
