// Command translator compiles source written in the parenthesized
// expression language of spec section 3 into a serialized program file
// (spec section 6).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"accvm/internal/codegen"
	"accvm/internal/lexer"
	"accvm/internal/program"
	"accvm/internal/syntax"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translator <source-path> <target-path>",
		Short: "Compile a source program into a linked instruction list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return translate(args[0], args[1])
		},
		SilenceUsage: true,
	}
	return cmd
}

func translate(sourcePath, targetPath string) error {
	log := logrus.StandardLogger()

	source, err := os.ReadFile(sourcePath)
	if err != nil {
		log.WithError(err).Error("reading source")
		return err
	}

	tokens := lexer.Tokenize(string(source))
	root, err := syntax.Parse(tokens)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	compiler := codegen.New(tokens)
	globalData, instrs, err := compiler.Compile(root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	prog := program.Program{GlobalData: globalData, Instructions: instrs}
	if err := program.WriteFile(targetPath, prog); err != nil {
		log.WithError(err).Error("writing target")
		return err
	}

	loc := countLines(string(source))
	fmt.Printf("source LoC: %d code instr: %d\n", loc, len(instrs))
	return nil
}

func countLines(s string) int {
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
