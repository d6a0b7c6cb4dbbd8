// Command filoc drives filoc trees from the shell: list matching paths,
// read the joined rows, apply updates under lock. The trees are
// declared in an HCL configuration file.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeromerg/filoc/api"
)

var (
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "filoc.hcl", "Path to the source configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every storage read and write")
}

var rootCmd = &cobra.Command{
	Use:           "filoc",
	Short:         "Query and update file trees with typed path placeholders",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// parseConstraints turns key=value arguments into a typed binding.
// Values parse as int (including 0x/0o/0b), then float, then bool,
// and fall back to string.
func parseConstraints(args []string) (api.Binding, error) {
	if len(args) == 0 {
		return nil, nil
	}
	b := api.Binding{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		b[key] = parseValue(raw)
	}
	return b, nil
}

func parseValue(raw string) any {
	if i, err := strconv.ParseInt(raw, 0, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if v, err := strconv.ParseBool(raw); err == nil {
		return v
	}
	return raw
}
