package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(lsCmd)
}

var lsCmd = &cobra.Command{
	Use:   "ls [key=value ...]",
	Short: "List the existing paths matching the constraints",
	RunE: func(cmd *cobra.Command, args []string) error {
		constraints, err := parseConstraints(args)
		if err != nil {
			return err
		}
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		for _, name := range ws.names {
			paths, err := ws.sources[name].ListPaths(constraints)
			if err != nil {
				return fmt.Errorf("source %q: %w", name, err)
			}
			for _, p := range paths {
				if ws.single != nil {
					fmt.Println(p)
				} else {
					fmt.Printf("%s\t%s\n", name, p)
				}
			}
		}
		return nil
	},
}
