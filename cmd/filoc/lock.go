package main

import (
	"fmt"

	"github.com/spf13/cobra"

	filoc "github.com/jeromerg/filoc"
)

var (
	lockSource  string
	lockRelease bool
)

func init() {
	lockCmd.Flags().StringVarP(&lockSource, "source", "s", "", "Source to inspect (needed with several sources)")
	lockCmd.Flags().BoolVar(&lockRelease, "release", false, "Force-release a stale lock sentinel")
	rootCmd.AddCommand(lockCmd)
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect or force-release the tree lock of a source",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		f, err := ws.source(lockSource)
		if err != nil {
			return err
		}
		sentinel := f.Locks().SentinelPath(filoc.DefaultLockName)
		if lockRelease {
			if err := f.Locks().ForceRelease(filoc.DefaultLockName); err != nil {
				return err
			}
			fmt.Printf("released %s\n", sentinel)
			return nil
		}
		fmt.Println(sentinel)
		return nil
	},
}
