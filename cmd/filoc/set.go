package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var setWhere []string

func init() {
	setCmd.Flags().StringArrayVarP(&setWhere, "where", "w", nil, "Constraint key=value (repeatable)")
	rootCmd.AddCommand(setCmd)
}

var setCmd = &cobra.Command{
	Use:   "set field=value ... --where key=value",
	Short: "Update fields of the rows matching the constraints, under lock",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		updates, err := parseConstraints(args)
		if err != nil {
			return err
		}
		constraints, err := parseConstraints(setWhere)
		if err != nil {
			return err
		}
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		locked, err := lockWritable(ctx, ws)
		if err != nil {
			return err
		}
		defer releaseAll(locked)

		rows, err := ws.readAll(ctx, constraints)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("no row matches the constraints")
		}
		for _, row := range rows {
			for name, value := range updates {
				row.Set(name, value)
			}
		}
		if err := ws.writeAll(ctx, rows); err != nil {
			return err
		}
		fmt.Printf("updated %d row(s)\n", len(rows))
		return nil
	},
}

type heldLock interface {
	Release() error
}

// lockWritable acquires the tree lock of every writable source, in
// name order. On failure the locks taken so far are released.
func lockWritable(ctx context.Context, ws *workspace) ([]heldLock, error) {
	var locked []heldLock
	for _, name := range ws.names {
		f := ws.sources[name]
		if !f.Writable() {
			continue
		}
		lock, err := f.Lock(ctx)
		if err != nil {
			releaseAll(locked)
			return nil, fmt.Errorf("lock source %q: %w", name, err)
		}
		locked = append(locked, lock)
	}
	if len(locked) == 0 {
		return nil, fmt.Errorf("no writable source configured")
	}
	return locked, nil
}

func releaseAll(locks []heldLock) {
	for i := len(locks) - 1; i >= 0; i-- {
		_ = locks[i].Release()
	}
}
