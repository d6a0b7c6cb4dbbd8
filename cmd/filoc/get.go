package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeromerg/filoc/api"
	"github.com/jeromerg/filoc/internal/codec"
)

var getFormat string

func init() {
	getCmd.Flags().StringVarP(&getFormat, "format", "f", "json", "Output format: json or csv")
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get [key=value ...]",
	Short: "Read the rows matching the constraints",
	RunE: func(cmd *cobra.Command, args []string) error {
		constraints, err := parseConstraints(args)
		if err != nil {
			return err
		}
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		rows, err := ws.readAll(cmd.Context(), constraints)
		if err != nil {
			return err
		}
		return emitRows(rows)
	},
}

func emitRows(rows []*api.Record) error {
	var enc api.Codec
	switch getFormat {
	case "json":
		enc = codec.JSON{Multi: true}
	case "csv":
		enc = codec.CSV{}
	default:
		return fmt.Errorf("unknown format %q", getFormat)
	}
	data, err := enc.Encode(rows)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
