package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/w1xm/em2rs/internal/trace"
)

var traceSlave int

var traceCmd = &cobra.Command{
	Use:   "trace FILE",
	Short: "Print a register trace written with --trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := trace.Open(args[0])
		if err != nil {
			return err
		}
		defer r.Close()
		out := cmd.OutOrStdout()
		var n, failed int
		var session string
		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("record %d: %w", n, err)
			}
			if traceSlave >= 0 && int(rec.Slave) != traceSlave {
				continue
			}
			n++
			if rec.Session != session {
				session = rec.Session
				fmt.Fprintf(out, "# session %s\n", session)
			}
			if rec.Err != "" {
				failed++
			}
			fmt.Fprintf(out, "%s (%v)\n", rec, rec.Duration)
		}
		fmt.Fprintf(out, "%d requests, %d failed\n", n, failed)
		return nil
	},
}

func init() {
	traceCmd.Flags().IntVar(&traceSlave, "only", -1, "only show requests to this slave")
	rootCmd.AddCommand(traceCmd)
}
