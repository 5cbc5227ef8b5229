package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.bug.st/serial"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run commands against one open bus",
	Long: `shell reads em2rsctl commands line by line and runs them on a single
bus connection. Simulated drives keep their state between lines.

Flags of a command apply to that line only; global flags such as --motor
stay in effect once given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "em2rs> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("starting readline: %w", err)
		}
		defer rl.Close()

		shared = s
		defer func() { shared = nil }()
		defer log.SetOutput(log.Writer())
		log.SetOutput(rl.Stderr())
		root := cmd.Root()
		root.SetOut(rl.Stdout())
		root.SetErr(rl.Stderr())
		defer root.SetOut(nil)
		defer root.SetErr(nil)

		for {
			line, err := rl.Readline()
			if err == readline.ErrInterrupt {
				continue
			}
			if err != nil {
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "exit", "quit":
				return nil
			case "shell":
				fmt.Fprintln(rl.Stderr(), "already in a shell")
				continue
			}
			resetFlags(root)
			root.SetArgs(fields)
			// cobra has already printed the error.
			_ = root.Execute()
		}
	},
}

// resetFlags puts the command-local flags of every subcommand back to their
// defaults, since the flag variables outlive a single Execute.
func resetFlags(c *cobra.Command) {
	c.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := serial.GetPortsList()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no serial ports found")
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(shellCmd, portsCmd)
}
