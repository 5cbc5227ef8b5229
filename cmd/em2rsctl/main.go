// Command em2rsctl configures and drives EM2RS stepper controllers.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	configPath string
	motorName  string

	// Used when no config file is given
	portName    string
	baudRate    int
	parity      string
	timeout     time.Duration
	bridgeURL   string
	simulate    bool
	slaveID     uint8
	pulsePerRev uint16

	tracePath   string
	verbose     bool
	askPassword bool
)

var rootCmd = &cobra.Command{
	Use:   "em2rsctl",
	Short: "Configure and drive EM2RS stepper controllers over Modbus RTU",
	Long: `em2rsctl talks to EM2RS drives on an RS-485 line, either directly
(--port) or through cmd/modbus_server (--url).

Motors are described in a YAML file (--config); without one, a single motor
is addressed with --slave and --pulse-per-rev. With several motors in the
file, pick one with --motor.

The bridge password is read from the EM2RS_PASSWORD environment variable,
or asked for with --ask-password.`,
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "YAML bus and motor configuration")
	f.StringVarP(&motorName, "motor", "m", "", "motor name from the configuration")

	f.StringVarP(&portName, "port", "p", "", "RS-485 serial port")
	f.IntVarP(&baudRate, "baud", "b", 0, "baud rate (default 19200)")
	f.StringVar(&parity, "parity", "", "parity: N, E or O")
	f.DurationVar(&timeout, "timeout", 0, "time to wait for a drive to answer (default 1s)")
	f.StringVarP(&bridgeURL, "url", "u", "", "modbus_server bridge URL")
	f.BoolVar(&askPassword, "ask-password", false, "prompt for the bridge password")
	f.BoolVar(&simulate, "simulate", false, "use simulated drives instead of a bus")
	f.Uint8VarP(&slaveID, "slave", "s", 1, "slave id when no configuration is given")
	f.Uint16Var(&pulsePerRev, "pulse-per-rev", 10000, "pulses per revolution when no configuration is given")

	f.StringVar(&tracePath, "trace", "", "append every register request to this CBOR file")
	f.BoolVarP(&verbose, "verbose", "v", false, "log every register request")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
