package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/w1xm/em2rs/em2rs"
	"github.com/w1xm/em2rs/internal/config"
)

type driveFunc func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error

// withDrive opens the bus and runs f against the selected motor.
func withDrive(f driveFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, release, err := acquire()
		if err != nil {
			return err
		}
		defer release()
		m, err := s.motor()
		if err != nil {
			return err
		}
		c, err := s.syncClient(m)
		if err != nil {
			return err
		}
		return f(cmd, m, c, args)
	}
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %w", s, err)
	}
	return v, nil
}

func parseSlot(s string) (uint8, error) {
	v, err := parseUint(s, 8)
	return uint8(v), err
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "enable":
		return true, nil
	case "off", "false", "0", "disable":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write pulses/rev, direction, peak current and inductance",
	Args:  cobra.NoArgs,
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		return c.Init()
	}),
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Quick-stop any motion",
	Args:  cobra.NoArgs,
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		return c.StopMotor()
	}),
}

var jogCmd = &cobra.Command{
	Use:   "jog cw|ccw",
	Short: "Jog until stopped",
	Args:  cobra.ExactArgs(1),
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		d, err := em2rs.ParseDirection(args[0])
		if err != nil {
			return err
		}
		return c.JogMotor(d)
	}),
}

var zeroCmd = &cobra.Command{
	Use:   "zero",
	Short: "Make the current position the origin",
	Args:  cobra.NoArgs,
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		return c.ManualZero()
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show motion status, alarms and I/O levels",
	Args:  cobra.NoArgs,
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		out := cmd.OutOrStdout()
		status, err := c.MotionStatus()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "motion:  %#04x %s\n", uint16(status), strings.Join(status.Flags(), " "))
		alarm, err := c.CurrentAlarm()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "alarm:   %#04x %s\n", uint16(alarm), strings.Join(alarm.Active(), " "))
		in, err := c.InputStatus()
		if err != nil {
			return err
		}
		outputs, err := c.OutputStatus()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "inputs: ")
		for no := uint8(1); no <= em2rs.NumInputs; no++ {
			fmt.Fprintf(out, " SI%d=%v", no, in.Active(no))
		}
		fmt.Fprintf(out, "\noutputs:")
		for no := uint8(1); no <= em2rs.NumOutputs; no++ {
			fmt.Fprintf(out, " SO%d=%v", no, outputs.Active(no))
		}
		fmt.Fprintln(out)
		return nil
	}),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the drive's version and firmware words",
	Args:  cobra.NoArgs,
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		v, err := c.Version()
		if err != nil {
			return err
		}
		fw, err := c.FirmwareInfo()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version %#04x firmware %#04x\n", v, fw)
		return nil
	}),
}

var saveMapping bool

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save parameters (or the I/O mapping) to EEPROM",
	Args:  cobra.NoArgs,
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		if saveMapping {
			return c.SaveMappingEEPROM()
		}
		return c.SaveParamEEPROM()
	}),
}

var saveStatusCmd = &cobra.Command{
	Use:   "save-status",
	Short: "Show the result of the last EEPROM save",
	Args:  cobra.NoArgs,
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		s, err := c.SaveStatus()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	}),
}

var factoryReset bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore default parameters, keeping the motor parameters unless --factory",
	Args:  cobra.NoArgs,
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		if factoryReset {
			return c.FactoryReset()
		}
		return c.ParamReset()
	}),
}

var alarmHistory bool

var clearAlarmCmd = &cobra.Command{
	Use:   "clear-alarm",
	Short: "Clear the current alarm (or the alarm history)",
	Args:  cobra.NoArgs,
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		if alarmHistory {
			return c.ResetAlarmHistory()
		}
		return c.ResetCurrentAlarm()
	}),
}

var currentCmd = &cobra.Command{
	Use:   "current AMPS",
	Short: "Set the peak phase current",
	Args:  cobra.ExactArgs(1),
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		amps, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return err
		}
		return c.SetPeakCurrent(amps)
	}),
}

var inductanceCmd = &cobra.Command{
	Use:   "inductance VALUE",
	Short: "Set the motor inductance parameter",
	Args:  cobra.ExactArgs(1),
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		v, err := parseUint(args[0], 16)
		if err != nil {
			return err
		}
		return c.SetMotorInductance(uint16(v))
	}),
}

var enableCmd = &cobra.Command{
	Use:   "enable on|off",
	Short: "Force the drive enabled regardless of the enable input",
	Args:  cobra.ExactArgs(1),
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return c.ForcedEnable(on)
	}),
}

var globalCmd = &cobra.Command{
	Use:   "global soft-limit|ctrg-double-edge|ctrg-level|power-up-homing on|off",
	Short: "Change one flag of the PR global control register",
	Args:  cobra.ExactArgs(2),
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		on, err := parseOnOff(args[1])
		if err != nil {
			return err
		}
		switch args[0] {
		case "soft-limit":
			return c.SoftLimitControl(on)
		case "ctrg-double-edge":
			return c.SetCTRGEffectiveEdge(on)
		case "ctrg-level":
			return c.SetCTRGTriggerType(on)
		case "power-up-homing":
			return c.HomingPowerUpControl(on)
		}
		return fmt.Errorf("unknown flag %q", args[0])
	}),
}

var limitsCmd = &cobra.Command{
	Use:   "limits [MIN MAX]",
	Short: "Show or set the soft position limits",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected no arguments or MIN MAX")
		}
		return nil
	},
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		if len(args) == 2 {
			lo, err := strconv.ParseInt(args[0], 0, 32)
			if err != nil {
				return err
			}
			hi, err := strconv.ParseInt(args[1], 0, 32)
			if err != nil {
				return err
			}
			if err := c.SetSoftLimitMax(int32(hi)); err != nil {
				return err
			}
			return c.SetSoftLimitMin(int32(lo))
		}
		l, err := c.SoftLimits()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "min %d max %d\n", l.Min, l.Max)
		return nil
	}),
}

var normallyClosed bool

var inputCmd = &cobra.Command{
	Use:   "input NO FUNCTION",
	Short: "Assign a function to digital input SI1-SI7",
	Args:  cobra.ExactArgs(2),
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		no, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		f, err := em2rs.ParseInputFunction(args[1])
		if err != nil {
			return err
		}
		return c.ConfigureInput(no, f, normallyClosed)
	}),
}

var outputCmd = &cobra.Command{
	Use:   "output NO FUNCTION",
	Short: "Assign a function to digital output SO1-SO3",
	Args:  cobra.ExactArgs(2),
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		no, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		f, err := em2rs.ParseOutputFunction(args[1])
		if err != nil {
			return err
		}
		return c.ConfigureOutput(no, f, normallyClosed)
	}),
}

var jogParams em2rs.JogParams

var jogParamsCmd = &cobra.Command{
	Use:   "jog-params",
	Short: "Set jog velocity and timing",
	Args:  cobra.NoArgs,
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		return c.SetJogParams(jogParams)
	}),
}

func init() {
	saveCmd.Flags().BoolVar(&saveMapping, "mapping", false, "save the I/O mapping instead of the parameters")
	resetCmd.Flags().BoolVar(&factoryReset, "factory", false, "restore every parameter, including the motor parameters")
	clearAlarmCmd.Flags().BoolVar(&alarmHistory, "history", false, "clear the alarm history")
	inputCmd.Flags().BoolVar(&normallyClosed, "nc", false, "normally closed")
	outputCmd.Flags().BoolVar(&normallyClosed, "nc", false, "normally closed")
	jogParamsCmd.Flags().Uint16Var(&jogParams.Velocity, "velocity", 60, "jog velocity in rpm")
	jogParamsCmd.Flags().Uint16Var(&jogParams.Interval, "interval", 100, "jog interval in ms")
	jogParamsCmd.Flags().Uint16Var(&jogParams.RunningTime, "running-time", 0, "jog running time in ms")
	jogParamsCmd.Flags().Uint16Var(&jogParams.AccDecTime, "acc-dec-time", 100, "jog acceleration time in ms/1000rpm")

	rootCmd.AddCommand(initCmd, stopCmd, jogCmd, zeroCmd, statusCmd, versionCmd,
		saveCmd, saveStatusCmd, resetCmd, clearAlarmCmd, currentCmd, inductanceCmd,
		enableCmd, globalCmd, limitsCmd, inputCmd, outputCmd, jogParamsCmd)
}
