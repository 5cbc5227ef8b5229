package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/w1xm/em2rs/em2rs"
	"github.com/w1xm/em2rs/internal/config"
	"golang.org/x/sync/errgroup"
)

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Program, read back and start motion paths (slots 0-8)",
}

var pathFlags struct {
	relative     bool
	velocity     uint16
	acceleration uint16
	deceleration uint16
	pause        uint16
}

var pathSetCmd = &cobra.Command{
	Use:   "set SLOT POSITION",
	Short: "Program a position path",
	Args:  cobra.ExactArgs(2),
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		pos, err := strconv.ParseInt(args[1], 0, 32)
		if err != nil {
			return err
		}
		p, err := em2rs.NewPathConfig(slot)
		if err != nil {
			return err
		}
		p.Absolute = !pathFlags.relative
		p.Position = int32(pos)
		p.Velocity = pathFlags.velocity
		p.Acceleration = pathFlags.acceleration
		p.Deceleration = pathFlags.deceleration
		p.PauseTime = pathFlags.pause
		return c.ApplyPathConfig(p)
	}),
}

var pathApplyCmd = &cobra.Command{
	Use:   "apply SLOT",
	Short: "Program the path configured for SLOT",
	Args:  cobra.ExactArgs(1),
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		p, err := m.Path(slot)
		if err != nil {
			return err
		}
		return c.ApplyPathConfig(p)
	}),
}

var pathShowCmd = &cobra.Command{
	Use:   "show SLOT",
	Short: "Read back a path",
	Args:  cobra.ExactArgs(1),
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		p, motion, err := c.ReadPathConfig(slot)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "slot %d: %+v\ncontrol: %+v\n", slot, p, motion)
		return nil
	}),
}

var pathStartCmd = &cobra.Command{
	Use:   "start SLOT",
	Short: "Run a programmed path",
	Args:  cobra.ExactArgs(1),
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		return c.StartPath(slot)
	}),
}

var pathPauseCmd = &cobra.Command{
	Use:   "pause SLOT MS",
	Short: "Set the pause after a path",
	Args:  cobra.ExactArgs(2),
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		ms, err := parseUint(args[1], 16)
		if err != nil {
			return err
		}
		return c.SetPathPauseTime(slot, uint16(ms))
	}),
}

var jumpTo int

var pathMotionCmd = &cobra.Command{
	Use:   "motion SLOT none|position|velocity|homing",
	Short: "Rewrite the control word of a path",
	Args:  cobra.ExactArgs(2),
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		types := map[string]em2rs.PathMotionType{
			"none":     em2rs.MotionNone,
			"position": em2rs.MotionPosition,
			"velocity": em2rs.MotionVelocity,
			"homing":   em2rs.MotionHoming,
		}
		typ, ok := types[args[1]]
		if !ok {
			return fmt.Errorf("unknown motion type %q", args[1])
		}
		motion := em2rs.PathMotion{Type: typ, Absolute: !pathFlags.relative}
		if jumpTo >= 0 {
			motion.Jump = true
			motion.JumpTo = uint8(jumpTo)
		}
		return c.ConfigurePathMotion(slot, motion)
	}),
}

var homeCmd = &cobra.Command{
	Use:   "home",
	Short: "Configure and start homing",
}

var homeApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Write the configured homing settings",
	Args:  cobra.NoArgs,
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		h, err := m.HomingConfig()
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("motor %q has no homing configuration", m.Name)
		}
		return c.ApplyHomingConfig(*h)
	}),
}

var homeStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start homing with the settings already on the drive",
	Args:  cobra.NoArgs,
	RunE: withDrive(func(cmd *cobra.Command, m *config.Motor, c *em2rs.SyncClient, args []string) error {
		return c.StartHoming()
	}),
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write the whole configuration of the selected motor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, release, err := acquire()
		if err != nil {
			return err
		}
		defer release()
		m, err := s.motor()
		if err != nil {
			return err
		}
		c, err := s.client(m)
		if err != nil {
			return err
		}
		return m.Apply(cmd.Context(), c)
	},
}

var runFlags struct {
	slot     uint8
	setup    bool
	home     bool
	deadline time.Duration
	poll     time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run [MOTOR...]",
	Short: "Run a path on several motors at once and wait for all of them",
	Long: `run starts the same path slot on every named motor (all configured
motors by default) and polls until each reports the path complete.

With --setup each motor's configuration is written first; with --home each
motor is homed before the path starts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, release, err := acquire()
		if err != nil {
			return err
		}
		defer release()
		var motors []*config.Motor
		if len(args) == 0 {
			for i := range s.cfg.Motors {
				motors = append(motors, &s.cfg.Motors[i])
			}
		}
		for _, name := range args {
			m, err := s.cfg.Motor(name)
			if err != nil {
				return err
			}
			motors = append(motors, m)
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()
		ctx, cancel = context.WithTimeout(ctx, runFlags.deadline)
		defer cancel()
		g, ctx := errgroup.WithContext(ctx)
		for _, m := range motors {
			m := m
			c, err := s.client(m)
			if err != nil {
				return err
			}
			g.Go(func() error {
				if err := runMotor(ctx, m, c); err != nil {
					return fmt.Errorf("%s: %w", m.Name, err)
				}
				return nil
			})
		}
		return g.Wait()
	},
}

func runMotor(ctx context.Context, m *config.Motor, c *em2rs.Client) error {
	if runFlags.setup {
		if err := m.Apply(ctx, c); err != nil {
			return err
		}
	}
	if runFlags.home {
		if err := c.StartHoming(ctx); err != nil {
			return err
		}
		if err := waitFor(ctx, runFlags.poll, c.IsHomingCompleted); err != nil {
			return fmt.Errorf("homing: %w", err)
		}
		log.Printf("%s: homed", m.Name)
	}
	if err := c.StartPath(ctx, runFlags.slot); err != nil {
		return err
	}
	if err := waitFor(ctx, runFlags.poll, c.IsPathCompleted); err != nil {
		return fmt.Errorf("path %d: %w", runFlags.slot, err)
	}
	log.Printf("%s: path %d complete", m.Name, runFlags.slot)
	return nil
}

// waitFor polls done every interval until it reports true.
func waitFor(ctx context.Context, interval time.Duration, done func(context.Context) (bool, error)) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		ok, err := done(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func init() {
	for _, c := range []*cobra.Command{pathSetCmd, pathMotionCmd} {
		c.Flags().BoolVar(&pathFlags.relative, "relative", false, "position is relative to the current position")
	}
	pathSetCmd.Flags().Uint16Var(&pathFlags.velocity, "velocity", 100, "velocity in rpm")
	pathSetCmd.Flags().Uint16Var(&pathFlags.acceleration, "acceleration", 100, "acceleration in ms/1000rpm")
	pathSetCmd.Flags().Uint16Var(&pathFlags.deceleration, "deceleration", 100, "deceleration in ms/1000rpm")
	pathSetCmd.Flags().Uint16Var(&pathFlags.pause, "pause", 0, "pause after the path in ms")
	pathMotionCmd.Flags().IntVar(&jumpTo, "jump", -1, "slot to continue with after this path")
	pathCmd.AddCommand(pathSetCmd, pathApplyCmd, pathShowCmd, pathStartCmd, pathPauseCmd, pathMotionCmd)

	homeCmd.AddCommand(homeApplyCmd, homeStartCmd)

	runCmd.Flags().Uint8Var(&runFlags.slot, "slot", 0, "path slot to run")
	runCmd.Flags().BoolVar(&runFlags.setup, "setup", false, "write each motor's configuration first")
	runCmd.Flags().BoolVar(&runFlags.home, "home", false, "home each motor before the path")
	runCmd.Flags().DurationVar(&runFlags.deadline, "deadline", time.Minute, "give up after this long")
	runCmd.Flags().DurationVar(&runFlags.poll, "poll", 100*time.Millisecond, "status poll interval")

	rootCmd.AddCommand(pathCmd, homeCmd, setupCmd, runCmd)
}
