package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-litetouch/internal/bridges/litetouch"
	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/logging"
)

// panelOptions maps the panel section of config.yaml to client options.
// The transport is picked by the client: serial when a device is set.
func panelOptions(cfg *config.Config, logger litetouch.Logger) litetouch.ClientOptions {
	return litetouch.ClientOptions{
		Host:               cfg.Panel.Host,
		Port:               cfg.Panel.Port,
		SerialPort:         cfg.Panel.SerialPort,
		BaudRate:           cfg.Panel.BaudRate,
		PollInterval:       cfg.GetPollInterval(),
		KeepaliveIntervals: cfg.Panel.KeepaliveIntervals,
		SubscribeMask:      cfg.Panel.SubscribeMask,
		QueryTimeout:       cfg.GetQueryTimeout(),
		ConnectTimeout:     cfg.GetConnectTimeout(),
		Logger:             logger,
	}
}

// connectPanel dials the panel and starts its reader.
func connectPanel(ctx context.Context, cfg *config.Config, log *logging.Logger) (*litetouch.Client, error) {
	client, err := litetouch.Connect(ctx, panelOptions(cfg, log))
	if err != nil {
		return nil, fmt.Errorf("connecting to panel %s: %w", cfg.Panel.Address(), err)
	}
	log.Info("panel connected", "address", cfg.Panel.Address())
	return client, nil
}

// withPanel runs fn against a connected panel and closes it afterwards.
func (o *rootOptions) withPanel(cmd *cobra.Command, fn func(ctx context.Context, panel *litetouch.Client) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	log := cliLogger(cfg)
	defer log.Close() //nolint:errcheck // Best effort on exit

	ctx := cmd.Context()
	panel, err := connectPanel(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer panel.Close() //nolint:errcheck // Best effort on exit

	return fn(ctx, panel)
}

func newLoadCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Switch or dim a panel load",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "on <load>",
			Short: "Switch a load on",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				load, err := parseIntArg("load", args[0])
				if err != nil {
					return err
				}
				return opts.withPanel(cmd, func(ctx context.Context, panel *litetouch.Client) error {
					return panel.SetLoadOn(ctx, load)
				})
			},
		},
		&cobra.Command{
			Use:   "off <load>",
			Short: "Switch a load off",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				load, err := parseIntArg("load", args[0])
				if err != nil {
					return err
				}
				return opts.withPanel(cmd, func(ctx context.Context, panel *litetouch.Client) error {
					return panel.SetLoadOff(ctx, load)
				})
			},
		},
		&cobra.Command{
			Use:   "level <load> <0-100>",
			Short: "Set a load to a brightness level",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				load, err := parseIntArg("load", args[0])
				if err != nil {
					return err
				}
				level, err := parseIntArg("level", args[1])
				if err != nil {
					return err
				}
				return opts.withPanel(cmd, func(ctx context.Context, panel *litetouch.Client) error {
					return panel.SetLoadLevel(ctx, load, level)
				})
			},
		},
	)
	return cmd
}

func newSwitchCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switch",
		Short: "Operate keypad buttons",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <keypad> <button>",
		Short: "Press a keypad button",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keypad, button, err := parseButtonArgs(args)
			if err != nil {
				return err
			}
			return opts.withPanel(cmd, func(ctx context.Context, panel *litetouch.Client) error {
				return panel.ToggleSwitch(ctx, keypad, button)
			})
		},
	})
	return cmd
}

func newLEDCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "led",
		Short: "Read keypad button LEDs",
	}

	var single bool
	query := &cobra.Command{
		Use:   "query <keypad> <button>",
		Short: "Query one button LED",
		Long: `Query one button LED.

By default the whole keypad is read (CGLES) and the button's bit is
reported. --single asks for the button alone (CGLED), which also reports
the raw LED status value.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keypad, button, err := parseButtonArgs(args)
			if err != nil {
				return err
			}
			return opts.withPanel(cmd, func(ctx context.Context, panel *litetouch.Client) error {
				var ev litetouch.Event
				if single {
					ev, err = panel.QueryButtonLED(ctx, keypad, button)
				} else {
					ev, err = panel.QueryLEDState(ctx, keypad, button)
				}
				if err != nil {
					return err
				}
				printEvent(cmd.OutOrStdout(), ev)
				return nil
			})
		},
	}
	query.Flags().BoolVar(&single, "single", false, "Query the single button (CGLED)")

	cmd.AddCommand(query)
	return cmd
}

func newMonitorCmd(opts *rootOptions) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print LED events from the panel",
		Long: `Print every keypad LED event the panel reports until interrupted
(or until --duration elapses).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withPanel(cmd, func(ctx context.Context, panel *litetouch.Client) error {
				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}
				return monitor(ctx, panel, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

// monitorBuffer is the number of events held while output catches up.
const monitorBuffer = 64

// monitor prints events on the calling goroutine; the panel reader only
// queues them. Events arriving while the queue is full are dropped.
func monitor(ctx context.Context, panel litetouch.Connector, out io.Writer) error {
	events := make(chan litetouch.Event, monitorBuffer)
	panel.SetOnEvent(func(ev litetouch.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer panel.SetOnEvent(nil)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			printEvent(out, ev)
		}
	}
}

func printEvent(out io.Writer, ev litetouch.Event) {
	state := "off"
	if ev.State {
		state = "on"
	}
	fmt.Fprintf(out, "%s %s %s value=%d\n", ev.Kind, ev.ID(), state, ev.Value)
}

func parseButtonArgs(args []string) (keypad, button int, err error) {
	if keypad, err = parseIntArg("keypad", args[0]); err != nil {
		return 0, 0, err
	}
	if button, err = parseIntArg("button", args[1]); err != nil {
		return 0, 0, err
	}
	return keypad, button, nil
}
