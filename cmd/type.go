package cmd

import (
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/internal/device"
	"github.com/xkilldash9x/hmi-harness/internal/screenkb"
)

func newTypeCmd(a *app) *cobra.Command {
	var screen bool
	typeCmd := &cobra.Command{
		Use:   "type <device> <text>",
		Short: "Type text on a device",
		Long: `Type sends text to the named device through its physical keyboard or,
with --screen, by clicking the keys of its on-screen keyboard. The on-screen
keyboard accepts letters, digits and '#', and submits with its Enter key.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name, text := deviceName(args[0]), args[1]
			a.applyFlags(cmd.Flags())

			b, err := a.openBench(ctx, name)
			if err != nil {
				return err
			}
			defer func() {
				if err := b.Close(); err != nil {
					a.logger.Warn("Error during device shutdown.", zap.Error(err))
				}
			}()
			s, err := b.Session(name)
			if err != nil {
				return err
			}

			if screen {
				kb, err := screenkb.New(ctx, s.Display, s.Mouse, s.Resources,
					screenkb.WithClock(s.Clock), screenkb.WithLogger(s.Logger))
				if err != nil {
					return err
				}
				if err := kb.Type(ctx, text, a.cfg.Harness().CharDelay); err != nil {
					return err
				}
			} else {
				if s.Keyboard == nil {
					return fmt.Errorf("device %q: %w: keyboard (try --screen)", name, device.ErrMissingCapability)
				}
				if err := s.Keyboard.Type(ctx, text); err != nil {
					return err
				}
			}

			a.logger.Info("Text typed.",
				zap.String("device", name),
				zap.Int("chars", utf8.RuneCountInString(text)),
				zap.Bool("screen_keyboard", screen))
			return nil
		},
	}
	typeCmd.Flags().BoolVar(&screen, "screen", false, "Use the on-screen keyboard")
	typeCmd.Flags().Duration("char-delay", 0, "Delay between on-screen keyboard characters. (Overrides config/env)")
	return typeCmd
}
