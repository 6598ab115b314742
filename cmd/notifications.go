package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var testUserID int64

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List and test notificators",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the enabled notificator types",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		for _, t := range cfg.NotificatorTypes {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
		return nil
	},
}

var notificationsTestCmd = &cobra.Command{
	Use:   "test [type]",
	Short: "Send a test event through one notificator, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runNotificationsTest,
}

func init() {
	notificationsTestCmd.Flags().Int64Var(&testUserID, "user", 0, "user to address (0 addresses everyone)")

	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsTestCmd)
}

func runNotificationsTest(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.NotificationDeliveryTimeout+5*time.Second)
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.buildNotifications(false); err != nil {
		return err
	}

	if len(args) == 0 {
		if err := a.registry.TestAll(ctx, testUserID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "tested %v\n", a.registry.Types())
		return nil
	}

	if err := a.registry.Test(ctx, args[0], testUserID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "tested %s\n", args[0])
	return nil
}
