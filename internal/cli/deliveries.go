package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildtall-systems/storebridge/internal/db"
)

var deliveriesLimit int

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "Inspect the delivery ledger",
}

var deliveriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent deliveries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		list, err := database.ListDeliveries(cmd.Context(), deliveriesLimit)
		if err != nil {
			return fmt.Errorf("listing deliveries: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No deliveries recorded.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tORDER\tRECIPIENT\tSTATUS\tEXECUTED\tQUEUED\tFAILED")
		for _, d := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
				d.CreatedAt.UTC().Format(time.RFC3339), d.OrderID, d.Recipient, status(d),
				len(d.Executed), len(d.Queued), len(d.Failed))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		total, failed, err := database.CountDeliveries(cmd.Context())
		if err != nil {
			return fmt.Errorf("counting deliveries: %w", err)
		}
		fmt.Fprintf(out, "%d delivery(ies), %d failed\n", total, failed)
		return nil
	},
}

var deliveriesOrderCmd = &cobra.Command{
	Use:   "order <order-id>",
	Short: "Show every delivery recorded for an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		list, err := database.DeliveriesForOrder(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("looking up order: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintf(out, "No deliveries for order %s.\n", args[0])
			return nil
		}
		for _, d := range list {
			printDelivery(out, d)
		}
		return nil
	},
}

var deliveriesShowCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Show one delivery by request id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = database.Close() }()

		d, err := database.GetDelivery(cmd.Context(), args[0])
		if errors.Is(err, db.ErrDeliveryNotFound) {
			return fmt.Errorf("no delivery with request id %s", args[0])
		}
		if err != nil {
			return fmt.Errorf("looking up delivery: %w", err)
		}
		printDelivery(cmd.OutOrStdout(), *d)
		return nil
	},
}

func init() {
	deliveriesListCmd.Flags().IntVar(&deliveriesLimit, "limit", 20, "maximum deliveries to show")
	deliveriesCmd.AddCommand(deliveriesListCmd)
	deliveriesCmd.AddCommand(deliveriesOrderCmd)
	deliveriesCmd.AddCommand(deliveriesShowCmd)
	rootCmd.AddCommand(deliveriesCmd)
}

func openLedger() (*db.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return database, nil
}

func status(d db.Delivery) string {
	if d.Success {
		return "ok"
	}
	return "failed"
}

func printDelivery(w io.Writer, d db.Delivery) {
	fmt.Fprintf(w, "%s  %s  order %s -> %s  [%s]\n",
		d.CreatedAt.UTC().Format(time.RFC3339), d.RequestID, d.OrderID, d.Recipient, status(d))
	for _, section := range []struct {
		label string
		cmds  []string
	}{
		{"executed", d.Executed},
		{"queued", d.Queued},
		{"failed", d.Failed},
	} {
		if len(section.cmds) > 0 {
			fmt.Fprintf(w, "  %s: %s\n", section.label, strings.Join(section.cmds, "; "))
		}
	}
	if d.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", d.Error)
	}
}
