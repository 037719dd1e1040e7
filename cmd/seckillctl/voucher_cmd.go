package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"flash-sale/internal/domain"
)

func newVoucherCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voucher",
		Short: "Publish flash-sale vouchers and inspect their stock",
	}
	cmd.AddCommand(newVoucherPublishCommand(c), newVoucherRepublishCommand(c), newVoucherRemainingCommand(c))
	return cmd
}

func newVoucherPublishCommand(c *cli) *cobra.Command {
	var (
		shopID      int64
		title       string
		payValue    string
		actualValue string
		stock       int
		begin       string
		end         string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Store a voucher and seed its stock and sale window",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := &domain.Voucher{ShopID: shopID, Title: title, Stock: stock}
			var err error
			if v.PayValue, err = decimal.NewFromString(payValue); err != nil {
				return fmt.Errorf("--pay-value: %w", err)
			}
			if v.ActualValue, err = decimal.NewFromString(actualValue); err != nil {
				return fmt.Errorf("--actual-value: %w", err)
			}
			if v.BeginTime, err = parseTime(begin); err != nil {
				return fmt.Errorf("--begin: %w", err)
			}
			if v.EndTime, err = parseTime(end); err != nil {
				return fmt.Errorf("--end: %w", err)
			}

			infra, err := c.connect(cmd)
			if err != nil {
				return err
			}
			if err := infra.SeckillService().PublishVoucher(cmd.Context(), v); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "published voucher %d with stock %d\n", v.ID, v.Stock)
			return err
		},
	}
	cmd.Flags().Int64Var(&shopID, "shop", 0, "shop id")
	cmd.Flags().StringVar(&title, "title", "", "voucher title")
	cmd.Flags().StringVar(&payValue, "pay-value", "0", "price paid")
	cmd.Flags().StringVar(&actualValue, "actual-value", "0", "value received")
	cmd.Flags().IntVar(&stock, "stock", 0, "units for sale")
	cmd.Flags().StringVar(&begin, "begin", "", "sale start (RFC3339), empty for none")
	cmd.Flags().StringVar(&end, "end", "", "sale end (RFC3339), empty for none")
	_ = cmd.MarkFlagRequired("shop")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("stock")
	return cmd
}

func newVoucherRepublishCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "republish <voucher-id>",
		Short: "Re-seed the gate from the stored voucher",
		Long: "Re-seed the gate's stock counter and sale window from the database.\n" +
			"Use after the coordination store lost its data. Users already admitted are not restored.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			infra, err := c.connect(cmd)
			if err != nil {
				return err
			}
			v, err := infra.SeckillService().RepublishVoucher(cmd.Context(), id)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "republished voucher %d with stock %d\n", v.ID, v.Stock)
			return err
		},
	}
}

func newVoucherRemainingCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remaining <voucher-id>",
		Short: "Print the gate's remaining stock for a voucher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			infra, err := c.connect(cmd)
			if err != nil {
				return err
			}
			n, err := infra.Gate.Remaining(cmd.Context(), id)
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("voucher %d is not published", id)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
			return err
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", s, domain.ErrInvalidArgument)
	}
	return id, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
