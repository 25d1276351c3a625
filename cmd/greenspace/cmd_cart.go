package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/greenspace/reqgate/cart"
	"github.com/greenspace/reqgate/storage"
)

var (
	addName  string
	addPrice float64
	addQty   int
	addImage string
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Manage the guest cart kept in local storage",
}

func openGuest() (*cart.Guest, func(), error) {
	db, err := storage.OpenSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}
	return cart.NewGuest(db, logger), func() { db.Close() }, nil
}

var cartListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the guest cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		guest, closeFn, err := openGuest()
		if err != nil {
			return err
		}
		defer closeFn()

		items, err := guest.Items(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tQTY\tPRICE")
		for _, it := range items {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\n", it.ID, it.Name, it.Quantity, it.Price)
		}
		fmt.Fprintf(w, "\t\t\t%.2f\n", cart.Total(items))
		return w.Flush()
	},
}

var cartAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Add a product to the guest cart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		guest, closeFn, err := openGuest()
		if err != nil {
			return err
		}
		defer closeFn()
		return guest.Add(cmd.Context(), cart.Item{
			ID:       args[0],
			Name:     addName,
			Quantity: addQty,
			Price:    addPrice,
			Image:    addImage,
		})
	},
}

var cartSetCmd = &cobra.Command{
	Use:   "set <id> <quantity>",
	Short: "Change a line's quantity; 0 removes it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("quantity: %w", err)
		}
		guest, closeFn, err := openGuest()
		if err != nil {
			return err
		}
		defer closeFn()
		return guest.SetQuantity(cmd.Context(), args[0], q)
	},
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the guest cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		guest, closeFn, err := openGuest()
		if err != nil {
			return err
		}
		defer closeFn()
		return guest.Clear(cmd.Context())
	},
}

var cartMergeCmd = &cobra.Command{
	Use:   "merge <token>",
	Short: "Sign in and move the guest cart to the account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		guest, closeFn, err := openGuest()
		if err != nil {
			return err
		}
		defer closeFn()

		gate := newGate()
		defer gate.Close()
		store := cart.NewStore(gate, guest,
			cart.WithMergeLimit(cfg.Cart.MergeLimit),
			cart.WithStoreLogger(logger))
		defer store.Dispose()

		if err := store.Login(cmd.Context(), args[0]); err != nil {
			return err
		}
		items := store.Items()
		fmt.Fprintf(cmd.OutOrStdout(), "account cart: %d lines, %.2f total\n", len(items), cart.Total(items))
		return nil
	},
}

func init() {
	cartAddCmd.Flags().StringVar(&addName, "name", "", "product name")
	cartAddCmd.Flags().Float64Var(&addPrice, "price", 0, "unit price")
	cartAddCmd.Flags().IntVarP(&addQty, "quantity", "q", 1, "quantity")
	cartAddCmd.Flags().StringVar(&addImage, "image", "", "image URL")
	cartCmd.AddCommand(cartListCmd, cartAddCmd, cartSetCmd, cartClearCmd, cartMergeCmd)
}
