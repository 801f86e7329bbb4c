package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/partytap/internal/checkout"
	"github.com/rewired-gh/partytap/internal/config"
	"github.com/rewired-gh/partytap/internal/failure"
	"github.com/rewired-gh/partytap/internal/halo"
	"github.com/rewired-gh/partytap/internal/indexer"
	"github.com/rewired-gh/partytap/internal/models"
	"github.com/rewired-gh/partytap/internal/party"
	"github.com/rewired-gh/partytap/internal/purchase"
	"github.com/rewired-gh/partytap/internal/series"
	"github.com/rewired-gh/partytap/internal/storage"
	"github.com/rewired-gh/partytap/internal/wristband"
)

var partyCmd = &cobra.Command{
	Use:   "party",
	Short: "Show the party contract, beer price and account balances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.party.Info(ctx, cfg.PartyAddress())
		if err != nil {
			return err
		}
		price, err := a.party.Price(ctx, info.Address)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Party\t%s\n", info.Address.Hex())
		fmt.Fprintf(w, "Operator\t%s\n", info.Owner.Hex())
		fmt.Fprintf(w, "Beer token\t%s\n", info.Beer.Hex())
		fmt.Fprintf(w, "USDC\t%s\n", info.USDC.Hex())
		fmt.Fprintf(w, "Price\t%s USDC\n", party.FormatUSDC(price))

		if a.chain.CanSign() {
			account := a.chain.Address()
			beer, err := a.party.TokenBalance(ctx, info.Beer, account)
			if err != nil {
				return err
			}
			usdc, err := a.party.TokenBalance(ctx, info.USDC, account)
			if err != nil {
				return err
			}
			allowance, err := a.party.Allowance(ctx, info.USDC, account, info.Address)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Account\t%s\n", account.Hex())
			fmt.Fprintf(w, "Beer balance\t%s\n", party.FormatUnits(beer, 0))
			fmt.Fprintf(w, "USDC balance\t%s\n", party.FormatUSDC(usdc))
			fmt.Fprintf(w, "Allowance\t%s\n", party.FormatUSDC(allowance))
			fmt.Fprintf(w, "Operator account\t%t\n", account == info.Owner)
		}
		return w.Flush()
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Resolve the display name of the signing account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.chain.CanSign() {
			return errors.New("wallet.private_key is required for this command")
		}
		name, err := a.primary.Refetch(ctx)
		if err != nil {
			return err
		}
		if name == "" {
			name = "(no name)"
		}
		fmt.Printf("%s\t%s\n", a.chain.Address().Hex(), name)
		return nil
	},
}

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Print the purchase price series and its view window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		s, err := newFeed(cfg).Fetch(cmd.Context())
		if err != nil {
			return err
		}
		window, ok := series.ViewWindow(s)

		if asJSON {
			out := struct {
				Rows   [][]any        `json:"rows"`
				Window *series.Window `json:"window,omitempty"`
			}{Rows: s.Rows()}
			if ok {
				out.Window = &window
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		if s.Empty() {
			fmt.Println("No purchases yet")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "Block\tOpen\tLow\tHigh\tClose")
		for _, p := range s.Points {
			fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%.2f\t%.2f\n", p.X, p.Open, p.Low, p.High, p.Close)
		}
		fmt.Fprintf(w, "Window\t%.2f\t%.2f\n", window.Min, window.Max)
		return w.Flush()
	},
}

var buyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Approve the allowance and buy one beer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		sess, _, err := a.session(ctx)
		if err != nil {
			return err
		}

		orch := purchase.New(a.submitter(), a.party, a.feed)
		rec, err := orch.Purchase(ctx, sess)
		if rec == nil {
			if failure.Is(err, failure.KindIdentityUnresolved) {
				return fmt.Errorf("%s has no display name; register one before buying: %w", sess.Account.Hex(), err)
			}
			return err
		}

		fmt.Printf("Beer balance: %s\n", party.FormatUnits(rec.BeerBalance, 0))
		fmt.Printf("USDC balance: %s\n", party.FormatUSDC(rec.USDCBalance))
		if rec.Series != nil {
			if last, ok := rec.Series.Last(); ok {
				fmt.Printf("Last price:   %.2f (block %d)\n", last.Close, last.X)
			}
		}

		if tg := a.notifier(); tg != nil {
			if sendErr := tg.SendPurchase(sess.DisplayName, rec.BeerBalance, rec.USDCBalance); sendErr != nil {
				fmt.Fprintf(os.Stderr, "Failed to send purchase notification: %v\n", sendErr)
			}
		}
		return err
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Scan a wristband and burn beers from its holder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		quantity, _ := cmd.Flags().GetInt64("quantity")

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		sess, info, err := a.session(ctx)
		if err != nil {
			return err
		}
		if info.Owner != sess.Account {
			return fmt.Errorf("%s is not the operator of party %s", sess.Account.Hex(), info.Address.Hex())
		}

		bridge := wristband.NewBridge(halo.NewClient(cfg.NFC.BridgeURL, cfg.NFC.Timeout), a.resolver)
		s := checkout.New(a.submitter(), a.party).Open(sess, bridge)
		if err := s.SetQuantity(quantity); err != nil {
			return err
		}

		fmt.Println("Tap the wristband on the reader...")
		holder, err := s.ScanHolder(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Holder: %s\n", holder.Label())

		res, err := s.Checkout(ctx)
		if res == nil {
			return err
		}
		fmt.Printf("Checked out %d beer(s) for %s in %s\n", quantity, holder.Label(), res.TxHash.Hex())
		fmt.Printf("Beer balance: %s\n", party.FormatUnits(res.BeerBalance, 0))

		if tg := a.notifier(); tg != nil {
			if sendErr := tg.SendCheckout(holder, quantity); sendErr != nil {
				fmt.Fprintf(os.Stderr, "Failed to send checkout notification: %v\n", sendErr)
			}
		}
		return err
	},
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List recently journaled transactions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		store, err := storage.New(cfg.Storage.MaxTransactions, cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()

		txs, err := store.Recent(limit)
		if err != nil {
			return err
		}
		printJournal(txs)
		return nil
	},
}

func printJournal(txs []*models.PendingTransaction) {
	if len(txs) == 0 {
		fmt.Println("No journaled transactions")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Submitted\tKind\tState\tChain\tHash\tError")
	for _, pt := range txs {
		hash := "-"
		if pt.Hash != (common.Hash{}) {
			hash = pt.Hash.Hex()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			pt.SubmittedAt.Format(time.RFC3339), pt.Kind, pt.State, pt.ChainID, hash, pt.Error)
	}
	w.Flush()
}

func newFeed(cfg *config.Config) *series.Feed {
	return series.NewFeed(indexer.NewClient(cfg.Indexer.URL, cfg.Indexer.Limit, cfg.Indexer.Timeout))
}
