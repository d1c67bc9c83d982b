package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"pricescout/searchservice/internal/domain"
)

type searchOptions struct {
	sort    string
	inStock bool
	asJSON  bool
	budget  time.Duration
	noCache bool
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Searches every configured source and prints ranked offers.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, root, opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&opts.sort, "sort", string(domain.SortDefault), "Ordering: default, price, match or vendor.")
	cmd.Flags().BoolVar(&opts.inStock, "in-stock", false, "Only show offers that are in stock.")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print offers as JSON instead of a table.")
	cmd.Flags().DurationVar(&opts.budget, "budget", 0, "Overall search budget, e.g. 10s. Defaults to SEARCH_BUDGET.")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Bypass the shared response cache when CACHE_ENABLED is set.")
	return cmd
}

func runSearch(cmd *cobra.Command, root *rootOptions, opts *searchOptions, query string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if opts.budget < 0 {
		return errors.New("--budget must be positive")
	}
	if opts.budget > 0 {
		cfg.SearchBudget = opts.budget
		cfg.CallTimeout = min(cfg.CallTimeout, opts.budget)
	}

	runtime, err := root.buildRuntime(cmd, cfg)
	if err != nil {
		return err
	}
	defer runtime.Close()

	offers := runtime.Service.Search(cmd.Context(), domain.SearchRequest{
		Query:       query,
		InStockOnly: opts.inStock,
		Sort:        domain.NormalizeSortMode(opts.sort),
		NoCache:     opts.noCache,
	})

	if opts.asJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(offers)
	}
	if len(offers) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No offers found for %q.\n", query)
		return nil
	}
	renderOffers(cmd, offers)
	return nil
}

func renderOffers(cmd *cobra.Command, offers []domain.Offer) {
	t := newTable(cmd)
	t.AppendHeader(table.Row{"#", "Title", "Price", "Stock", "Source", "Match", "Link"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 60},
		{Number: 7, WidthMax: 70},
	})
	for i, offer := range offers {
		price := offer.PriceText
		if price == "" {
			price = "-"
		}
		if offer.BestPrice {
			price += " *"
		}
		stock := "no"
		if offer.InStock {
			stock = "yes"
		}
		match := "-"
		if offer.MatchScore != nil {
			match = fmt.Sprintf("%.2f", *offer.MatchScore)
		}
		t.AppendRow(table.Row{i + 1, offer.Title, price, stock, offer.Source, match, offer.Link})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d offers", len(offers)), "* best price"})
	t.Render()
}
