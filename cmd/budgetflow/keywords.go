package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bbirdsall/budgetflow/internal/cli"
	"github.com/bbirdsall/budgetflow/internal/model"
)

func keywordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keywords",
		Short: "Manage keyword classification rules",
		Long:  `List, add, and remove the keyword rules used to categorize transactions.`,
	}

	cmd.AddCommand(listKeywordsCmd())
	cmd.AddCommand(addKeywordCmd())
	cmd.AddCommand(removeKeywordCmd())

	return cmd
}

func listKeywordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all keyword rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := initStores(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			ruleSet, err := s.rules.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list keywords: %w", err)
			}

			if len(ruleSet) == 0 {
				fmt.Println(cli.InfoStyle.Render("No keywords found. Use 'budgetflow keywords add' to create one."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()

			fmt.Fprintf(w, "%s\t%s\t%s\n",
				cli.BoldStyle.Render("Keyword"),
				cli.BoldStyle.Render("Category"),
				cli.BoldStyle.Render("Amount"))
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				strings.Repeat("-", 24),
				strings.Repeat("-", 10),
				strings.Repeat("-", 8))

			for _, rule := range ruleSet {
				amount := ""
				if rule.HasAmount() {
					amount = fmt.Sprintf("$%.2f", *rule.Amount)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", rule.Keyword, rule.Category, amount)
			}

			return nil
		},
	}
}

func addKeywordCmd() *cobra.Command {
	var amount float64

	cmd := &cobra.Command{
		Use:   "add <keyword> <category>",
		Short: "Add a keyword rule",
		Long: `Adds a rule mapping a keyword to a category. With --amount the rule only
matches transactions of exactly that amount, which lets the same merchant
split across categories (e.g. a small fuel-stop purchase that is food).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := initStores(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			rule := model.Rule{Keyword: args[0], Category: args[1]}
			if cmd.Flags().Changed("amount") {
				rule.Amount = &amount
			}

			if err := s.rules.Add(ctx, rule); err != nil {
				return fmt.Errorf("failed to add keyword: %w", err)
			}

			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("Added keyword %q → %s", rule.Keyword, rule.Category)))
			return nil
		},
	}

	cmd.Flags().Float64Var(&amount, "amount", 0, "only match transactions of exactly this amount")

	return cmd
}

func removeKeywordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <keyword>",
		Short: "Remove a keyword rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := initStores(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.rules.Remove(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to remove keyword: %w", err)
			}

			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("Removed keyword %q", args[0])))
			return nil
		},
	}
}
