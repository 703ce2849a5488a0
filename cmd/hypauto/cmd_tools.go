package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"hypauto/internal/classify"
	"hypauto/internal/portal"
	"hypauto/internal/protocol"
	"hypauto/internal/quota"
	"hypauto/internal/secrets"
	"hypauto/internal/update"
)

// =============================================================================
// PIN
// =============================================================================

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Store or clear the e-signature PIN (age-encrypted)",
}

var pinSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Read the PIN from stdin and store it encrypted",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(cmd.ErrOrStderr(), "PIN: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read PIN: %w", err)
		}
		if err := ageStore().SetPIN(line); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "PIN stored")
		return nil
	},
}

var pinClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored PIN",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ageStore().Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "PIN cleared")
		return nil
	},
}

func ageStore() *secrets.AgeStore {
	return secrets.NewAgeStore(cfg.Resolve(cfg.Paths.IdentityFile), cfg.Resolve(cfg.Paths.PINFile))
}

// =============================================================================
// CLASSIFY
// =============================================================================

var (
	classifyHTML     string
	classifyURL      string
	classifyProtocol string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a saved portal page the way a protocol would",
	Long: `Reads an HTML snapshot and prints the state the chosen protocol's table
assigns to it. Useful when the portal changes its markup.

Example:
  hypauto classify --html page.html --url "https://hyp.saglik.gov.tr/#/diyabet/laboratuvar" --protocol DIY_TARAMA`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := quota.ParseTaskType(classifyProtocol)
		if err != nil {
			return err
		}
		spec, ok := protocol.For(t)
		if !ok {
			return fmt.Errorf("no protocol for %s", t)
		}

		f, err := os.Open(classifyHTML)
		if err != nil {
			return err
		}
		defer f.Close()
		page, err := portal.NewHTMLPage(classifyURL, f)
		if err != nil {
			return fmt.Errorf("parse %s: %w", classifyHTML, err)
		}

		state := classify.Classify(page, spec.Table)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", spec.Name, state)
		if verbose {
			for _, line := range strings.Split(page.VisibleText(), "\n") {
				fmt.Fprintf(cmd.OutOrStdout(), "  | %s\n", line)
			}
		}
		return nil
	},
}

// =============================================================================
// UPDATE
// =============================================================================

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check whether a newer release is published",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.GetUpdateTimeout())
		defer cancel()
		res, err := update.Check(ctx, &http.Client{Timeout: cfg.GetUpdateTimeout()}, cfg.Update.URL, update.Version)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !res.Available {
			fmt.Fprintf(out, "hypauto %s is up to date\n", res.Current)
			return nil
		}
		fmt.Fprintf(out, "hypauto %s is available (running %s)\n", res.Remote, res.Current)
		if res.Manifest.DownloadURL != "" {
			fmt.Fprintf(out, "Download: %s\n", res.Manifest.DownloadURL)
		}
		for _, c := range res.Manifest.Changelog {
			fmt.Fprintf(out, "  - %s\n", c)
		}
		return nil
	},
}

func init() {
	pinCmd.AddCommand(pinSetCmd, pinClearCmd)

	classifyCmd.Flags().StringVar(&classifyHTML, "html", "", "Saved page (required)")
	classifyCmd.Flags().StringVar(&classifyURL, "url", "", "URL the page was saved from")
	classifyCmd.Flags().StringVar(&classifyProtocol, "protocol", "", "Task type, e.g. HT_IZLEM (required)")
	classifyCmd.MarkFlagRequired("html")
	classifyCmd.MarkFlagRequired("protocol")
}
