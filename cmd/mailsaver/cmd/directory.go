package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesm/mailsaver/internal/harvest"
	"github.com/wesm/mailsaver/internal/store"
	"github.com/wesm/mailsaver/internal/validate"
)

var (
	dirKeywords string
	dirEngine   string
	dirSource   string
)

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage the development server's search directory",
}

var directoryAddCmd = &cobra.Command{
	Use:   "add ADDRESS...",
	Short: "Add addresses that 'serve' returns from searches",
	Long: `Add addresses to the directory the development server searches. A search
matches an entry when the key appears in its keywords or its address.

Examples:
  mailsaver directory add info@bakery.test hello@bakery.test --keywords "bakery bread"
  mailsaver directory add team@cafe.test --engine bing --source https://cafe.test`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := validate.Engine("engine", dirEngine)
		if err != nil {
			return err
		}
		entries := make([]store.DirectoryEntry, 0, len(args))
		for _, arg := range args {
			addr, err := validate.Email("address", arg)
			if err != nil {
				return fmt.Errorf("%s: %w", arg, err)
			}
			entries = append(entries, store.DirectoryEntry{
				Address:  addr,
				Source:   dirSource,
				Engine:   engine,
				Keywords: dirKeywords,
			})
		}

		s, err := openServerStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.AddDirectoryEntries(cmd.Context(), entries); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %d directory entries.\n", len(entries))
		return nil
	},
}

var directoryImportCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Add every address found in text, HTML or .eml files",
	Long: `Collect email addresses from files and add them to the directory the
development server searches. Files ending in .eml are read as messages
(headers and body), .html and .htm as web pages (mailto links and visible
text), anything else as plain text. Files that are not UTF-8 are converted.

Display names found alongside an address are added to its keywords. The
source defaults to the file path.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := validate.Engine("engine", dirEngine)
		if err != nil {
			return err
		}
		var entries []store.DirectoryEntry
		for _, path := range args {
			found, err := harvest.File(path)
			if err != nil {
				return fmt.Errorf("harvest %s: %w", path, err)
			}
			source := dirSource
			if source == "" {
				source = path
			}
			for _, a := range found {
				entries = append(entries, store.DirectoryEntry{
					Address:  a.Address,
					Source:   source,
					Engine:   engine,
					Keywords: strings.TrimSpace(dirKeywords + " " + a.Name),
				})
			}
			logger.Debug("harvested file", "path", path, "addresses", len(found))
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No addresses found.")
			return nil
		}

		s, err := openServerStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.AddDirectoryEntries(cmd.Context(), entries); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %d directory entries.\n", len(entries))
		return nil
	},
}

func init() {
	directoryAddCmd.Flags().StringVar(&dirKeywords, "keywords", "", "words a search key can match")
	directoryAddCmd.Flags().StringVar(&dirEngine, "engine", "google", "engine the entries are found through")
	directoryAddCmd.Flags().StringVar(&dirSource, "source", "", "page the addresses were found on")
	directoryImportCmd.Flags().StringVar(&dirKeywords, "keywords", "", "words a search key can match")
	directoryImportCmd.Flags().StringVar(&dirEngine, "engine", "google", "engine the entries are found through")
	directoryImportCmd.Flags().StringVar(&dirSource, "source", "", "page the addresses were found on (default: the file path)")
	directoryCmd.AddCommand(directoryAddCmd)
	directoryCmd.AddCommand(directoryImportCmd)
	rootCmd.AddCommand(directoryCmd)
}
