package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/singlish-check/internal/corpus"
)

func newCorpusCmd() *cobra.Command {
	corpusCmd := &cobra.Command{
		Use:   "corpus",
		Short: "Lists, validates and describes scenario corpora",
	}
	corpusCmd.AddCommand(newCorpusListCmd())
	corpusCmd.AddCommand(newCorpusValidateCmd())
	corpusCmd.AddCommand(newCorpusSchemaCmd())
	corpusCmd.AddCommand(newCorpusDumpCmd())
	return corpusCmd
}

func newCorpusListCmd() *cobra.Command {
	var path string
	var tags []string

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Prints the scenarios of a corpus in run order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("file") {
				cfg, err := getConfigFromContext(cmd.Context())
				if err != nil {
					return err
				}
				path = cfg.Runner().CorpusPath
			}
			c, err := loadCorpus(path)
			if err != nil {
				return err
			}
			if c, err = c.Select(nil, tags); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range c.Records() {
				fmt.Fprintf(out, "%-14s %-12s %s", r.ID, r.Kind(), r.Name)
				if len(r.Tags) > 0 {
					fmt.Fprintf(out, " [%s]", strings.Join(r.Tags, ", "))
				}
				fmt.Fprintln(out)
			}
			strict, exploratory := c.Counts()
			fmt.Fprintf(out, "\n%d scenarios (%d strict, %d exploratory)\n", c.Len(), strict, exploratory)
			return nil
		},
	}
	listCmd.Flags().StringVar(&path, "file", "", "Corpus file. Defaults to the configured or embedded corpus.")
	listCmd.Flags().StringSliceVar(&tags, "tags", nil, "List only scenarios carrying one of these tags.")
	return listCmd
}

func newCorpusValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Checks a corpus file against the schema and domain rules",
		Long: `Validates a corpus in three phases: strict YAML decoding, JSON Schema and
domain rules such as unique IDs and compilable signals. Every problem is
printed. Without FILE the embedded corpus is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := "embedded"
			var r io.Reader = bytes.NewReader(corpus.DefaultYAML())
			if len(args) == 1 {
				path, err := homedir.Expand(args[0])
				if err != nil {
					return err
				}
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open corpus: %w", err)
				}
				defer f.Close()
				source, r = path, f
			}

			out := cmd.OutOrStdout()
			doc, errs := corpus.Validate(r)
			if len(errs) > 0 {
				for _, ve := range errs {
					fmt.Fprintln(out, ve.Error())
				}
				fmt.Fprintf(out, "%s: %d problem(s)\n", source, len(errs))
				return &ExitError{Code: 1}
			}
			fmt.Fprintf(out, "%s: ok, %d scenarios\n", source, len(doc.Scenarios))
			return nil
		},
	}
}

func newCorpusSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Prints the JSON Schema of the corpus format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := corpus.GenerateJSONSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

func newCorpusDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Prints the embedded corpus as a starting point for a custom one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(corpus.DefaultYAML())
			return err
		},
	}
}
