package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xxxsen/prompter/internal/embedcache"
)

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "inspect and maintain encoded embedding cache files",
	}
	cacheCmd.AddCommand(newCacheInspectCmd(), newCacheTrimCmd())
	return cacheCmd
}

func newCacheInspectCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "print per model entry counts and dimensions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := readCacheFile(file)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), cache)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "encoded cache file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newCacheTrimCmd() *cobra.Command {
	var (
		file       string
		out        string
		maxEntries int
	)
	cmd := &cobra.Command{
		Use:   "trim",
		Short: "bound the total number of embeddings in a cache file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := readCacheFile(file)
			if err != nil {
				return err
			}
			before := cache.Len()
			cache = embedcache.Trim(cache, maxEntries)
			if out == "" {
				out = file
			}
			if err := os.WriteFile(out, embedcache.Encode(cache), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trimmed %d -> %d entries, written to %s\n", before, cache.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "encoded cache file")
	cmd.Flags().StringVar(&out, "out", "", "output file, defaults to --file")
	cmd.Flags().IntVar(&maxEntries, "max", 1000, "maximum number of embeddings kept")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readCacheFile(path string) (embedcache.Cache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cache, err := embedcache.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cache, nil
}

func printSummary(w io.Writer, cache embedcache.Cache) {
	fmt.Fprintf(w, "total entries: %d\n", cache.Len())
	for _, m := range embedcache.Summarize(cache) {
		fmt.Fprintf(w, "%s\tentries=%d\tdims=%v\n", m.Spec, m.Entries, m.Dims)
	}
}
