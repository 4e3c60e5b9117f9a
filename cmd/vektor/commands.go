package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sanonone/vektor/internal/server"
	"github.com/sanonone/vektor/pkg/engine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, logger, err := openDB()
		if err != nil {
			return err
		}
		cfg := db.Config()
		if cfg.APIToken == "" {
			logger.Warn("VEKTOR_API_TOKEN is not set, the API is unauthenticated")
		}

		srv := server.NewServer(db, cfg.Dimension, cfg.HTTPAddr, cfg.APIToken, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Run() }()

		logger.Info("vektor started", "data_dir", cfg.DataDir, "dimension", cfg.Dimension)
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		srv.Shutdown()
		return nil
	},
}

var (
	insertID       string
	insertVector   string
	insertMetadata string
)

var insertCmd = &cobra.Command{
	Use:     "insert",
	Short:   "Insert a document",
	Example: `  vektor insert --id doc-1 --vector 0.1,0.2,0.3 --metadata '{"title":"hello"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		vec, err := parseVector(insertVector)
		if err != nil {
			return err
		}
		var metadata any
		if insertMetadata != "" {
			if err := json.Unmarshal([]byte(insertMetadata), &metadata); err != nil {
				return fmt.Errorf("invalid --metadata JSON: %w", err)
			}
		}

		db, _, err := openDB()
		if err != nil {
			return err
		}
		if err := db.Insert(cmd.Context(), insertID, vec, metadata); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "inserted %s\n", insertID)
		return nil
	},
}

var deleteID string

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a document",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		deleted, err := db.Delete(cmd.Context(), deleteID)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("document '%s' not found", deleteID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", deleteID)
		return nil
	},
}

var (
	searchVector          string
	searchK               int
	searchIncludeVector   bool
	searchIncludeMetadata bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the k most similar documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		vec, err := parseVector(searchVector)
		if err != nil {
			return err
		}
		db, _, err := openDB()
		if err != nil {
			return err
		}
		results, err := db.Search(cmd.Context(), vec, searchK, engine.SearchOptions{
			IncludeVector:   searchIncludeVector,
			IncludeMetadata: searchIncludeMetadata,
		})
		if err != nil {
			return err
		}
		if results == nil {
			results = []engine.Result{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(server.SearchResponse{Results: results})
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Rebuild the stores without deleted documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		if err := db.Optimize(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "optimization complete")
		return nil
	},
}

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store sizes, record counts and parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		st, err := db.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printStats(cmd, st)
	},
}

func init() {
	insertCmd.Flags().StringVar(&insertID, "id", "", "external id (1-36 bytes)")
	insertCmd.Flags().StringVar(&insertVector, "vector", "", "comma-separated floats or a JSON array")
	insertCmd.Flags().StringVar(&insertMetadata, "metadata", "", "JSON metadata")
	_ = insertCmd.MarkFlagRequired("id")
	_ = insertCmd.MarkFlagRequired("vector")

	deleteCmd.Flags().StringVar(&deleteID, "id", "", "external id")
	_ = deleteCmd.MarkFlagRequired("id")

	searchCmd.Flags().StringVar(&searchVector, "vector", "", "comma-separated floats or a JSON array")
	searchCmd.Flags().IntVar(&searchK, "k", 10, "number of results")
	searchCmd.Flags().BoolVar(&searchIncludeVector, "include-vector", false, "return stored vectors")
	searchCmd.Flags().BoolVar(&searchIncludeMetadata, "include-metadata", false, "return metadata")
	_ = searchCmd.MarkFlagRequired("vector")

	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print JSON instead of a table")
}

func printStats(cmd *cobra.Command, st engine.Stats) error {
	out := cmd.OutOrStdout()
	if statsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprintf(out, "Vectors:    %s (%s records)\n", humanize.IBytes(uint64(st.Storage.VectorBytes)), humanize.Comma(st.Records.VectorsTotal))
	fmt.Fprintf(out, "Graph:      %s (%s nodes, entry point %d)\n", humanize.IBytes(uint64(st.Storage.GraphBytes)), humanize.Comma(int64(st.Records.GraphNodes)), st.Records.EntryPoint)
	fmt.Fprintf(out, "Id index:   %s (%s entries)\n", humanize.IBytes(uint64(st.Storage.IndexBytes)), humanize.Comma(st.Records.IndexEntries))
	fmt.Fprintf(out, "Payloads:   %s\n", humanize.IBytes(uint64(st.Storage.PayloadBytes)))
	fmt.Fprintf(out, "Parameters: dim=%d M=%d M0=%d efConstruction=%d levels=%d\n",
		st.Config.Dimension, st.Config.M, st.Config.M0, st.Config.EfConstruction, st.Config.Levels)
	fmt.Fprintf(out, "Backend:    %s\n", st.Backend)
	return nil
}

// parseVector accepts "0.1,0.2,0.3" or "[0.1, 0.2, 0.3]".
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("vector cannot be empty")
	}
	if strings.HasPrefix(s, "[") {
		var vec []float32
		if err := json.Unmarshal([]byte(s), &vec); err != nil {
			return nil, fmt.Errorf("invalid vector JSON: %w", err)
		}
		return vec, nil
	}

	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %d: %w", i, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}
