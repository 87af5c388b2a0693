// Package main provides the ragctl CLI for indexing documents and querying
// the assistant.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/rag-assistant/internal/app"
	"github.com/bull/rag-assistant/internal/config"
	"github.com/bull/rag-assistant/internal/eval"
	ghclient "github.com/bull/rag-assistant/internal/github"
	"github.com/bull/rag-assistant/internal/indexer"
	"github.com/bull/rag-assistant/internal/rag"
)

const envHelp = `
Environment variables (a .env file is read when present):
  OPENAI_API_KEY     OpenAI API key (required)
  VECTOR_STORE       memory or qdrant (default: qdrant)
  QDRANT_HOST        Qdrant hostname (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  CACHE_BACKEND      none, memory, sqlite or qdrant (default: sqlite)
  HYBRID_ENABLED     keyword + semantic retrieval (default: true)
  SAFETY_ENABLED     injection, moderation and grounding checks (default: true)
  DOCUMENTS_DIR      default directory for index (default: documents)
  GITHUB_TOKEN       GitHub token for higher rate limits (optional)`

var rootCmd = &cobra.Command{
	Use:           "ragctl",
	Short:         "Document assistant indexing and query tool",
	Long:          "CLI tool for indexing documents and asking grounded questions about them." + "\n" + envHelp,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var indexCmd = &cobra.Command{
	Use:   "index [dir]",
	Short: "Index every supported document under a directory",
	Long: `Loads, chunks, embeds and stores every .md and .txt file under dir
(default: DOCUMENTS_DIR). Documents that fail are reported and skipped.` + "\n" + envHelp,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

var indexGitHubCmd = &cobra.Command{
	Use:   "index-github",
	Short: "Index documents straight from a GitHub repository",
	Long: `Lists and indexes every supported document below a base path of a GitHub
repository. Owner, repository and base path default to GITHUB_OWNER,
GITHUB_REPO and GITHUB_BASE_PATH.` + "\n" + envHelp,
	Args: cobra.NoArgs,
	RunE: runIndexGitHub,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and cache counts",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every indexed chunk and cached answer",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

var evalCmd = &cobra.Command{
	Use:   "eval <golden.json>",
	Short: "Score the assistant against a golden dataset",
	Long: `Asks every question in the golden dataset and checks that an expected
source was retrieved and enough expected keywords appear in the answer.
Exits non-zero when the pass rate is below --min-pass-rate.`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

var (
	clearFirst      bool
	ghOwner         string
	ghRepo          string
	ghBasePath      string
	jsonOutput      bool
	cacheOnly       bool
	evalThreshold   float64
	evalConcurrency int
	evalMinPassRate float64
)

func init() {
	indexCmd.Flags().BoolVar(&clearFirst, "clear", false, "clear the index before indexing")
	indexGitHubCmd.Flags().BoolVar(&clearFirst, "clear", false, "clear the index before indexing")
	indexGitHubCmd.Flags().StringVar(&ghOwner, "owner", "", "repository owner (default: GITHUB_OWNER)")
	indexGitHubCmd.Flags().StringVar(&ghRepo, "repo", "", "repository name (default: GITHUB_REPO)")
	indexGitHubCmd.Flags().StringVar(&ghBasePath, "path", "", "base path inside the repository (default: GITHUB_BASE_PATH)")
	askCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full response as JSON")
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "print status as JSON")
	clearCmd.Flags().BoolVar(&cacheOnly, "cache-only", false, "clear only the answer cache")
	evalCmd.Flags().Float64Var(&evalThreshold, "keyword-threshold", eval.DefaultKeywordThreshold, "keyword recall an answer needs to pass")
	evalCmd.Flags().IntVar(&evalConcurrency, "concurrency", 4, "questions asked in parallel")
	evalCmd.Flags().Float64Var(&evalMinPassRate, "min-pass-rate", 0, "fail when the pass rate is below this value")
	evalCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the summary as JSON")

	rootCmd.AddCommand(indexCmd, indexGitHubCmd, askCmd, statusCmd, clearCmd, evalCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openApp loads configuration and builds the application.
func openApp(cmd *cobra.Command, opts ...app.Option) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, cfg.NewLogger(os.Stderr), opts...)
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.Config.DocumentsDir
	if len(args) == 1 {
		dir = args[0]
	}
	return indexAll(cmd, a.Service, dir, "")
}

func runIndexGitHub(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	owner := firstNonEmpty(ghOwner, cfg.GitHubOwner)
	repo := firstNonEmpty(ghRepo, cfg.GitHubRepo)
	basePath := firstNonEmpty(ghBasePath, cfg.GitHubBasePath)
	if owner == "" || repo == "" {
		return errors.New("repository owner and name are required (--owner/--repo or GITHUB_OWNER/GITHUB_REPO)")
	}

	gh, err := ghclient.NewClient(cfg.GitHubToken)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}
	fetcher := ghclient.NewFetcher(gh, owner, repo, basePath)

	ctx := cmd.Context()
	sha, err := fetcher.LatestCommitSHA(ctx)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, cfg.NewLogger(os.Stderr), app.WithRAGOptions(rag.WithLoader(fetcher)))
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Indexing %s/%s/%s at %s\n", owner, repo, basePath, shortSHA(sha))
	return indexAll(cmd, a.Service, "", sha)
}

func indexAll(cmd *cobra.Command, svc *rag.Service, dir, commit string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	start := time.Now()

	if clearFirst {
		fmt.Fprintln(out, "Clearing existing index...")
		if err := svc.ClearIndex(ctx); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}

	fmt.Fprintln(out, "Indexing documents...")
	results, err := svc.IndexAllDocuments(ctx, dir)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	writeIndexSummary(out, indexer.Summarize(results), commit, time.Since(start))
	return nil
}

func writeIndexSummary(w io.Writer, s indexer.Summary, commit string, elapsed time.Duration) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Index complete!")
	fmt.Fprintf(w, "  Documents: %d/%d\n", s.SuccessfulDocs, s.TotalDocs)
	fmt.Fprintf(w, "  Chunks: %d\n", s.TotalChunks)
	fmt.Fprintf(w, "  Duration: %s\n", elapsed.Round(time.Millisecond))
	if commit != "" {
		fmt.Fprintf(w, "  Commit: %s\n", commit)
	}

	if len(s.FailedDocs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failed documents:")
		for _, failed := range s.FailedDocs {
			fmt.Fprintf(w, "  - %s: %s\n", failed.Source, failed.Reason)
		}
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Service.Ask(cmd.Context(), strings.Join(args, " "), nil)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), resp)
	}
	writeAnswer(cmd.OutOrStdout(), resp)
	return nil
}

func writeAnswer(w io.Writer, resp *rag.Response) {
	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintln(w)
	if resp.Blocked {
		fmt.Fprintf(w, "Blocked: %s\n", resp.BlockedReason)
	}
	fmt.Fprintf(w, "Confidence: %s (%.2f)", resp.ConfidenceLevel, resp.ConfidenceScore)
	if resp.Cached {
		fmt.Fprint(w, " [cached]")
	}
	fmt.Fprintln(w)
	if len(resp.ChunksUsed) == 0 {
		return
	}
	fmt.Fprintln(w, "Sources:")
	for i, c := range resp.ChunksUsed {
		label := c.Source
		if c.Section != "" {
			label += " > " + c.Section
		}
		fmt.Fprintf(w, "  %d. %s (similarity %.2f)\n", i+1, label, c.Similarity)
	}
}

type statusReport struct {
	TotalChunks      int  `json:"total_chunks"`
	KeywordIndexDocs int  `json:"keyword_index_docs"`
	CachedAnswers    int  `json:"cached_answers"`
	HybridEnabled    bool `json:"hybrid_enabled"`
	CacheEnabled     bool `json:"cache_enabled"`
	SafetyEnabled    bool `json:"safety_enabled"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	chunks, err := a.Service.DocumentCount(ctx)
	if err != nil {
		return err
	}
	cached, err := a.Service.CacheCount(ctx)
	if err != nil {
		return err
	}
	report := statusReport{
		TotalChunks:      chunks,
		KeywordIndexDocs: a.Service.KeywordIndexCount(),
		CachedAnswers:    cached,
		HybridEnabled:    a.Service.HybridEnabled(),
		CacheEnabled:     a.Service.CacheEnabled(),
		SafetyEnabled:    a.Service.SafetyEnabled(),
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), report)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Chunks:         %d\n", report.TotalChunks)
	fmt.Fprintf(w, "Keyword index:  %d\n", report.KeywordIndexDocs)
	fmt.Fprintf(w, "Cached answers: %d\n", report.CachedAnswers)
	fmt.Fprintf(w, "Hybrid: %t  Cache: %t  Safety: %t\n", report.HybridEnabled, report.CacheEnabled, report.SafetyEnabled)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if cacheOnly {
		if err := a.Service.ClearCache(ctx); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
		return nil
	}
	if err := a.Service.ClearIndex(ctx); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Index and cache cleared")
	return nil
}

func runEval(cmd *cobra.Command, args []string) error {
	examples, err := eval.LoadGoldenDataset(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := eval.Run(cmd.Context(), a.Service, examples, eval.RunOptions{
		KeywordThreshold: evalThreshold,
		Concurrency:      evalConcurrency,
	}, nil)
	if err != nil {
		return err
	}
	summary := eval.Summarize(results, nil)

	if jsonOutput {
		if err := writeJSON(cmd.OutOrStdout(), summary); err != nil {
			return err
		}
	} else {
		writeEvalSummary(cmd.OutOrStdout(), summary)
	}

	if summary.PassRate < evalMinPassRate {
		return fmt.Errorf("pass rate %.1f%% is below the minimum %.1f%%", summary.PassRate*100, evalMinPassRate*100)
	}
	return nil
}

func writeEvalSummary(w io.Writer, s eval.Summary) {
	fmt.Fprintf(w, "Examples: %d/%d passed (%.1f%%)\n", s.PassedExamples, s.TotalExamples, s.PassRate*100)
	fmt.Fprintf(w, "Avg retrieval recall: %.2f\n", s.AvgRetrievalRecall)
	fmt.Fprintf(w, "Avg keyword recall:   %.2f\n", s.AvgKeywordRecall)
	if len(s.FailedExamples) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Failed examples:")
	for _, r := range s.Results {
		if r.Passed {
			continue
		}
		reason := fmt.Sprintf("recall %.2f, missing keywords %v", r.Retrieval.RecallAtK, r.Answer.KeywordsMissing)
		if r.Error != "" {
			reason = r.Error
		}
		fmt.Fprintf(w, "  - %s: %s\n", r.ExampleID, reason)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
