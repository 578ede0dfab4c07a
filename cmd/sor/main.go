package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/safedollar-finance/balancer-sor/cmd/sor/config"
	"github.com/safedollar-finance/balancer-sor/curve"
	"github.com/safedollar-finance/balancer-sor/pools"
	"github.com/safedollar-finance/balancer-sor/router"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "sor",
		Short:        "Smart order router over weighted and stable pools",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", os.Getenv("SOR_CONFIG"), "config file path (env SOR_CONFIG)")
	root.PersistentFlags().String("pools", "", "pool snapshot JSON, overrides pools_file")
	root.PersistentFlags().String("in", "", "token sold")
	root.PersistentFlags().String("out", "", "token bought")
	root.PersistentFlags().String("swap-type", curve.ExactIn.String(), "exactIn or exactOut")
	root.PersistentFlags().Int("max-pools", 0, "pool cap for the query, 0 uses the config")

	routeCmd := &cobra.Command{
		Use:   "route",
		Short: "Find and replay the best split for an amount",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoute(cmd, out)
		},
	}
	routeCmd.Flags().String("amount", "", "amount of the specified token in human units")
	routeCmd.Flags().Float64("cost", 0, "cost of one pool in human units of the return token")
	routeCmd.Flags().StringSlice("disable", nil, "tokens excluded from this query (comma-separated)")
	routeCmd.Flags().Bool("human", false, "print amounts in human units instead of the full swap plan")
	_ = routeCmd.MarkFlagRequired("amount")
	root.AddCommand(routeCmd)

	pathsCmd := &cobra.Command{
		Use:   "paths",
		Short: "List the candidate paths between two tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPaths(cmd, out)
		},
	}
	root.AddCommand(pathsCmd)

	return root
}

// session is everything a subcommand needs after flag parsing.
type session struct {
	logger  *slog.Logger
	router  *router.Router
	records []pools.Pool
	query   router.Query
}

func setup(cmd *cobra.Command) (*session, error) {
	flags := cmd.Flags()
	cfgPath, _ := flags.GetString("config")
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.LoadConfig(cfgPath); err != nil {
			return nil, err
		}
	}
	if level := os.Getenv("SOR_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if poolsFile, _ := flags.GetString("pools"); poolsFile != "" {
		cfg.PoolsFile = poolsFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PoolsFile == "" {
		return nil, fmt.Errorf("no pool snapshot: set --pools or pools_file")
	}

	// Results go to stdout, logs to stderr.
	rootLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	records, err := loadPools(cfg.PoolsFile)
	if err != nil {
		return nil, err
	}
	r, err := router.New(&router.Config{
		Logger:              rootLogger.With("component", "router"),
		Registry:            prometheus.NewRegistry(),
		MaxPools:            cfg.MaxPools,
		DisabledTokens:      cfg.DisabledTokens,
		FilterPaths:         cfg.FilterPaths,
		Workers:             cfg.Workers,
		CompactionThreshold: cfg.CompactionThreshold,
	})
	if err != nil {
		return nil, err
	}
	if err := r.SetPools(records); err != nil {
		return nil, err
	}

	q := router.Query{}
	if q.TokenIn, err = addressFlag(cmd, "in"); err != nil {
		return nil, err
	}
	if q.TokenOut, err = addressFlag(cmd, "out"); err != nil {
		return nil, err
	}
	swapType, _ := flags.GetString("swap-type")
	if err := q.SwapType.UnmarshalText([]byte(swapType)); err != nil {
		return nil, err
	}
	q.MaxPools, _ = flags.GetInt("max-pools")

	return &session{logger: rootLogger, router: r, records: records, query: q}, nil
}

func runRoute(cmd *cobra.Command, out io.Writer) error {
	s, err := setup(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()

	specified, returned := s.query.TokenIn, s.query.TokenOut
	if s.query.SwapType == curve.ExactOut {
		specified, returned = returned, specified
	}
	decimals, err := tokenDecimals(s.records, specified)
	if err != nil {
		return err
	}
	returnDecimals, err := tokenDecimals(s.records, returned)
	if err != nil {
		return err
	}
	amount, _ := flags.GetString("amount")
	if s.query.Amount, err = pools.ParseUnits(amount, decimals); err != nil {
		return err
	}
	s.query.CostPerPool, _ = flags.GetFloat64("cost")
	disabled, _ := flags.GetStringSlice("disable")
	for _, d := range disabled {
		if !common.IsHexAddress(d) {
			return fmt.Errorf("invalid address %q", d)
		}
		s.query.DisabledTokens = append(s.query.DisabledTokens, common.HexToAddress(d))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := s.router.GetSwaps(ctx, s.query)
	if err != nil {
		return err
	}
	if len(info.Swaps) == 0 {
		s.logger.Warn("no route found", "tokenIn", s.query.TokenIn, "tokenOut", s.query.TokenOut, "amount", amount)
	}
	if human, _ := flags.GetBool("human"); human {
		return writeJSON(out, routeSummary{
			Paths:                       len(info.Swaps),
			SwapAmount:                  pools.FormatUnits(info.SwapAmount, decimals),
			ReturnAmount:                pools.FormatUnits(info.ReturnAmount, returnDecimals),
			ReturnAmountConsideringFees: pools.FormatUnits(info.ReturnAmountConsideringFees, returnDecimals),
		})
	}
	return writeJSON(out, info)
}

// routeSummary is the --human form of a route.
type routeSummary struct {
	Paths                       int    `json:"paths"`
	SwapAmount                  string `json:"swapAmount"`
	ReturnAmount                string `json:"returnAmount"`
	ReturnAmountConsideringFees string `json:"returnAmountConsideringFees"`
}

// pathSummary is one line of the paths listing.
type pathSummary struct {
	ID        string        `json:"id"`
	Pools     []common.Hash `json:"pools"`
	Tokens    []string      `json:"tokens"`
	Limit     float64       `json:"limit"`
	SpotPrice float64       `json:"spotPrice"`
}

func runPaths(cmd *cobra.Command, out io.Writer) error {
	s, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	candidates, err := s.router.Candidates(ctx, s.query)
	if err != nil {
		return err
	}
	summaries := make([]pathSummary, len(candidates))
	for i, p := range candidates {
		tokens := []string{p.TokenIn().Hex()}
		for _, h := range p.Hops {
			summaries[i].Pools = append(summaries[i].Pools, h.PoolID)
			tokens = append(tokens, h.TokenOut.Hex())
		}
		summaries[i].ID = p.ID
		summaries[i].Tokens = tokens
		summaries[i].Limit = p.Limit
		summaries[i].SpotPrice = p.SpotPriceAfterSwap(0)
	}
	return writeJSON(out, summaries)
}

func addressFlag(cmd *cobra.Command, name string) (common.Address, error) {
	v, _ := cmd.Flags().GetString(name)
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", name, v)
	}
	return common.HexToAddress(v), nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
