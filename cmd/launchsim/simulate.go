package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"text/tabwriter"

	"github.com/aristath/launchpad/internal/config"
	"github.com/aristath/launchpad/internal/di"
	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/modules/curve"
	"github.com/aristath/launchpad/internal/modules/launch"
	"github.com/aristath/launchpad/internal/modules/trading"
	"github.com/aristath/launchpad/pkg/logger"
	"github.com/aristath/launchpad/pkg/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// simOptions are the simulate command's knobs; amounts are whole base units
type simOptions struct {
	Traders   int
	Fund      string
	BuySize   string
	Purchase  string
	MaxTrades int
	Symbol    string
}

// simStep is one executed buy
type simStep struct {
	N         int    `json:"n"`
	Trader    string `json:"trader"`
	BaseIn    string `json:"base_in"`
	TokensOut string `json:"tokens_out"`
	RatioBps  uint64 `json:"ratio_bps"`
	SpotPrice string `json:"spot_price"`
	Graduated bool   `json:"graduated"`
}

// simReport summarizes a run
type simReport struct {
	Token        string    `json:"token"`
	Pool         string    `json:"pool"`
	TokensBought string    `json:"creator_tokens"`
	ThresholdBps uint64    `json:"threshold_bps"`
	Steps        []simStep `json:"steps"`
	Rejections   int       `json:"rejections"`
	BaseRaised   string    `json:"base_raised"`
	Graduated    bool      `json:"graduated"`
	VenuePools   []string  `json:"venue_pools,omitempty"`
}

func newSimulateCmd() *cobra.Command {
	opts := simOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Launch a token and buy through the curve until it graduates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, cleanup, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			report, err := runSimulation(cfg, opts, log)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			return printReport(cmd.OutOrStdout(), report, asJSON)
		},
	}
	cmd.Flags().IntVar(&opts.Traders, "traders", 40, "number of simulated buyers")
	cmd.Flags().StringVar(&opts.Fund, "fund", "100000", "base each buyer starts with")
	cmd.Flags().StringVar(&opts.BuySize, "buy", "1000", "base spent per buy")
	cmd.Flags().StringVar(&opts.Purchase, "creator-buy", "100", "base the creator offers for the first buy")
	cmd.Flags().IntVar(&opts.MaxTrades, "max-trades", 1000, "stop after this many buy attempts")
	cmd.Flags().StringVar(&opts.Symbol, "symbol", "SIM", "symbol of the launched token")
	return cmd
}

// loadConfig reads the engine configuration, pointing it at the requested data dir
// or a scratch one that cleanup removes
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, func(), error) {
	cleanup := func() {}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		dir, err := os.MkdirTemp("", "launchsim-*")
		if err != nil {
			return nil, zerolog.Nop(), cleanup, fmt.Errorf("failed to create scratch directory: %w", err)
		}
		cleanup = func() { _ = os.RemoveAll(dir) }
		dataDir = dir
	}
	if err := os.Setenv("LAUNCHPAD_DATA_DIR", dataDir); err != nil {
		cleanup()
		return nil, zerolog.Nop(), func() {}, err
	}
	cfg, err := config.Load()
	if err != nil {
		cleanup()
		return nil, zerolog.Nop(), func() {}, err
	}
	level, _ := cmd.Flags().GetString("log-level")
	log := logger.New(logger.Config{Level: level, Pretty: true, Output: cmd.ErrOrStderr(), Component: "launchsim"})
	return cfg, log, cleanup, nil
}

func parseOptions(opts simOptions) (fund, buy, purchase *big.Int, err error) {
	if opts.Traders <= 0 {
		return nil, nil, nil, fmt.Errorf("--traders must be positive")
	}
	if fund, err = units.Parse(opts.Fund, units.Decimals); err != nil {
		return nil, nil, nil, fmt.Errorf("--fund: %w", err)
	}
	if buy, err = units.Parse(opts.BuySize, units.Decimals); err != nil {
		return nil, nil, nil, fmt.Errorf("--buy: %w", err)
	}
	if !domain.IsPositive(buy) {
		return nil, nil, nil, fmt.Errorf("--buy must be positive")
	}
	if purchase, err = units.Parse(opts.Purchase, units.Decimals); err != nil {
		return nil, nil, nil, fmt.Errorf("--creator-buy: %w", err)
	}
	return fund, buy, purchase, nil
}

// evenSplit spreads the liquidity across every configured venue
func evenSplit(venues []config.Venue) []launch.DexConfigRequest {
	out := make([]launch.DexConfigRequest, len(venues))
	for i, v := range venues {
		weight := uint32(domain.BPS) / uint32(len(venues))
		if i == 0 {
			weight += uint32(domain.BPS) % uint32(len(venues))
		}
		out[i] = launch.DexConfigRequest{VenueRef: v.Address, VenueKind: string(v.Kind), WeightBps: weight}
		if v.Kind == domain.VenueConcentratedAMM {
			out[i].FeeTier = 3000
		}
	}
	return out
}

// runSimulation boots the engine, launches one token and buys until it graduates,
// every buyer is exhausted, or the attempt budget runs out
func runSimulation(cfg *config.Config, opts simOptions, log zerolog.Logger) (*simReport, error) {
	fund, buy, purchase, err := parseOptions(opts)
	if err != nil {
		return nil, err
	}
	pricing, err := curve.New(cfg.Curve)
	if err != nil {
		return nil, err
	}

	c, _, err := di.Wire(cfg, log)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	creator := common.HexToAddress("0xc001")
	traders := make([]common.Address, opts.Traders)
	for i := range traders {
		traders[i] = common.BigToAddress(big.NewInt(int64(0x10000 + i)))
	}
	err = c.Host.Execute(func() error {
		if err := c.BaseToken.Transfer(cfg.Accounts.Treasury, creator, domain.Copy(purchase)); err != nil {
			return err
		}
		for _, t := range traders {
			if err := c.BaseToken.Transfer(cfg.Accounts.Treasury, t, domain.Copy(fund)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fund accounts from the treasury: %w", err)
	}

	launched, err := c.LaunchService.Launch(launch.LaunchRequest{
		Creator:         creator.Hex(),
		Name:            opts.Symbol + " Agent",
		Symbol:          opts.Symbol,
		InitialPurchase: purchase.String(),
		DexConfigs:      evenSplit(cfg.Network.Venues),
		AutoApprove:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("launch failed: %w", err)
	}

	report := &simReport{
		Token:        launched.Token.Hex(),
		Pool:         launched.Pool.Hex(),
		TokensBought: units.Format(launched.TokensBought, 4),
		ThresholdBps: cfg.ThresholdBps,
		Steps:        []simStep{},
	}
	raised := new(big.Int).Set(launched.InitialPurchase)
	exhausted := make(map[common.Address]bool)
	base := cfg.Accounts.BaseToken.Hex()

	for attempt := 0; attempt < opts.MaxTrades && len(exhausted) < len(traders); attempt++ {
		trader := traders[attempt%len(traders)]
		if exhausted[trader] {
			continue
		}
		result, err := c.TradingService.ExecuteTrade(trading.TradeRequest{
			Trader:      trader.Hex(),
			TokenIn:     base,
			TokenOut:    report.Token,
			Amount:      buy.String(),
			AutoApprove: true,
			Reason:      "launchsim",
		})
		if err != nil {
			return nil, err
		}
		if !result.Success {
			// Max hold, spent balance or rate limit: this buyer is done
			exhausted[trader] = true
			report.Rejections++
			log.Debug().Str("trader", trader.Hex()).Str("code", result.Code).Msg("Buy rejected")
			continue
		}

		receipt := result.Receipt
		raised.Add(raised, receipt.AmountIn)
		step := simStep{
			N:         len(report.Steps) + 1,
			Trader:    trader.Hex(),
			BaseIn:    units.Format(receipt.AmountIn, 4),
			TokensOut: units.Format(receipt.NetOut, 4),
			Graduated: receipt.Graduated,
		}
		view, err := c.GraduationService.GetToken(launched.Token)
		if err != nil {
			return nil, err
		}
		step.RatioBps = view.RatioBps
		if !receipt.Graduated {
			spot := pricing.SpotPrice(curve.Reserves{Token: view.Reserves.ReserveToken, Base: view.Reserves.ReserveBase})
			step.SpotPrice = units.FormatRat(spot, 12)
		}
		report.Steps = append(report.Steps, step)

		if receipt.Graduated {
			report.Graduated = true
			for _, p := range view.Profile.VenuePools {
				report.VenuePools = append(report.VenuePools, p.Hex())
			}
			break
		}
	}

	report.BaseRaised = units.Format(raised, 4)
	return report, nil
}

func printReport(w io.Writer, report *simReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(w, "Token %s (pool %s)\n", report.Token, report.Pool)
	fmt.Fprintf(w, "Creator bought %s tokens; graduation at %s%% of supply left in the pool\n\n",
		report.TokensBought, units.Percent(report.ThresholdBps, domain.BPS))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tBASE IN\tTOKENS OUT\tPOOL %\tSPOT\t")
	for _, s := range report.Steps {
		spot := s.SpotPrice
		if s.Graduated {
			spot = "graduated"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t\n", s.N, s.BaseIn, s.TokensOut, units.Percent(s.RatioBps, domain.BPS), spot)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nBase raised: %s, rejected buys: %d\n", report.BaseRaised, report.Rejections)
	if report.Graduated {
		fmt.Fprintf(w, "Graduated into %d venue pool(s):\n", len(report.VenuePools))
		for _, p := range report.VenuePools {
			fmt.Fprintf(w, "  %s\n", p)
		}
	} else {
		fmt.Fprintln(w, "Did not graduate")
	}
	return nil
}
