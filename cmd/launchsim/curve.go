package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"

	"github.com/aristath/launchpad/internal/config"
	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/modules/curve"
	"github.com/aristath/launchpad/pkg/units"
	"github.com/spf13/cobra"
)

// pricePoint is the curve state after a cumulative buy
type pricePoint struct {
	Step       int    `json:"step"`
	BaseIn     string `json:"base_in"`
	TokensOut  string `json:"tokens_out"`
	PoolTokens string `json:"pool_tokens"`
	RatioBps   uint64 `json:"ratio_bps"`
	SpotPrice  string `json:"spot_price"`
	Graduates  bool   `json:"graduates"`
}

func newCurveCmd() *cobra.Command {
	var (
		steps   int
		buySize string
	)
	cmd := &cobra.Command{
		Use:   "curve",
		Short: "Print the price path of the configured curve for equal-sized buys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, cleanup, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			buy, err := units.Parse(buySize, units.Decimals)
			if err != nil {
				return fmt.Errorf("--buy: %w", err)
			}
			points, err := pricePath(cfg, buy, steps)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			return printPath(cmd.OutOrStdout(), points, asJSON)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 20, "number of buys to plot")
	cmd.Flags().StringVar(&buySize, "buy", "1000", "base spent per buy")
	return cmd
}

// pricePath walks the untaxed curve from a freshly seeded pool. The pool starts
// with the supply minus the platform fee; no airdrop is carved out.
func pricePath(cfg *config.Config, buy *big.Int, steps int) ([]pricePoint, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("--steps must be positive")
	}
	if !domain.IsPositive(buy) {
		return nil, fmt.Errorf("--buy must be positive")
	}
	c, err := curve.New(cfg.Curve)
	if err != nil {
		return nil, err
	}

	supply := cfg.Launch.InitialSupply
	seed := new(big.Int).Sub(supply, domain.Bps(supply, cfg.Launch.PlatformFeeBps))
	reserves := curve.Reserves{Token: seed, Base: new(big.Int)}
	threshold := domain.Bps(supply, cfg.ThresholdBps)

	points := make([]pricePoint, 0, steps)
	for i := 1; i <= steps; i++ {
		out, err := c.TokenOut(reserves, buy)
		if err != nil {
			return nil, err
		}
		if out.Cmp(reserves.Token) >= 0 {
			break
		}
		reserves = curve.Reserves{
			Token: new(big.Int).Sub(reserves.Token, out),
			Base:  new(big.Int).Add(reserves.Base, buy),
		}
		ratio := domain.MulDiv(reserves.Token, domain.BigBPS, supply).Uint64()
		points = append(points, pricePoint{
			Step:       i,
			BaseIn:     units.Format(new(big.Int).Mul(buy, big.NewInt(int64(i))), 2),
			TokensOut:  units.Format(out, 4),
			PoolTokens: units.Format(reserves.Token, 2),
			RatioBps:   ratio,
			SpotPrice:  units.FormatRat(c.SpotPrice(reserves), 12),
			Graduates:  reserves.Token.Cmp(threshold) <= 0,
		})
		if reserves.Token.Cmp(threshold) <= 0 {
			break
		}
	}
	return points, nil
}

func printPath(w io.Writer, points []pricePoint, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(points)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "STEP\tBASE IN\tTOKENS OUT\tPOOL\tPOOL %\tSPOT\t")
	for _, p := range points {
		mark := ""
		if p.Graduates {
			mark = " *"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s%s\t\n",
			p.Step, p.BaseIn, p.TokensOut, p.PoolTokens, units.Percent(p.RatioBps, domain.BPS), p.SpotPrice, mark)
	}
	return tw.Flush()
}
