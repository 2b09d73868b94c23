package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

//go:embed chart.yaml
var defaultChart []byte

type chart struct {
	Categories []struct {
		Code string `yaml:"code"`
		Name string `yaml:"name"`
		Type string `yaml:"type"`
	} `yaml:"categories"`
	Accounts []struct {
		Code          string `yaml:"code"`
		Name          string `yaml:"name"`
		Category      string `yaml:"category"`
		NormalBalance string `yaml:"normal_balance"`
	} `yaml:"accounts"`
}

func loadChart(raw []byte) (chart, error) {
	var c chart
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return chart{}, fmt.Errorf("parse chart: %w", err)
	}
	if len(c.Accounts) == 0 {
		return chart{}, errors.New("chart has no accounts")
	}
	return c, nil
}

type seedStats struct {
	Categories int
	Accounts   int
	Periods    int
}

func seed(ctx context.Context, c chart, acct *accounts.Service, mgr *periods.Manager, year int) (seedStats, error) {
	var stats seedStats
	for _, cat := range c.Categories {
		_, err := acct.RegisterCategory(ctx, accounts.CategoryInput{Code: cat.Code, Name: cat.Name, Type: domain.AccountType(cat.Type)})
		switch {
		case err == nil:
			stats.Categories++
		case errors.Is(err, domain.ErrConflict):
		default:
			return stats, fmt.Errorf("category %s: %w", cat.Code, err)
		}
	}
	for _, a := range c.Accounts {
		_, err := acct.Register(ctx, accounts.RegisterInput{
			Code:          a.Code,
			Name:          a.Name,
			CategoryCode:  a.Category,
			NormalBalance: domain.NormalBalance(a.NormalBalance),
			CreatedBy:     "seed",
		})
		switch {
		case err == nil:
			stats.Accounts++
		case errors.Is(err, domain.ErrConflict):
		default:
			return stats, fmt.Errorf("account %s: %w", a.Code, err)
		}
	}
	if year > 0 {
		_, ps, err := mgr.CreateFiscalYear(ctx, periods.FiscalYearInput{
			Code:      fmt.Sprintf("FY%02d", year%100),
			Name:      fmt.Sprintf("Fiscal Year %d", year),
			StartDate: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
			CreatedBy: "seed",
		})
		switch {
		case err == nil:
			stats.Periods = len(ps)
		case errors.Is(err, domain.ErrPeriodOverlap):
		default:
			return stats, fmt.Errorf("fiscal year %d: %w", year, err)
		}
	}
	return stats, nil
}

func main() {
	chartFile := flag.String("chart", "", "YAML chart of accounts (defaults to the built-in chart)")
	year := flag.Int("year", time.Now().Year(), "calendar fiscal year to open, 0 to skip")
	flag.Parse()

	raw := defaultChart
	if *chartFile != "" {
		var err error
		if raw, err = os.ReadFile(*chartFile); err != nil {
			log.Fatalf("read chart: %v", err)
		}
	}
	c, err := loadChart(raw)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.InMemory() {
		log.Fatal("PG_DSN is required for seeding")
	}
	ctx := context.Background()
	comps, err := app.Build(ctx, cfg, app.NewLogger(cfg))
	if err != nil {
		log.Fatalf("build ledger: %v", err)
	}
	defer comps.Close()

	fmt.Println("→ Seeding chart of accounts...")
	stats, err := seed(ctx, c, comps.Accounts, comps.Periods, *year)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	fmt.Printf("✓ %d categories, %d accounts, %d periods created\n", stats.Categories, stats.Accounts, stats.Periods)
}
