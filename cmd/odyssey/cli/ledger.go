package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
)

type ledgerVerifier interface {
	VerifyLedger(ctx context.Context) (ledger.IntegrityReport, error)
	VerifyAccount(ctx context.Context, code string) error
}

// LedgerCLI runs operator checks against the ledger.
type LedgerCLI struct {
	verifier ledgerVerifier
}

// NewLedgerCLI constructs the helper.
func NewLedgerCLI(verifier ledgerVerifier) *LedgerCLI {
	return &LedgerCLI{verifier: verifier}
}

// VerifyOptions defines the flags of the verify command.
type VerifyOptions struct {
	// Accounts restricts the check to the given codes. Empty checks everything.
	Accounts   []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// VerifySummary is the JSON output of the verify command.
type VerifySummary struct {
	OK          bool     `json:"ok"`
	Accounts    int      `json:"accounts"`
	Rows        int      `json:"rows,omitempty"`
	TotalDebit  string   `json:"total_debit,omitempty"`
	TotalCredit string   `json:"total_credit,omitempty"`
	Mismatches  []string `json:"mismatches"`
}

// VerifyCommand replays the ledger and prints the outcome. It exits 10 when a
// mismatch is found and 1 on operational errors.
func (c *LedgerCLI) VerifyCommand(ctx context.Context, opts VerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if c == nil || c.verifier == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "ledger verify: verifier not configured")
		return 1
	}

	var summary VerifySummary
	var err error
	if len(opts.Accounts) > 0 {
		summary, err = c.verifyAccounts(ctx, opts.Accounts)
	} else {
		summary, err = c.verifyAll(ctx)
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger verify: %v\n", err)
		return 1
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger verify: encode json: %v\n", err)
			return 1
		}
	} else {
		renderVerifyHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func (c *LedgerCLI) verifyAll(ctx context.Context) (VerifySummary, error) {
	report, err := c.verifier.VerifyLedger(ctx)
	if err != nil {
		return VerifySummary{}, err
	}
	summary := VerifySummary{
		OK:          report.Balanced(),
		Accounts:    report.Accounts,
		Rows:        report.Rows,
		TotalDebit:  report.TotalDebit.StringFixed(domain.Scale),
		TotalCredit: report.TotalCredit.StringFixed(domain.Scale),
		Mismatches:  make([]string, 0, len(report.Mismatches)),
	}
	for _, m := range report.Mismatches {
		summary.Mismatches = append(summary.Mismatches, m.Error())
	}
	sort.Strings(summary.Mismatches)
	return summary, nil
}

func (c *LedgerCLI) verifyAccounts(ctx context.Context, codes []string) (VerifySummary, error) {
	summary := VerifySummary{OK: true, Mismatches: []string{}}
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		summary.Accounts++
		err := c.verifier.VerifyAccount(ctx, code)
		switch {
		case err == nil:
		case isIntegrity(err):
			summary.OK = false
			summary.Mismatches = append(summary.Mismatches, err.Error())
		default:
			return VerifySummary{}, fmt.Errorf("account %s: %w", code, err)
		}
	}
	return summary, nil
}

func isIntegrity(err error) bool {
	var ierr *ledger.IntegrityError
	return errors.As(err, &ierr)
}

func renderVerifyHuman(out io.Writer, s VerifySummary) {
	if s.Rows > 0 || s.TotalDebit != "" {
		_, _ = fmt.Fprintf(out, "Ledger verification: %d account(s), %d row(s), debit %s, credit %s\n", s.Accounts, s.Rows, s.TotalDebit, s.TotalCredit)
	} else {
		_, _ = fmt.Fprintf(out, "Ledger verification: %d account(s)\n", s.Accounts)
	}
	if s.OK {
		_, _ = fmt.Fprintln(out, "All running balances match the replayed ledger.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d mismatch(es) detected:\n", len(s.Mismatches))
	for _, m := range s.Mismatches {
		_, _ = fmt.Fprintf(out, " - %s\n", m)
	}
}
