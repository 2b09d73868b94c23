package observability_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
)

type alertFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Alert       string            `yaml:"alert"`
			Expr        string            `yaml:"expr"`
			For         string            `yaml:"for"`
			Labels      map[string]string `yaml:"labels"`
			Annotations map[string]string `yaml:"annotations"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

var metricName = regexp.MustCompile(`odyssey_[a-z_]+`)

func TestLedgerAlertRules(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "ledger.yml"))
	require.NoError(t, err)
	var file alertFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.Len(t, file.Groups, 1)
	require.Equal(t, "ledger", file.Groups[0].Name)

	runbook, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook-ledger.md"))
	require.NoError(t, err)

	exported := exportedMetrics(t)

	severities := map[string]string{
		"PostingErrors":       "critical",
		"PostingConflicts":    "warning",
		"IntegrityCheckFails": "critical",
	}
	rules := file.Groups[0].Rules
	require.Len(t, rules, len(severities))
	for _, rule := range rules {
		want, ok := severities[rule.Alert]
		require.True(t, ok, "unexpected rule %s", rule.Alert)
		require.Equal(t, want, rule.Labels["severity"], rule.Alert)
		require.NotEmpty(t, rule.For, rule.Alert)
		require.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["description"], rule.Alert)

		link := rule.Annotations["runbook"]
		require.True(t, strings.HasPrefix(link, "docs/runbook-ledger.md#"), rule.Alert)
		require.Contains(t, anchors(runbook), strings.TrimPrefix(link, "docs/runbook-ledger.md#"), rule.Alert)

		names := metricName.FindAllString(rule.Expr, -1)
		require.NotEmpty(t, names, rule.Alert)
		for _, name := range names {
			require.Contains(t, exported, name, "%s references an unregistered metric", rule.Alert)
		}
	}
}

// exportedMetrics scrapes the families the server and worker expose once
// each vector has seen a sample.
func exportedMetrics(t *testing.T) map[string]bool {
	t.Helper()
	m := observability.NewMetrics()
	m.ObservePosting("error", time.Millisecond)
	m.ObserveClose("closed")
	_ = jobs.NewMetrics(m.Registerer()).Track("ledger:integrity").End(errors.New("drift"))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	names := make(map[string]bool)
	for _, line := range strings.Split(rr.Body.String(), "\n") {
		if fields := strings.Fields(line); len(fields) >= 3 && fields[1] == "TYPE" {
			names[fields[2]] = true
		}
	}
	return names
}

func anchors(markdown []byte) []string {
	var out []string
	for _, line := range strings.Split(string(markdown), "\n") {
		if title, ok := strings.CutPrefix(line, "## "); ok {
			out = append(out, strings.ReplaceAll(strings.ToLower(strings.TrimSpace(title)), " ", "-"))
		}
	}
	return out
}
