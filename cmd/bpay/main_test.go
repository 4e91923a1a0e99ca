package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bpay/execution"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("BPAY_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersionCmd(t *testing.T) {
	oldVersion, oldBuildTime, oldGitCommit := Version, BuildTime, GitCommit
	defer func() {
		Version, BuildTime, GitCommit = oldVersion, oldBuildTime, oldGitCommit
	}()

	Version = "1.2.3"
	BuildTime = "2026-01-01"
	GitCommit = "abcdef"

	output := execute(t, "version")
	assert.Contains(t, output, "bpay 1.2.3")
	assert.Contains(t, output, "Built: 2026-01-01")
	assert.Contains(t, output, "Commit: abcdef")

	BuildTime, GitCommit = "unknown", "unknown"
	output = execute(t, "version")
	assert.NotContains(t, output, "Built:")
	assert.NotContains(t, output, "Commit:")
}

func TestSimulateRevokedAllowance(t *testing.T) {
	output := execute(t, "simulate", "--customers", "3", "--broke", "1", "--rounds", "4", "--json=false")

	assert.Equal(t, 4, strings.Count(output, "Round "))
	assert.Contains(t, output, "insufficient allowance")
	assert.Equal(t, 1, strings.Count(output, string(execution.OutcomeRemoved)))
	assert.Contains(t, output, execution.ReasonInactive)
	assert.Contains(t, output, "Keeper reward balance")
}

func TestSimulateJSON(t *testing.T) {
	output := execute(t, "simulate", "--customers", "2", "--broke", "0", "--rounds", "2", "--json")

	var reports []execution.Report
	require.NoError(t, json.Unmarshal([]byte(output), &reports))
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.Equal(t, 2, r.Successful)
		assert.Equal(t, "200000000000000000000", r.Collected().String())
		assert.True(t, r.RewardPaid.IsPositive())
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("BPAY_COST_PER_BILLING", "1000")
	t.Setenv("BPAY_MARKUP_PERCENT", "200")
	t.Setenv("BPAY_KEEPER_SCHEDULE", "@every 5s")

	cfg, err := loadConfig()
	require.NoError(t, err)

	policy, err := cfg.rewardPolicy()
	require.NoError(t, err)
	assert.Equal(t, "6000", policy.Reward(3).String())

	kc := cfg.keeperConfig(demoMerchant)
	assert.Equal(t, "@every 5s", kc.Schedule)
	assert.Equal(t, 50, kc.BatchSize)
	assert.Equal(t, []string{string(demoMerchant)}, []string{string(kc.Merchants[0])})

	t.Setenv("BPAY_COST_PER_BILLING", "cheap")
	cfg, err = loadConfig()
	require.NoError(t, err)
	_, err = cfg.rewardPolicy()
	assert.Error(t, err)
}
