// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/batkit/energysched"
	"github.com/batkit/energysched/pkg/config"
	"github.com/batkit/energysched/pkg/logging"
	"github.com/batkit/energysched/pkg/monitor"
)

var (
	// Version information (set at build time)
	Version   = energysched.Version
	BuildTime = ""
	Commit    = ""

	// Global flags
	policy         string
	budgetFraction float64
	periodLength   float64
	pIdle          float64
	pComp          float64
	seedInterval   float64
	monitorAddr    string
	debug          bool

	rootCmd = &cobra.Command{
		Use:   "energysched",
		Short: "Energy-budget-aware EASY-backfilling scheduler",
		Long: `Drives the energy-budget-aware scheduling core against a batch
simulator. Event batches are read as newline-delimited JSON on stdin and
decision batches are written to stdout, which makes the same binary usable
for development loops and for replaying recorded simulator traces.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&policy, "policy", string(config.PolicyEnergyBudget),
		"scheduling policy: fcfs, power_cap, energy_budget, reduce_pc")
	rootCmd.PersistentFlags().Float64Var(&budgetFraction, "budget-fraction", 1.0,
		"fraction of the theoretical maximum budget to honour, in (0,1]")
	rootCmd.PersistentFlags().Float64Var(&periodLength, "period", 600,
		"budget period length in seconds")
	rootCmd.PersistentFlags().Float64Var(&pIdle, "p-idle", 100,
		"estimated idle power per host in watts")
	rootCmd.PersistentFlags().Float64Var(&pComp, "p-comp", 200,
		"estimated compute power per host in watts")
	rootCmd.PersistentFlags().Float64Var(&seedInterval, "seed-interval", 0,
		"seconds of replenishment seeding the energy counter on the first tick")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	runCmd.Flags().StringVar(&monitorAddr, "monitor", "",
		"bind address for the read-only monitor server (e.g. :8780)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the decision loop over stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel := slog.LevelInfo
		if debug {
			logLevel = slog.LevelDebug
		}
		logger := logging.NewLogger(&logging.Config{
			Level:   logLevel,
			Format:  logging.FormatText,
			Output:  os.Stderr,
			Version: Version,
		})

		params, err := json.Marshal(config.Config{
			Policy:         config.Policy(policy),
			BudgetFraction: budgetFraction,
			PeriodLength:   periodLength,
			PIdle:          pIdle,
			PComp:          pComp,
			SeedInterval:   seedInterval,
		})
		if err != nil {
			return err
		}

		sched := energysched.New(energysched.WithLogger(logger))
		if err := sched.Init(params, energysched.FlagFormatJSON); err != nil {
			return err
		}
		defer func() {
			_ = sched.Deinit()
		}()

		if monitorAddr != "" {
			mon := monitor.NewServer(sched, monitor.WithLogger(logger))
			go func() {
				if err := mon.ListenAndServe(monitorAddr); err != nil {
					logger.Error("monitor server stopped", "error", err.Error())
				}
			}()
		}

		in := bufio.NewScanner(os.Stdin)
		in.Buffer(make([]byte, 0, 1<<20), 1<<24)
		out := bufio.NewWriter(os.Stdout)
		defer out.Flush()

		for in.Scan() {
			line := in.Bytes()
			if len(line) == 0 {
				continue
			}
			decisions, err := sched.TakeDecisions(line)
			if err != nil {
				// Fatal for the simulator: abort the loop.
				return err
			}
			if _, err := out.Write(decisions); err != nil {
				return err
			}
			if err := out.WriteByte('\n'); err != nil {
				return err
			}
			if err := out.Flush(); err != nil {
				return err
			}
		}
		return in.Err()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("energysched version %s\n", Version)
		if BuildTime != "" {
			fmt.Printf("Build Time: %s\n", BuildTime)
		}
		if Commit != "" {
			fmt.Printf("Commit:     %s\n", Commit)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
