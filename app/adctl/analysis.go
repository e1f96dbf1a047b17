package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adDecisioning/business/causal"
	"adDecisioning/domain"
	psqlRepo "adDecisioning/internal/repository/postgres"
	redisRepo "adDecisioning/internal/repository/redis"
	"adDecisioning/pkg/config"
	"adDecisioning/pkg/database"
	redisdb "adDecisioning/pkg/database/redis"
	"adDecisioning/pkg/logger"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const dayLayout = "2006-01-02"

func openDB() (*gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.App.Environment)
	if !cfg.Database.Enabled {
		return nil, errors.New("database is disabled (DB_ENABLED=false)")
	}
	return database.InitPostgres(cfg)
}

func incrementalityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "incrementality [campaign-id]",
		Short: "Report the ghost-ad experiment of a campaign from live Redis state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(cfg.App.Environment)
			if cfg.Store.Backend != config.BackendRedis {
				return errors.New("experiments are only shared through the redis backend (STATE_BACKEND=redis)")
			}
			client, err := redisdb.NewRedisClient(cfg)
			if err != nil {
				return err
			}
			defer redisdb.CloseRedisClient(client)

			opts := redisRepo.Options{Namespace: cfg.App.Name + ":"}
			svc := causal.NewService(
				redisRepo.NewStore[domain.Experiment](client, opts),
				redisRepo.NewStore[domain.IncrementalityReport](client, opts),
				redisRepo.NewStore[domain.ExperimentGroup](client, opts),
				nil,
				causal.DefaultConfig(),
			)
			report, err := svc.ComputeIncrementality(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func ivCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "iv [experiment-id]",
		Short: "Estimate the effect of exposure using assignment as the instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			obs, err := psqlRepo.NewCausalRepository(db).IVObservations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			est, err := causal.EstimateIV(obs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), est)
		},
	}
}

func syntheticControlCmd() *cobra.Command {
	var (
		donors       []string
		from, to     string
		intervention string
	)
	cmd := &cobra.Command{
		Use:   "synthetic-control [treated-campaign-id]",
		Short: "Estimate a campaign's lift against a weighted blend of donor campaigns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			window, err := parseWindow(from, to, intervention)
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			in, err := loadSyntheticInput(cmd.Context(), psqlRepo.NewCausalRepository(db), args[0], donors, window)
			if err != nil {
				return err
			}
			est, err := causal.EstimateSyntheticControl(in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), est)
		},
	}
	cmd.Flags().StringSliceVar(&donors, "donors", nil, "Donor campaign ids")
	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Day after the last (YYYY-MM-DD)")
	cmd.Flags().StringVar(&intervention, "intervention", "", "First treated day (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("donors")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("intervention")
	return cmd
}

type window struct {
	from, to   time.Time
	prePeriods int
}

// parseWindow checks from < intervention < to and counts the pre-treatment
// days.
func parseWindow(from, to, intervention string) (window, error) {
	var w window
	var err error
	if w.from, err = time.Parse(dayLayout, from); err != nil {
		return w, fmt.Errorf("--from: %w", err)
	}
	if w.to, err = time.Parse(dayLayout, to); err != nil {
		return w, fmt.Errorf("--to: %w", err)
	}
	start, err := time.Parse(dayLayout, intervention)
	if err != nil {
		return w, fmt.Errorf("--intervention: %w", err)
	}
	if !w.from.Before(start) || !start.Before(w.to) {
		return w, errors.New("need from < intervention < to")
	}
	w.prePeriods = int(start.Sub(w.from).Hours() / 24)
	return w, nil
}

type dailyConversionSource interface {
	DailyConversions(ctx context.Context, campaignIDs []string, from, to time.Time) (map[string][]float64, error)
}

func loadSyntheticInput(ctx context.Context, src dailyConversionSource, treated string, donors []string, w window) (causal.SyntheticControlInput, error) {
	ids := append([]string{treated}, donors...)
	series, err := src.DailyConversions(ctx, ids, w.from, w.to)
	if err != nil {
		return causal.SyntheticControlInput{}, err
	}
	in := causal.SyntheticControlInput{
		Treated:    series[treated],
		Donors:     make(map[string][]float64, len(donors)),
		PrePeriods: w.prePeriods,
	}
	for _, d := range donors {
		if d == treated {
			continue
		}
		in.Donors[d] = series[d]
	}
	return in, nil
}
