package main

import (
	"fmt"
	"text/tabwriter"

	"adDecisioning/business/bandit"
	badgerRepo "adDecisioning/internal/repository/badger"
	psqlRepo "adDecisioning/internal/repository/postgres"

	"github.com/spf13/cobra"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect bandit checkpoints",
	}

	var dir string
	list := &cobra.Command{
		Use:   "list",
		Short: "List checkpointed buckets from Postgres, or from a badger directory with --dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			var snaps []bandit.Snapshot
			if dir != "" {
				db, err := badgerRepo.Open(badgerRepo.Config{Path: dir})
				if err != nil {
					return err
				}
				defer db.Close()
				if snaps, err = badgerRepo.NewCheckpointRepository(db).LoadCheckpoints(cmd.Context()); err != nil {
					return err
				}
			} else {
				db, err := openDB()
				if err != nil {
					return err
				}
				if snaps, err = psqlRepo.NewBanditRepository(db).LoadCheckpoints(cmd.Context()); err != nil {
					return err
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BUCKET\tARMS\tINTERACTIONS\tTAKEN AT")
			for _, s := range snaps {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.Bucket.Bucket, len(s.Arms), s.Bucket.Interactions, s.TakenAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&dir, "dir", "", "Badger checkpoint directory")
	cmd.AddCommand(list)
	return cmd
}
