package cmd

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/util"
)

// NewStatsCmd creates and returns the stats subcommand.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show volume usage",
		Long: `Show how full each region of the volume is, the superblock totals, and how
the stored objects spread over the digest colour buckets.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(cmd, func(vol *geofs.Volume) error {
				st := vol.Stats()
				bs := uint64(geofs.BlockSize)
				out := cmd.OutOrStdout()

				printf(out, "Volume %s (id %016x)\n", vol.Path(), st.VolumeID)
				printf(out, "  created:       %s\n", geofs.FormatTime(st.Created))
				printf(out, "  last modified: %s (%s)\n", geofs.FormatTime(st.LastModified), humanize.Time(st.LastModified))
				printf(out, "  current view:  %d\n", st.CurrentView)
				printf(out, "\n")
				printf(out, "  content: %s / %s (%.1f%%)\n",
					humanize.IBytes(st.ContentBlocksUsed*bs), humanize.IBytes(st.ContentBlocksTotal*bs),
					geofs.Percent(st.ContentBlocksUsed, st.ContentBlocksTotal))
				printf(out, "  refs:    %s / %s (%.1f%%)\n",
					humanize.Comma(int64(st.RefsUsed)), humanize.Comma(int64(st.RefsTotal)),
					geofs.Percent(st.RefsUsed, st.RefsTotal))
				printf(out, "  views:   %s / %s (%.1f%%)\n",
					humanize.Comma(int64(st.ViewsUsed)), humanize.Comma(int64(st.ViewsTotal)),
					geofs.Percent(st.ViewsUsed, st.ViewsTotal))
				printf(out, "\n")
				printf(out, "  stored bytes:  %s in %d objects\n", humanize.IBytes(st.TotalContentBytes), st.IndexedObjects)
				printf(out, "  total refs:    %d (%d indexed)\n", st.TotalRefs, st.IndexedRefs)
				printf(out, "  total views:   %d (%d indexed)\n", st.TotalViews, st.IndexedViews)

				objects, buckets := bucketSpread(vol)
				printf(out, "  digest buckets: %d distinct over %d objects\n", buckets, objects)
				return nil
			})
		},
	}
}

// bucketSpread counts the distinct referenced objects and the distinct
// colour buckets they fall into.
func bucketSpread(vol *geofs.Volume) (objects, buckets int) {
	seen := make(map[util.Digest]struct{})
	hit := make(map[int]struct{})
	vol.RefHistory(func(r geofs.Ref) bool {
		if r.Hidden {
			return true
		}
		if _, ok := seen[r.Digest]; ok {
			return true
		}
		seen[r.Digest] = struct{}{}
		hit[util.DigestBucket(r.Digest)] = struct{}{}
		return true
	})
	return len(seen), len(hit)
}
