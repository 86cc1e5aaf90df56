package cmd

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dendrascience/geofs/geofs"
	"github.com/dendrascience/geofs/util"
	"github.com/dendrascience/geofs/vfs"
)

const (
	seedPoolSize   = 50
	seedMaxPerDir  = 1000
	seedProgressAt = 1000
)

// NewSeedCmd creates and returns the seed subcommand. It fills a volume with
// test files in a randomized directory structure.
func NewSeedCmd() *cobra.Command {
	var (
		prefix    string
		fileCount int
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate test files with randomized directory structure",
		Long: `Generate test files inside a volume.

Creates files under --prefix in a YYYY/MM/DD/HH/mm/SS directory structure.
Files are distributed across the hierarchy with most files at the deepest
level (SS). Each file contains a single UUID line drawn from a small pool, so
the content store deduplicates most of them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVFS(cmd, func(v *vfs.VFS, _ *geofs.Volume) error {
				return runSeed(cmd, v, prefix, fileCount, verbose)
			})
		},
	}

	cmd.Flags().StringVarP(&prefix, "prefix", "p", "/seed", "Directory inside the volume to fill")
	cmd.Flags().IntVarP(&fileCount, "count", "c", 1000, "Number of files to generate")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	return cmd
}

func randInt(n int64) int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0
	}
	return v.Int64()
}

// seedDir picks the directory for a file created at ts.
func seedDir(prefix string, ts time.Time) string {
	parts := []string{
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
		fmt.Sprintf("%02d", ts.Hour()),
		fmt.Sprintf("%02d", ts.Minute()),
		fmt.Sprintf("%02d", ts.Second()),
	}

	var depth int
	switch r := randInt(100); {
	case r < 5:
		depth = 1
	case r < 10:
		depth = 2
	case r < 15:
		depth = 3
	case r < 25:
		depth = 4
	case r < 40:
		depth = 5
	default:
		depth = 6
	}

	dir := prefix
	for _, p := range parts[:depth] {
		dir = util.JoinChild(dir, p)
	}
	return dir
}

func runSeed(cmd *cobra.Command, v *vfs.VFS, prefix string, fileCount int, verbose bool) error {
	out := cmd.OutOrStdout()
	if verbose {
		printf(out, "Generating %d test files in %s\n", fileCount, prefix)
	}
	if err := v.MkdirAll(prefix); err != nil {
		return err
	}

	pool := make([]string, seedPoolSize)
	for i := range pool {
		pool[i] = uuid.New().String()
	}

	created := 0
	dirCounts := make(map[string]int)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for created < fileCount {
		ts := base.AddDate(0, 0, int(randInt(365))).
			Add(time.Duration(randInt(24)) * time.Hour).
			Add(time.Duration(randInt(60)) * time.Minute).
			Add(time.Duration(randInt(60)) * time.Second)

		dir := seedDir(prefix, ts)
		if dirCounts[dir] >= seedMaxPerDir {
			continue
		}
		if err := v.MkdirAll(dir); err != nil {
			return err
		}

		ext := ".json"
		if randInt(2) == 1 {
			ext = ".txt"
		}
		name := util.JoinChild(dir, fmt.Sprintf("%08x%s", randInt(0xFFFFFFFF), ext))
		if _, err := v.Stat(name); err == nil {
			continue
		}

		if err := v.WriteFile(name, []byte(pool[randInt(seedPoolSize)]+"\n")); err != nil {
			return err
		}
		dirCounts[dir]++
		created++

		if verbose && created%seedProgressAt == 0 {
			printf(out, "Created %d/%d files...\n", created, fileCount)
		}
	}

	if verbose {
		printf(out, "Successfully created %d files\n", created)
		printf(out, "Files distributed across %d directories\n", len(dirCounts))

		maxFiles, minFiles := 0, seedMaxPerDir
		for _, n := range dirCounts {
			maxFiles = max(maxFiles, n)
			minFiles = min(minFiles, n)
		}
		printf(out, "Directory file counts: min=%d, max=%d\n", minFiles, maxFiles)
	}
	return nil
}
