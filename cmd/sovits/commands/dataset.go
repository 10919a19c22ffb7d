package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/34j/so-vits-svc-go/pkg/bundle"
	"github.com/34j/so-vits-svc-go/pkg/cli"
	"github.com/34j/so-vits-svc-go/pkg/dataset"
	"github.com/34j/so-vits-svc-go/pkg/hparams"
	"github.com/34j/so-vits-svc-go/pkg/storage"
)

var (
	datasetConfig  string
	datasetDataDir string
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Inspect prepared feature bundles",
}

var datasetVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Load every manifest entry and check its frame contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, hps, err := openBundleStore()
		if err != nil {
			return err
		}

		var total, bad int
		for _, manifest := range []string{hps.Data.TrainingFiles, hps.Data.ValidationFiles} {
			if manifest == "" {
				continue
			}
			ids, err := manifestIDs(manifest)
			if err != nil {
				return err
			}
			for _, id := range ids {
				total++
				b, err := store.Load(cmd.Context(), id)
				if err != nil {
					cli.PrintError("%s: %v", id, err)
					bad++
					continue
				}
				if err := b.Validate(hps.Data.HopLength); err != nil {
					cli.PrintError("%s: %v", id, err)
					bad++
				}
			}
		}

		if bad > 0 {
			return fmt.Errorf("%d of %d bundles failed verification", bad, total)
		}
		cli.PrintSuccess("%d bundles verified", total)
		return nil
	},
}

var datasetStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Frame-length distribution of the training manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, hps, err := openBundleStore()
		if err != nil {
			return err
		}
		ids, err := manifestIDs(hps.Data.TrainingFiles)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("manifest %s is empty", hps.Data.TrainingFiles)
		}

		const bucketSize = 100
		// Everything at or past the crop threshold lands in one bucket.
		numBuckets := dataset.MaxFrames/bucketSize + 1
		buckets := make([]int, numBuckets)
		var totalFrames, minFrames, maxFrames int
		for i, id := range ids {
			b, err := store.Load(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			frames := b.Frames()
			totalFrames += frames
			if i == 0 || frames < minFrames {
				minFrames = frames
			}
			if frames > maxFrames {
				maxFrames = frames
			}
			bucket := frames / bucketSize
			if bucket >= numBuckets {
				bucket = numBuckets - 1
			}
			buckets[bucket]++
		}

		peak := 0
		for _, n := range buckets {
			if n > peak {
				peak = n
			}
		}
		tbl := cli.Table{Headers: []string{"FRAMES", "COUNT", ""}}
		for i, n := range buckets {
			label := fmt.Sprintf("%d-%d", i*bucketSize, (i+1)*bucketSize-1)
			if i == numBuckets-1 {
				label = fmt.Sprintf("%d+", i*bucketSize)
			}
			tbl.Rows = append(tbl.Rows, []string{
				label,
				fmt.Sprintf("%d", n),
				cli.Bar(n, peak, 40),
			})
		}
		fmt.Print(tbl.Render())

		secs := float64(totalFrames) * float64(hps.Data.HopLength) / float64(hps.Data.SampleRate)
		fmt.Printf("\nclips: %d  frames: min %d / mean %d / max %d  audio: %s\n",
			len(ids), minFrames, totalFrames/len(ids), maxFrames, cli.FormatSeconds(secs))
		if maxFrames > dataset.MaxFrames {
			cli.PrintWarning("clips above %d frames are randomly cropped during training", dataset.MaxFrames)
		}
		return nil
	},
}

func openBundleStore() (*bundle.FileStore, *hparams.HParams, error) {
	hps, err := hparams.Load(datasetConfig)
	if err != nil {
		return nil, nil, err
	}
	files, err := storage.NewLocal(datasetDataDir)
	if err != nil {
		return nil, nil, err
	}
	return bundle.NewFileStore(files), hps, nil
}

// manifestIDs reads one bundle id per line, skipping blanks.
func manifestIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			ids = append(ids, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return ids, nil
}

func init() {
	datasetCmd.PersistentFlags().StringVarP(&datasetConfig, "config", "c", "configs/44k/config.json", "training config path")
	datasetCmd.PersistentFlags().StringVar(&datasetDataDir, "data-dir", ".", "root directory of prepared bundles")
	datasetCmd.AddCommand(datasetVerifyCmd)
	datasetCmd.AddCommand(datasetStatsCmd)
	rootCmd.AddCommand(datasetCmd)
}
