package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/34j/so-vits-svc-go/pkg/cli"
	"github.com/34j/so-vits-svc-go/pkg/pretrained"
)

var (
	pretrainedDir     string
	pretrainedEncoder bool
)

var pretrainedCmd = &cobra.Command{
	Use:   "pretrained",
	Short: "Pretrained asset provisioning",
}

var pretrainedDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Fetch init checkpoints and content-encoder weights",
	RunE: func(cmd *cobra.Command, args []string) error {
		assets := pretrained.InitCheckpoints(pretrainedDir)
		if pretrainedEncoder {
			assets = append(assets, pretrained.ContentEncoder(pretrainedDir))
		}

		var lastPct int64 = -1
		progress := func(written, total int64) {
			if total <= 0 {
				return
			}
			if pct := written * 100 / total; pct != lastPct {
				lastPct = pct
				fmt.Printf("\r%3d%% (%s / %s)", pct, cli.FormatBytes(written), cli.FormatBytes(total))
				if pct == 100 {
					fmt.Println()
				}
			}
		}

		var failed int
		for _, res := range pretrained.Ensure(cmd.Context(), assets, progress) {
			lastPct = -1
			switch res.Status {
			case pretrained.AlreadyPresent:
				cli.PrintSuccess("%s (already present)", res.Asset.Path)
			case pretrained.Downloaded:
				cli.PrintSuccess("%s", res.Asset.Path)
			case pretrained.DownloadFailed:
				cli.PrintError("%s: %v", res.Asset.Path, res.Err)
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d downloads failed", failed)
		}
		return nil
	},
}

func init() {
	pretrainedDownloadCmd.Flags().StringVar(&pretrainedDir, "dir", "logs/44k", "destination directory")
	pretrainedDownloadCmd.Flags().BoolVar(&pretrainedEncoder, "content-encoder", false, "also fetch the content-encoder weights")

	pretrainedCmd.AddCommand(pretrainedDownloadCmd)
	rootCmd.AddCommand(pretrainedCmd)
}
