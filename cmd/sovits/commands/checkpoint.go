package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/34j/so-vits-svc-go/pkg/checkpoint"
	"github.com/34j/so-vits-svc-go/pkg/cli"
)

var (
	ckptDir      string
	ckptKeep     int
	ckptByNumber bool
	ckptRole     string
	ckptFormat   string
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Checkpoint directory maintenance",
}

var checkpointCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old checkpoints, keeping the newest per role",
	Long: `Delete old checkpoints from a run directory.

Checkpoints are grouped by role (the letter prefix of G_1000.ckpt,
D_1000.ckpt, ...) and the newest --keep of each role survive. Number 0
checkpoints are pretrained inits and are never deleted. By default
"newest" means most recently modified; --by-number orders by the
iteration number in the filename instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deleted, err := checkpoint.Clean(ckptDir, ckptKeep, ckptByNumber)
		if err != nil {
			return err
		}
		if len(deleted) == 0 {
			cli.PrintSuccess("nothing to clean in %s", ckptDir)
			return nil
		}
		for _, path := range deleted {
			fmt.Println(path)
		}
		cli.PrintSuccess("deleted %d checkpoints", len(deleted))
		return nil
	},
}

var checkpointLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the path of the newest checkpoint for a role",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := checkpoint.LatestPath(ckptDir, ckptRole)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

// ckptSummary is the structured output of checkpoint show.
type ckptSummary struct {
	Path         string  `json:"path" yaml:"path"`
	Iteration    int64   `json:"iteration" yaml:"iteration"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	ModelKeys    int     `json:"model_keys" yaml:"model_keys"`
	Parameters   int     `json:"parameters" yaml:"parameters"`
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Summarize a checkpoint file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := checkpoint.Load(args[0])
		if err != nil {
			return err
		}

		var params int
		for _, t := range state.Model {
			params += len(t.Data)
		}
		summary := ckptSummary{
			Path:         args[0],
			Iteration:    state.Iteration,
			LearningRate: state.LearningRate,
			ModelKeys:    len(state.Model),
			Parameters:   params,
		}
		if err := cli.Output(os.Stdout, summary, cli.OutputFormat(ckptFormat)); err != nil {
			return err
		}

		if verbose {
			keys := make([]string, 0, len(state.Model))
			for k := range state.Model {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			tbl := cli.Table{Headers: []string{"KEY", "SHAPE"}}
			for _, k := range keys {
				tbl.Rows = append(tbl.Rows, []string{k, fmt.Sprint(state.Model[k].Shape)})
			}
			fmt.Print(tbl.Render())
		}
		return nil
	},
}

func init() {
	checkpointCmd.PersistentFlags().StringVar(&ckptDir, "dir", "logs/44k", "checkpoint directory")

	checkpointCleanCmd.Flags().IntVar(&ckptKeep, "keep", 3, "checkpoints to keep per role")
	checkpointCleanCmd.Flags().BoolVar(&ckptByNumber, "by-number", false, "order by iteration number instead of mtime")
	checkpointLatestCmd.Flags().StringVar(&ckptRole, "role", "G", "checkpoint role prefix")
	checkpointShowCmd.Flags().StringVarP(&ckptFormat, "output", "o", "yaml", "output format (yaml|json)")

	checkpointCmd.AddCommand(checkpointCleanCmd)
	checkpointCmd.AddCommand(checkpointLatestCmd)
	checkpointCmd.AddCommand(checkpointShowCmd)
	rootCmd.AddCommand(checkpointCmd)
}
