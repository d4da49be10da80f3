package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-mizu/rippledb/logbroker"
	"github.com/go-mizu/rippledb/rippleconfig"
	ripplehttp "github.com/go-mizu/rippledb/transport/http"
)

// NewStatus creates the status command.
func NewStatus() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize a remote stream",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := rippleconfig.Load(cmd)
	if err != nil {
		return err
	}

	client := ripplehttp.NewClient(cfg.Remote)

	// Walk the whole stream by cursor; the totals are the status.
	var (
		total    int
		upserts  int
		deletes  int
		entities = make(map[string]struct{})
		cursor   = logbroker.NoCursor
	)
	for {
		res, err := client.Pull(cmd.Context(), logbroker.PullRequest{
			Stream: cfg.Replicator.Stream,
			Cursor: cursor,
			Limit:  cfg.Replicator.PullLimit,
		})
		if err != nil {
			return err
		}
		if len(res.Changes) == 0 {
			break
		}
		for _, c := range res.Changes {
			total++
			entities[c.Entity] = struct{}{}
			if c.Kind == "delete" {
				deletes++
			} else {
				upserts++
			}
		}
		cursor = res.NextCursor
	}

	ui := NewUI()
	ui.Header(iconStream, "Stream "+cfg.Replicator.Stream)
	ui.Summary([][2]string{
		{"Remote", cfg.Remote},
		{"Changes", fmt.Sprintf("%d", total)},
		{"Upserts", fmt.Sprintf("%d", upserts)},
		{"Deletes", fmt.Sprintf("%d", deletes)},
		{"Entities", fmt.Sprintf("%d", len(entities))},
		{"Head cursor", string(cursor)},
	})
	return nil
}
