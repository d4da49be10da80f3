package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-mizu/rippledb/change"
	"github.com/go-mizu/rippledb/logbroker"
	"github.com/go-mizu/rippledb/rippleconfig"
	ripplehttp "github.com/go-mizu/rippledb/transport/http"
)

// NewPull creates the pull command.
func NewPull() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch and print a stream's changes",
		RunE:  runPull,
	}
	cmd.Flags().String("cursor", "", "Resume from this cursor (empty pulls from the beginning)")
	cmd.Flags().Int("limit", 100, "Maximum changes to fetch")
	return cmd
}

func runPull(cmd *cobra.Command, args []string) error {
	cfg, err := rippleconfig.Load(cmd)
	if err != nil {
		return err
	}

	cursorFlag, _ := cmd.Flags().GetString("cursor")
	limit, _ := cmd.Flags().GetInt("limit")

	client := ripplehttp.NewClient(cfg.Remote)
	res, err := client.Pull(cmd.Context(), logbroker.PullRequest{
		Stream: cfg.Replicator.Stream,
		Cursor: logbroker.Cursor(cursorFlag),
		Limit:  limit,
	})
	if err != nil {
		return err
	}

	ui := NewUI()
	ui.Header(iconStream, "Stream "+cfg.Replicator.Stream)
	ui.Blank()

	if len(res.Changes) == 0 {
		ui.Hint("no changes")
		return nil
	}

	for _, c := range res.Changes {
		ui.ChangeRow(string(c.Kind), c.Entity, c.EntityID, changeDetail(c))
	}

	ui.Summary([][2]string{
		{"Changes", fmt.Sprintf("%d", len(res.Changes))},
		{"Next cursor", string(res.NextCursor)},
	})
	return nil
}

// changeDetail renders an upsert's patch as "field=value" pairs in
// stable field order, and a delete's tombstone tag.
func changeDetail(c change.Change) string {
	if c.Kind == change.Delete {
		return "@ " + c.HLC.String()
	}
	fields := make([]string, 0, len(c.Patch))
	for f := range c.Patch {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", f, c.Patch[f]))
	}
	return strings.Join(parts, " ")
}
