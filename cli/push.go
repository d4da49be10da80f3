package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-mizu/rippledb/change"
	"github.com/go-mizu/rippledb/hlc"
	"github.com/go-mizu/rippledb/logbroker"
	"github.com/go-mizu/rippledb/rippleconfig"
	ripplehttp "github.com/go-mizu/rippledb/transport/http"
)

// NewPush creates the push command.
func NewPush() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push <entity> <id> [field=value...]",
		Short: "Submit an upsert or delete to a remote stream",
		Long: `Submits a single change to the remote stream.

With field=value arguments the change is an upsert whose fields all
share one freshly minted HLC. With --delete it is a tombstone.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runPush,
	}
	cmd.Flags().Bool("delete", false, "Submit a tombstoning delete instead of an upsert")
	return cmd
}

func runPush(cmd *cobra.Command, args []string) error {
	cfg, err := rippleconfig.Load(cmd)
	if err != nil {
		return err
	}

	entity, id := args[0], args[1]
	isDelete, _ := cmd.Flags().GetBool("delete")

	clock, err := hlc.New(cmd.Context(), cfg.Node)
	if err != nil {
		return err
	}
	ts, err := clock.Tick(cmd.Context(), time.Now())
	if err != nil {
		return err
	}

	var c change.Change
	switch {
	case isDelete:
		if len(args) > 2 {
			return fmt.Errorf("--delete takes no field=value arguments")
		}
		c = change.MakeDelete(change.DeleteParams{
			Stream:   cfg.Replicator.Stream,
			Entity:   entity,
			EntityID: id,
			HLC:      ts,
		})
	default:
		patch, err := parsePatch(args[2:])
		if err != nil {
			return err
		}
		c = change.MakeUpsert(change.UpsertParams{
			Stream:   cfg.Replicator.Stream,
			Entity:   entity,
			EntityID: id,
			Patch:    patch,
			HLC:      ts,
		})
	}

	client := ripplehttp.NewClient(cfg.Remote)
	res, err := client.Append(cmd.Context(), logbroker.AppendRequest{
		Stream:  cfg.Replicator.Stream,
		Changes: []change.Change{c},
	})
	if err != nil {
		return err
	}

	ui := NewUI()
	ui.Blank()
	ui.Success(fmt.Sprintf("accepted %d change(s) on %q at %s", res.Accepted, cfg.Replicator.Stream, ts))
	return nil
}

func parsePatch(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("an upsert needs at least one field=value argument")
	}
	patch := make(map[string]any, len(pairs))
	for _, p := range pairs {
		field, value, ok := strings.Cut(p, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("malformed field assignment %q, want field=value", p)
		}
		patch[field] = value
	}
	return patch, nil
}
