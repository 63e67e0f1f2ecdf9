package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/crudflow/internal/runtime/jsoncodec"
	"github.com/drblury/crudflow/internal/runtime/viewset"
)

// CollectionNames lists what a collection registers and publishes.
type CollectionNames struct {
	Collection   string   `json:"collection"`
	Procedures   []string `json:"procedures"`
	ChangedTopic string   `json:"changed_topic"`
	DeletedTopic string   `json:"deleted_topic"`
}

var actionOrder = []string{viewset.ActionList, viewset.ActionCreate, viewset.ActionUpdate, viewset.ActionDelete}

// NewProceduresCommand creates the procedures command.
func NewProceduresCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "procedures",
		Short: "Print the procedure and topic names the config produces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}

			names := make([]CollectionNames, 0, len(cfg.Collections))
			for _, col := range cfg.Collections {
				n := CollectionNames{
					Collection:   col.Name,
					ChangedTopic: viewset.ChangedTopic(cfg.URIPrefix, col.Name),
					DeletedTopic: viewset.DeletedTopic(cfg.URIPrefix, col.Name),
				}
				for _, action := range actionOrder {
					if col.Enables(action) {
						n.Procedures = append(n.Procedures, viewset.ProcedureName(cfg.URIPrefix, action, col.Name))
					}
				}
				names = append(names, n)
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return jsoncodec.Encode(out, names)
			}
			for _, n := range names {
				fmt.Fprintf(out, "%s\n", n.Collection)
				for _, p := range n.Procedures {
					fmt.Fprintf(out, "  procedure %s\n", p)
				}
				fmt.Fprintf(out, "  topic     %s\n", n.ChangedTopic)
				fmt.Fprintf(out, "  topic     %s\n", n.DeletedTopic)
			}
			return nil
		},
	}
}
