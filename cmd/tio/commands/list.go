package commands

import (
	"context"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/twinleaf/tio-go/pkg/rpctree"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the RPCs enumerated from the device",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	leaves := collectLeaves(c.tree.Root())
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].FullPath < leaves[j].FullPath })

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "TYPE", "R", "W", "STORED"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for _, n := range leaves {
		table.Append([]string{
			n.FullPath,
			n.Tag.Name(),
			boolMark(n.Flags.Has(rpctree.Readable)),
			boolMark(n.Flags.Has(rpctree.Writable)),
			boolMark(n.Flags.Has(rpctree.Stored)),
		})
	}
	table.Render()
	return nil
}

func collectLeaves(n *rpctree.Node) []*rpctree.Node {
	var out []*rpctree.Node
	if n.IsLeaf {
		out = append(out, n)
	}
	for _, child := range n.Children {
		out = append(out, collectLeaves(child)...)
	}
	return out
}

func boolMark(b bool) string {
	if b {
		return "x"
	}
	return "-"
}
