package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var streamSamples int

var streamCmd = &cobra.Command{
	Use:   "stream <topic>",
	Short: "Print a fixed number of decoded rows for one source",
	Args:  cobra.ExactArgs(1),
	RunE:  runStream,
}

func init() {
	streamCmd.Flags().IntVar(&streamSamples, "samples", 10, "number of rows to read")
}

func runStream(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	topic := args[0]
	rows, err := c.sess.StreamReadTopic(ctx, topic, streamSamples)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return nil
	}

	headers := []string{"sample"}
	for _, cell := range rows[0].Cells {
		headers = append(headers, cell.Column)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for _, row := range rows {
		rec := []string{strconv.FormatUint(uint64(row.SampleNumber), 10)}
		for _, v := range row.Values() {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		table.Append(rec)
	}
	table.Render()
	return nil
}
