package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/twinleaf/tio-go/pkg/wire"
)

var rpcCmd = &cobra.Command{
	Use:   "rpc <topic> [value]",
	Short: "Call one RPC by its dot-path name",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runRpc,
}

func runRpc(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	topic := args[0]
	node := c.tree.Lookup(topic)
	if node == nil {
		return fmt.Errorf("no such rpc %q", topic)
	}

	var arg *wire.Value
	if len(args) == 2 {
		val, err := parseValue(node.Tag, args[1])
		if err != nil {
			return fmt.Errorf("parsing argument for %q: %w", topic, err)
		}
		arg = &val
	}

	reply, err := c.tree.Call(ctx, topic, arg)
	if err != nil {
		return err
	}
	if reply == nil {
		fmt.Println("(no reply payload)")
		return nil
	}
	printValue(*reply)
	return nil
}

// parseValue converts a command-line string into a wire.Value carrying
// tag, the same type tag the RPC tree learned from rpc.listinfo.
func parseValue(tag wire.TypeTag, s string) (wire.Value, error) {
	switch tag {
	case wire.StringT:
		return wire.String(s), nil
	case wire.Float32T:
		f, err := strconv.ParseFloat(s, 32)
		return wire.Float32(float32(f)), err
	case wire.Float64T:
		f, err := strconv.ParseFloat(s, 64)
		return wire.Float64(f), err
	case wire.Uint8T:
		u, err := strconv.ParseUint(s, 10, 8)
		return wire.Uint8(uint8(u)), err
	case wire.Int8T:
		i, err := strconv.ParseInt(s, 10, 8)
		return wire.Int8(int8(i)), err
	case wire.Uint16T:
		u, err := strconv.ParseUint(s, 10, 16)
		return wire.Uint16(uint16(u)), err
	case wire.Int16T:
		i, err := strconv.ParseInt(s, 10, 16)
		return wire.Int16(int16(i)), err
	case wire.Uint32T:
		u, err := strconv.ParseUint(s, 10, 32)
		return wire.Uint32(uint32(u)), err
	case wire.Int32T:
		i, err := strconv.ParseInt(s, 10, 32)
		return wire.Int32(int32(i)), err
	case wire.Uint64T:
		u, err := strconv.ParseUint(s, 10, 64)
		return wire.Uint64(u), err
	case wire.Int64T:
		i, err := strconv.ParseInt(s, 10, 64)
		return wire.Int64(i), err
	case wire.NoneT:
		return wire.Value{}, nil
	default:
		return wire.Value{}, fmt.Errorf("unsupported type tag 0x%02x", uint8(tag))
	}
}

func printValue(v wire.Value) {
	if v.Tag == wire.StringT {
		fmt.Println(v.Str)
		return
	}
	fmt.Println(v.AsFloat64())
}
