// Package commands implements the tio CLI's command tree: a thin
// exercising surface over pkg/session, not a product CLI (SPEC_FULL.md
// §6.12 — list RPCs, call one, print a stream).
package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	redisbridge "github.com/twinleaf/tio-go/pkg/bridge/redis"
	"github.com/twinleaf/tio-go/pkg/cache"
	"github.com/twinleaf/tio-go/pkg/metrics"
	"github.com/twinleaf/tio-go/pkg/observability"
	"github.com/twinleaf/tio-go/pkg/rpctree"
	"github.com/twinleaf/tio-go/pkg/session"
	"github.com/twinleaf/tio-go/pkg/transport"
)

var v = viper.New()

// rootCmd is the base command when tio is called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "tio",
	Short: "Minimal client for the TIO sensor-telemetry wire protocol",
	Long: `tio connects to a TIO-speaking device over TCP, UDP, serial, or an
in-memory router transport, and exercises the session library: list its
RPCs, call one, or print a stream of decoded rows.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("url", "tcp://localhost:7855", "device URL (tcp://host:port, udp://host:port, or a serial device path)")
	rootCmd.PersistentFlags().Duration("timeout", 3*time.Second, "RPC timeout")
	rootCmd.PersistentFlags().Bool("cache", false, "load/save the per-device metadata cache on connect")
	rootCmd.PersistentFlags().Bool("badger-cache", false, "use the Badger-backed cache store instead of the plain file store")
	rootCmd.PersistentFlags().String("metrics-addr", "", "if set, serve Prometheus metrics for the session's activity on this address (e.g. :9090)")
	rootCmd.PersistentFlags().String("redis-addr", "", "if set, mirror rows/log lines/RPC errors to Redis at this address")
	rootCmd.PersistentFlags().String("redis-password", "", "Redis AUTH password")
	rootCmd.PersistentFlags().Int("redis-db", 0, "Redis logical database")

	v.SetEnvPrefix("TIO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
	v.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	v.BindPFlag("cache", rootCmd.PersistentFlags().Lookup("cache"))
	v.BindPFlag("badger-cache", rootCmd.PersistentFlags().Lookup("badger-cache"))
	v.BindPFlag("metrics-addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))
	v.BindPFlag("redis-addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
	v.BindPFlag("redis-password", rootCmd.PersistentFlags().Lookup("redis-password"))
	v.BindPFlag("redis-db", rootCmd.PersistentFlags().Lookup("redis-db"))

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(rpcCmd)
	rootCmd.AddCommand(streamCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// connected is what every subcommand needs after dialing and
// handshaking: a live session and the RPC tree discovered during
// Connect, plus whatever ambient observability backends connect wired in
// (nil when the corresponding flag was left unset).
type connected struct {
	sess   *session.Session
	tree   *rpctree.Tree
	bridge *redisbridge.Client
}

// Close tears down the session and, if one was opened, the Redis bridge
// it was feeding.
func (c *connected) Close() error {
	err := c.sess.Close()
	if c.bridge != nil {
		if berr := c.bridge.Close(); err == nil {
			err = berr
		}
	}
	return err
}

// routeKeyOf joins routing bytes the way pkg/router keys its children, so
// a session's metrics/Redis labels agree with the routing path it is
// bound to.
func routeKeyOf(routing []byte) string {
	parts := make([]string, len(routing))
	for i, b := range routing {
		parts[i] = strconv.Itoa(int(b))
	}
	return strings.Join(parts, "/")
}

// connect dials v's configured URL, opens a Session over it, and drives
// the Handshake/Enumerating phases to Running.
func connect(ctx context.Context) (*connected, error) {
	t, routing, err := transport.Dial(v.GetString("url"))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", v.GetString("url"), err)
	}

	routeKey := routeKeyOf(routing)

	var rec *metrics.Recorder
	if addr := v.GetString("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		rec, err = metrics.NewRecorder(reg, routeKey)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(addr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics: %v\n", err)
			}
		}()
	}

	var bridge *redisbridge.Client
	if addr := v.GetString("redis-addr"); addr != "" {
		bridge, err = redisbridge.New(addr, v.GetString("redis-password"), v.GetInt("redis-db"))
		if err != nil {
			return nil, fmt.Errorf("redis bridge: %w", err)
		}
	}

	var observer session.Observer
	if rec != nil || bridge != nil {
		observer = observability.New(routeKey, rec, bridge)
	}

	sess := session.New(t, session.Config{
		Routing:    routing,
		RpcTimeout: v.GetDuration("timeout"),
		Observer:   observer,
	})

	var store cache.Store
	if v.GetBool("cache") {
		if v.GetBool("badger-cache") {
			dir, err := os.UserCacheDir()
			if err != nil {
				return nil, err
			}
			bs, err := cache.OpenBadgerStore(dir + "/tio-badger-cache")
			if err != nil {
				return nil, fmt.Errorf("open badger cache: %w", err)
			}
			store = bs
		} else {
			fs, err := cache.NewFileStore()
			if err != nil {
				return nil, fmt.Errorf("open file cache: %w", err)
			}
			store = fs
		}
	}

	result, err := sess.Connect(ctx, session.ConnectConfig{Cache: store})
	if err != nil {
		sess.Close()
		if bridge != nil {
			bridge.Close()
		}
		return nil, fmt.Errorf("connect: %w", err)
	}
	fmt.Fprintf(os.Stderr, "connected to %s (%s)\n", result.DeviceDescription, phaseNote(result.Warm))
	return &connected{sess: sess, tree: result.Tree, bridge: bridge}, nil
}

func phaseNote(warm bool) string {
	if warm {
		return "warm start from cache"
	}
	return "cold enumeration"
}
