// Package redis implements an optional telemetry bridge that mirrors a
// session's already-in-memory activity into Redis: rows as hash writes +
// pub/sub notifications, log lines and RPC errors as list entries. It
// adapts the teacher's pkg/redis client (HSet+Publish pipelines, LPush)
// from device-state mirroring to TIO telemetry mirroring; nothing here
// persists live sample data itself, only a bounded, opt-in mirror of rows
// the session already holds (spec.md §4.4, Non-goals).
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/twinleaf/tio-go/pkg/protocol"
)

// Client wraps a go-redis client with the narrow set of operations the
// bridge needs: row/log/rpc-error mirroring, not general device state.
type Client struct {
	rdb *redis.Client
	ctx context.Context
}

// New dials addr and pings it before returning, matching the teacher's
// fail-fast connect behavior.
func New(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("bridge/redis: connect to %s: %w", addr, err)
	}
	return &Client{rdb: rdb, ctx: ctx}, nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error { return c.rdb.Close() }

func rowKey(routeKey string) string      { return "tio:" + routeKey }
func logKey(routeKey string) string      { return "tio:" + routeKey + ":log" }
func rpcErrorKey(routeKey string) string { return "tio:" + routeKey + ":rpc_errors" }
func cmdKey(routeKey string) string      { return "tio:" + routeKey + ":cmd" }

// PublishRow writes the row's most recent value per column into a hash
// keyed by routeKey, and publishes a compact "column:value" notification
// per channel, mirroring the teacher's WriteAndPublishString pipeline.
func (c *Client) PublishRow(routeKey string, row protocol.Row) {
	if c == nil {
		return
	}
	key := rowKey(routeKey)
	pipe := c.rdb.Pipeline()
	for _, cell := range row.Cells {
		val := strconv.FormatFloat(cell.Value.AsFloat64(), 'g', -1, 64)
		pipe.HSet(c.ctx, key, cell.Column, val)
		pipe.Publish(c.ctx, key, fmt.Sprintf("%s:%s", cell.Column, val))
	}
	pipe.Exec(c.ctx)
}

// PublishLog pushes a device LOG message onto a bounded list, trimmed to
// the most recent 1000 entries so the mirror never grows unbounded
// (Non-goals exclude persistence of live sample data, not a capped log
// tail).
func (c *Client) PublishLog(routeKey, message string) {
	if c == nil {
		return
	}
	key := logKey(routeKey)
	pipe := c.rdb.Pipeline()
	pipe.LPush(c.ctx, key, message)
	pipe.LTrim(c.ctx, key, 0, 999)
	pipe.Exec(c.ctx)
}

// PublishRPCError pushes a tab-separated "topic<TAB>code<TAB>message" entry
// onto the route's error list, capped the same way as PublishLog.
func (c *Client) PublishRPCError(routeKey, topic string, code uint16, message string) {
	if c == nil {
		return
	}
	key := rpcErrorKey(routeKey)
	entry := strings.Join([]string{topic, strconv.Itoa(int(code)), message}, "\t")
	pipe := c.rdb.Pipeline()
	pipe.LPush(c.ctx, key, entry)
	pipe.LTrim(c.ctx, key, 0, 999)
	pipe.Exec(c.ctx)
}

// WaitForCommand blocks (up to timeout) for an external LPUSH onto the
// route's command list, the bridge's inbound control path, adapted from
// the teacher's BRPop helper.
func (c *Client) WaitForCommand(routeKey string, timeout time.Duration) (string, bool, error) {
	key := cmdKey(routeKey)
	result, err := c.rdb.BRPop(c.ctx, timeout, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(result) != 2 {
		return "", false, fmt.Errorf("bridge/redis: unexpected BRPOP result %v", result)
	}
	return result[1], true, nil
}
