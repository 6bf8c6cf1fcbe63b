package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/mentor-ticket-service/internal/events"
	"github.com/spec-kit/mentor-ticket-service/internal/persistence"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream ticket events from the Redis events channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Redis.Enabled {
			return errors.New("redis is disabled; set REDIS_ENABLED=true")
		}
		types, _ := cmd.Flags().GetStringSlice("type")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx := cmd.Context()
		rd := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer rd.Close()
		pub, err := events.NewRedisPublisher(rd.Client, cfg.Redis.EventsChannel, logger)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		var mu sync.Mutex
		err = pub.Subscribe(ctx, func(ev events.Event) {
			if len(types) > 0 && !slices.Contains(types, string(ev.Type)) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if err := writeEvent(out, ev, asJSON); err != nil {
				logger.Warn("write event failed", zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "watching %s\n", cfg.Redis.EventsChannel)
		<-ctx.Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().StringSlice("type", nil, "event types to show (default all)")
	watchCmd.Flags().Bool("json", false, "print one JSON object per line")
}

func writeEvent(w io.Writer, ev events.Event, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(ev)
	}
	_, err := fmt.Fprintf(w, "%s  %-26s %-36s %s\n",
		ev.Timestamp.UTC().Format(time.RFC3339), ev.Type, ev.TicketID, ev.Actor)
	return err
}
