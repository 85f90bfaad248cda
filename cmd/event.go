package cmd

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/rbac-service/internal/core/events"
	"github.com/frahmantamala/rbac-service/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Inspect and exercise the audit event stream",
}

var listEventsCmd = &cobra.Command{
	Use:   "list",
	Short: "List the event types the service publishes",
	Run: func(cmd *cobra.Command, args []string) {
		for _, t := range events.KnownTypes {
			fmt.Println(t)
		}
	},
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a test event through the audit logger",
	Long:  `Publish a synthetic event so the audit log format and sink can be checked without touching the database.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lg := logger.LoggerWrapper()
		bus := events.NewEventBus(lg)
		events.NewAuditLogger(lg).Register(bus)
		return publishTestEvent(cmd.Context(), bus, args[0], eventData)
	},
}

var eventData string

func publishTestEvent(ctx context.Context, bus *events.EventBus, eventType, message string) error {
	if !slices.Contains(events.KnownTypes, eventType) {
		return fmt.Errorf("unknown event type %q, see `event list`", eventType)
	}

	ev := events.BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"message": message,
			"source":  "cli-command",
		},
	}
	if err := bus.PublishSync(ctx, ev); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventData, "data", "test message", "Event data message")

	eventCmd.AddCommand(listEventsCmd)
	eventCmd.AddCommand(publishEventCmd)
	rootCmd.AddCommand(eventCmd)
}
