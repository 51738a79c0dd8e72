package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/pos-payments/internal"
	"github.com/frahmantamala/pos-payments/internal/core/events"
	"github.com/frahmantamala/pos-payments/internal/gateway/mpesa"
	"github.com/frahmantamala/pos-payments/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish sample payment events to check handlers and the Kafka forwarder`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a sample payment event",
	Long:  `Publish a sample payment.reconciled or payment.callback_failed event on the bus, forwarding it to Kafka when --kafka is set`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(args[0])
	},
}

var (
	eventOrderID string
	eventKafka   bool
)

func sampleEvent(eventType string) (events.Event, error) {
	txnRef := fmt.Sprintf("test-%d", time.Now().Unix())
	switch eventType {
	case events.EventTypePaymentReconciled:
		return events.NewPaymentReconciledEvent(events.ReconciledParams{
			TenantID:      "demo-tenant",
			OrderID:       eventOrderID,
			Gateway:       mpesa.Name,
			TxnRef:        txnRef,
			Outcome:       "success",
			PaymentStatus: "paid",
			OrderStatus:   "confirmed",
			Amount:        "100.00",
			Currency:      "KES",
		}), nil
	case events.EventTypePaymentCallbackFailed:
		return events.NewPaymentCallbackFailedEvent(mpesa.Name, eventOrderID, txnRef,
			string(internal.ErrCodeTransactionalFailure), "sample failure from cli"), nil
	default:
		return nil, fmt.Errorf("unknown event type %q (want %s or %s)",
			eventType, events.EventTypePaymentReconciled, events.EventTypePaymentCallbackFailed)
	}
}

func publishTestEvent(eventType string) error {
	log := logger.LoggerWrapper()

	event, err := sampleEvent(eventType)
	if err != nil {
		return err
	}

	eventBus := events.NewEventBus(log)
	eventBus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		log.Info("test handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	if eventKafka {
		config, err := loadConfig(configDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		brokers := config.Events.Brokers()
		if len(brokers) == 0 {
			return fmt.Errorf("events.kafka_brokers is not configured")
		}
		forwarder := events.NewKafkaForwarder(events.NewKafkaWriter(brokers, config.Events.KafkaTopic), log)
		forwarder.Register(eventBus, eventType)
		defer forwarder.Close()
	}

	log.Info("publishing test event", "event_type", eventType, "event_id", event.EventID())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := eventBus.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	if err := eventBus.Wait(ctx); err != nil {
		return fmt.Errorf("handlers did not finish: %w", err)
	}

	log.Info("test event published successfully")
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventOrderID, "order-id", "sample-order", "Order id carried by the event")
	publishEventCmd.Flags().BoolVar(&eventKafka, "kafka", false, "Also forward the event to the configured Kafka topic")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
