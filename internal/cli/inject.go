package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/cogpy/swarmcog/internal/bus"
	"github.com/cogpy/swarmcog/internal/config"
	"github.com/spf13/cobra"
)

var (
	injectType  string
	injectAgent string
	injectKey   string
	injectValue string
)

var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Publish a belief, goal or knowledge event to a running swarm via Kafka",
	RunE:  runInject,
}

func init() {
	injectCmd.Flags().StringVar(&injectType, "type", bus.InjectBelief, "event type: belief, goal or knowledge")
	injectCmd.Flags().StringVar(&injectAgent, "agent", "", "target agent id (empty targets every agent)")
	injectCmd.Flags().StringVar(&injectKey, "key", "", "belief key or knowledge kind")
	injectCmd.Flags().StringVar(&injectValue, "value", "", "belief value, goal or knowledge content")
}

func runInject(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cfg.Events.InjectTopic == "" {
		return fmt.Errorf("events.injectTopic is not configured")
	}

	p := bus.NewInjectProducer(cfg.Events.KafkaBrokers, cfg.Events.InjectTopic)
	defer p.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	sent, err := p.Send(ctx, bus.InjectedEvent{
		Type:    injectType,
		Source:  "swarmcog-cli",
		AgentID: injectAgent,
		Key:     injectKey,
		Value:   injectValue,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s event %s to %s\n", sent.Type, sent.IdempotencyKey, cfg.Events.InjectTopic)
	return nil
}
