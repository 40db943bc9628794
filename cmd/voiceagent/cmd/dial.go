// Dial is the operator-facing complement to the run worker loop:
// it places a single outbound call without a room-server job dispatch,
// grounded on examples/minimal/main.go's ad hoc one-shot SIP test
// helper but wired through pkg/dialer.Dialer so it exercises the exact
// code path spec.md §4.2 describes.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/voiceagent/runtime/pkg/config"
	"github.com/voiceagent/runtime/pkg/dialer"
)

// NewDialCmd builds the "dial" subcommand: a standalone outbound call
// placement, useful for validating trunk/credential configuration
// without standing up a full room-server job.
func NewDialCmd() *cobra.Command {
	var roomName, callee, identity string
	var ringTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Place a single outbound SIP call and report the result",
		RunE: func(c *cobra.Command, args []string) error {
			if callee == "" {
				return fmt.Errorf("--to is required")
			}
			if roomName == "" {
				roomName = "dial-" + time.Now().UTC().Format("20060102-150405")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			dl, err := dialer.New(dialer.Config{
				URL:             cfg.LiveKitURL,
				APIKey:          cfg.LiveKitAPIKey,
				APISecret:       cfg.LiveKitAPISecret,
				OutboundTrunkID: cfg.SIPOutboundTrunkID,
			})
			if err != nil {
				return fmt.Errorf("construct dialer: %w", err)
			}

			p, err := dl.Dial(c.Context(), dialer.DialOptions{
				RoomName:            roomName,
				CalleeE164:          callee,
				ParticipantIdentity: identity,
				RingTimeout:         ringTimeout,
			})
			if err != nil {
				return err
			}

			fmt.Printf("dialed %s into room %q: participant=%s sip_call_id=%s\n",
				callee, p.RoomName, p.ParticipantIdentity, p.SIPCallID)
			return nil
		},
	}

	cmd.Flags().StringVar(&roomName, "room", "", "room name to join the callee into (default: generated)")
	cmd.Flags().StringVar(&callee, "to", "", "E.164 number to call (required)")
	cmd.Flags().StringVar(&identity, "identity", "", "participant identity for the callee (default: sip-<number>)")
	cmd.Flags().DurationVar(&ringTimeout, "ring-timeout", 0, "how long to let the callee ring before giving up")
	return cmd
}
