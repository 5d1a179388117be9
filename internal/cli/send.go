package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/headblockhead/lorafhss"
)

var (
	sendRetry   int
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <node-id> <message>",
	Short: "Send a request and wait for its acknowledgement",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		destination, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		attempts := cfg.Retry
		if sendRetry > 0 {
			attempts = sendRetry
		}
		node, closeNode, err := openNode(nil)
		if err != nil {
			return err
		}
		defer closeNode()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		start := time.Now()
		err = node.Request(ctx, destination, []byte(args[1]),
			lorafhss.WithRetry(sendRetry), lorafhss.WithTimeout(sendTimeout))
		if errors.Is(err, lorafhss.ErrRequestTimedOut) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s no acknowledgement from node %d after %d attempts\n",
				errorStyle.Render("timeout"), destination, attempts)
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s by node %d %s\n",
			okStyle.Render("acknowledged"), destination, dimStyle.Render(time.Since(start).Round(time.Millisecond).String()))
		return nil
	},
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <node-id> <message>",
	Short: "Broadcast a message to every listening node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		destination, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		node, closeNode, err := openNode(nil)
		if err != nil {
			return err
		}
		defer closeNode()

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
		defer cancel()
		if err := node.Broadcast(ctx, destination, []byte(args[1])); err != nil {
			return err
		}
		// Keep the node open until the packet is on air.
		if err := node.WaitAvailable(ctx); err != nil {
			return errors.Wrap(err, "wait for transmit done")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d bytes\n", okStyle.Render("broadcast"), len(args[1]))
		return nil
	},
}

func parseNodeID(s string) (uint16, error) {
	id, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, errors.Errorf("invalid node id %q", s)
	}
	return uint16(id), nil
}

func init() {
	sendCmd.Flags().IntVar(&sendRetry, "retry", 0, "transmit attempts (default from config)")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 0, "acknowledgement timeout per attempt (default from config)")
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(broadcastCmd)
}
