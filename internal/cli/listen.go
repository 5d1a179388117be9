package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/headblockhead/lorafhss"
	"github.com/headblockhead/lorafhss/internal/relay"
)

var relayAddr string

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Receive and acknowledge packets until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if relayAddr != "" {
			cfg.Relay.Addr = relayAddr
		}
		var handler lorafhss.Handler = printer(cmd.OutOrStdout())
		if cfg.Relay.Addr != "" {
			r := relay.New(cfg.Relay.Addr, cfg.Relay.Channel, log)
			if err := r.Ping(cmd.Context()); err != nil {
				r.Close()
				return err
			}
			defer r.Close()
			r.Next = handler
			handler = r
			log.WithField("addr", cfg.Relay.Addr).Info("relaying to redis")
		}
		// Stay in receive between packets.
		cfg.Relisten = true
		node, closeNode, err := openNode(handler)
		if err != nil {
			return err
		}
		defer closeNode()
		if err := node.Listen(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s node %d, ctrl-c to stop\n", headerStyle.Render("listening"), node.ID())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

// printer writes each received packet as one styled line.
func printer(w io.Writer) lorafhss.HandlerFuncs {
	show := func(m lorafhss.Message) {
		fmt.Fprintln(w, formatMessage(m))
	}
	return lorafhss.HandlerFuncs{Request: show, Broadcast: show}
}

func formatMessage(m lorafhss.Message) string {
	var b strings.Builder
	b.WriteString(kindStyle.Render(fmt.Sprintf("%-9s", m.Header.Kind)))
	fmt.Fprintf(&b, " %d -> %d", m.Header.Source, m.Header.Destination)
	if m.Header.Kind == lorafhss.Request {
		fmt.Fprintf(&b, " #%d", m.Header.PacketID)
	}
	b.WriteString(" ")
	if utf8.Valid(m.Payload) {
		fmt.Fprintf(&b, "%q", m.Payload)
	} else {
		fmt.Fprintf(&b, "% x", m.Payload)
	}
	b.WriteString(" ")
	b.WriteString(dimStyle.Render(fmt.Sprintf("snr %.2fdB rssi %.2fdBm", m.Quality.SNR, m.Quality.RSSI)))
	return b.String()
}

func init() {
	listenCmd.Flags().StringVar(&relayAddr, "relay", "", "publish received packets to the Redis server at this address")
	rootCmd.AddCommand(listenCmd)
}
