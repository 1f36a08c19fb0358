package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/WebFirstLanguage/lanchat/pkg/control"
)

const remoteTimeout = 10 * time.Second

var controlAddr string

func init() {
	for _, cmd := range []*cobra.Command{peersCmd, sendCmd, queryCmd, nameCmd} {
		cmd.Flags().StringVar(&controlAddr, "addr", "", "Control API address of the running node (overrides config)")
		rootCmd.AddCommand(cmd)
	}
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List live peers of the running node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			peers, err := c.Peers(ctx)
			if err != nil {
				return err
			}
			if len(peers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no live peers")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tADDRESS\tVERSION\tLAST SEEN")
			for _, p := range peers {
				name := p.Name
				if p.Self {
					name += " (self)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s:%d\t%d\t%s\n", p.ID, name, p.IP, p.Port, p.Version, p.LastSeen.Format(time.TimeOnly))
			}
			return w.Flush()
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <peer> <text...>",
	Short: "Send a message through the running node",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			id, err := c.Send(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued for %s\n", id)
			return nil
		})
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <peer>",
	Short: "Ask a peer for its display name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			return c.Query(ctx, args[0])
		})
	},
}

var nameCmd = &cobra.Command{
	Use:   "name [new name]",
	Short: "Show or change the running node's display name",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *control.Client) error {
			if len(args) == 0 {
				info, err := c.Info(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), info.Name)
				return nil
			}

			name, err := c.SetName(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "name set to %s\n", name)
			return nil
		})
	},
}

// withClient connects to the control API of the node configured for this
// user and runs fn with a bounded context
func withClient(cmd *cobra.Command, fn func(context.Context, *control.Client) error) error {
	addr := controlAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr = cfg.Control.Addr
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
	defer cancel()

	client, err := control.Dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("is the node running? %w", err)
	}
	defer client.Close()

	return fn(ctx, client)
}
