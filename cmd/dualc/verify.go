package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sbl8/dualc/bridge"
	"github.com/sbl8/dualc/core"
)

type check struct {
	name string
	fn   func() error
}

var checks = []check{
	{"transform tables", core.Verify},
	{"canonical bytes", verifyBytes},
	{"bridge", bridge.Verify},
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Exhaustively check the state space, canonical bytes and the bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			g, _ := errgroup.WithContext(cmd.Context())
			for _, c := range checks {
				g.Go(func() error {
					if err := c.fn(); err != nil {
						return fmt.Errorf("%s: %w", c.name, err)
					}
					app.logger.Debug("check passed", "check", c.name)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d checks over %d states in %s\n",
				len(checks), core.NumClasses, time.Since(start).Round(time.Microsecond))
			return nil
		},
	}
}

// verifyBytes checks that every state has a distinct canonical byte that
// decodes back to it.
func verifyBytes() error {
	seen := make(map[byte]core.Class, core.NumClasses)
	for i := range core.NumClasses {
		c := core.Class(i)
		b := core.ToCanonicalByte(c)
		if prev, dup := seen[b]; dup {
			return fmt.Errorf("states %d and %d share byte %#02x", prev, i, b)
		}
		seen[b] = c
		if !core.IsCanonicalByte(b) {
			return fmt.Errorf("byte %#02x of state %d is not canonical", b, i)
		}
		if back := core.FromByte(b); back != c {
			return fmt.Errorf("byte %#02x decodes to %d, want %d", b, back, i)
		}
	}
	return nil
}
