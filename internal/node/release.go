package node

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Release takes the pointer back to this machine, whatever peer holds it.
func (n *Node) Release() error {
	return n.ctrl.Reclaim()
}

// handleReleaseSignals reclaims the pointer on SIGUSR1, for window manager
// keybindings and for when the holding peer hangs.
func (n *Node) handleReleaseSignals(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	n.releaseOn(ctx, sigChan)
}

func (n *Node) releaseOn(ctx context.Context, sigChan <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			log.Info("Release requested", "signal", sig)
			if err := n.Release(); err != nil {
				log.Warn("Release failed", "err", err)
			}
		}
	}
}
