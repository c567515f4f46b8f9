//go:build !windows

package console

import (
	"os"
	"os/signal"
	"syscall"
)

// watchResize calls onResize on every SIGWINCH until stop is called.
func watchResize(onResize func()) (stop func()) {
	sigwinch := make(chan os.Signal, 1)
	signal.Notify(sigwinch, syscall.SIGWINCH)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigwinch:
				onResize()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigwinch)
		close(done)
	}
}
