//go:build windows

package console

// watchResize is a no-op: Windows consoles deliver no resize signal.
func watchResize(func()) (stop func()) {
	return func() {}
}
