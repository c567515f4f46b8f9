package console

// interruptByte is what a terminal in raw mode sends for Ctrl-C.
const interruptByte = 0x03

// Sender is where keystrokes go. *terminal.Session implements it.
type Sender interface {
	Send(data []byte) (uint64, error)
	Interrupt() (uint64, error)
}

// InputWriter forwards keystrokes to a Sender, splitting out Ctrl-C so it
// travels as an interrupt rather than as shell input.
//
// InputWriter is not safe for concurrent use from multiple goroutines.
type InputWriter struct {
	s Sender
}

func NewInputWriter(s Sender) *InputWriter {
	return &InputWriter{s: s}
}

// Write submits p. It stops at the first refused submission and returns
// that error.
func (w *InputWriter) Write(p []byte) (int, error) {
	start := 0
	for i, b := range p {
		if b != interruptByte {
			continue
		}
		if i > start {
			if _, err := w.s.Send(p[start:i]); err != nil {
				return start, err
			}
		}
		if _, err := w.s.Interrupt(); err != nil {
			return i, err
		}
		start = i + 1
	}
	if start < len(p) {
		if _, err := w.s.Send(p[start:]); err != nil {
			return start, err
		}
	}
	return len(p), nil
}
