package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/aymanbagabas/go-osc52/v2"
)

// copyOSC52 writes text to the system clipboard via the OSC 52 terminal
// escape sequence. It writes straight to /dev/tty, bypassing bubbletea's
// managed output; the sequence has no visible effect so it is safe to
// send alongside the renderer. This works over SSH, where a native
// clipboard API would set the clipboard of the wrong machine.
func copyOSC52(text string) error {
	tty, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("opening terminal: %w", err)
	}
	defer tty.Close()

	seq := osc52.New(text)
	term := os.Getenv("TERM")
	switch {
	case os.Getenv("TMUX") != "" || strings.HasPrefix(term, "tmux"):
		seq = seq.Tmux()
	case strings.HasPrefix(term, "screen"):
		seq = seq.Screen()
	}

	if _, err := seq.WriteTo(tty); err != nil {
		return fmt.Errorf("writing to terminal: %w", err)
	}
	return nil
}
