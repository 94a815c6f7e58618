package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
)

// stdinPrompter is the human channel for 2FA challenges and destination
// sign-in: it prints to the terminal and blocks on Enter.
type stdinPrompter struct {
	in *bufio.Reader
}

func newStdinPrompter() *stdinPrompter {
	return &stdinPrompter{in: bufio.NewReader(os.Stdin)}
}

func (p *stdinPrompter) Notify(message string) {
	fmt.Println(message)
}

func (p *stdinPrompter) Await(ctx context.Context, message string) error {
	fmt.Println(message)

	done := make(chan error, 1)
	go func() {
		_, err := p.in.ReadString('\n')
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
