package devserve

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

const (
	DefaultPort     = 8000
	AlternativePort = 8001
)

// ValidPort reports whether p can be bound as a TCP port.
func ValidPort(p int) bool {
	return p >= 1 && p <= 65535
}

// ResolvePort maps a menu choice (and the custom value for choice "3") to a
// port. notice is non-empty when the input was rejected and DefaultPort used.
func ResolvePort(choice, custom string) (port int, notice string) {
	switch strings.TrimSpace(choice) {
	case "1":
		return DefaultPort, ""
	case "2":
		return AlternativePort, ""
	case "3":
		p, err := strconv.Atoi(strings.TrimSpace(custom))
		if err != nil || !ValidPort(p) {
			return DefaultPort, fmt.Sprintf("Invalid port number. Using %d", DefaultPort)
		}
		return p, ""
	}
	return DefaultPort, fmt.Sprintf("Invalid choice. Using port %d", DefaultPort)
}

func readLine(r *bufio.Reader) string {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return ""
	}
	return strings.TrimSpace(line)
}

// Prompt shows the port menu on out and reads the answers from in.
func Prompt(in io.Reader, out io.Writer) int {
	r := bufio.NewReader(in)
	bold := color.New(color.Bold)
	warn := color.New(color.FgYellow)

	bold.Fprintln(out, "Select development server port:")
	fmt.Fprintf(out, "1) Port %d (default)\n", DefaultPort)
	fmt.Fprintf(out, "2) Port %d (alternative)\n", AlternativePort)
	fmt.Fprintln(out, "3) Custom port")
	fmt.Fprintln(out)

	fmt.Fprint(out, "Enter choice (1-3): ")
	choice := readLine(r)
	custom := ""
	if choice == "3" {
		fmt.Fprint(out, "Enter port number: ")
		custom = readLine(r)
	}
	port, notice := ResolvePort(choice, custom)
	if notice != "" {
		warn.Fprintln(out, notice)
	}
	return port
}

// PromptContext is Prompt that gives up when ctx is done, so an interrupt at
// the menu does not wait for a line on in.
func PromptContext(ctx context.Context, in io.Reader, out io.Writer) (int, error) {
	answered := make(chan int, 1)
	go func() { answered <- Prompt(in, out) }()
	select {
	case port := <-answered:
		return port, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
