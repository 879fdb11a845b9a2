package devserve

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestResolvePort(t *testing.T) {
	testCases := []struct {
		name       string
		choice     string
		custom     string
		wantPort   int
		wantNotice bool
	}{
		{name: "default", choice: "1", wantPort: 8000},
		{name: "alternative", choice: "2", wantPort: 8001},
		{name: "custom", choice: "3", custom: "9090", wantPort: 9090},
		{name: "custom with spaces", choice: " 3 ", custom: " 9090\n", wantPort: 9090},
		{name: "custom not a number", choice: "3", custom: "abcd", wantPort: 8000, wantNotice: true},
		{name: "custom empty", choice: "3", custom: "", wantPort: 8000, wantNotice: true},
		{name: "custom out of range", choice: "3", custom: "70000", wantPort: 8000, wantNotice: true},
		{name: "custom negative", choice: "3", custom: "-1", wantPort: 8000, wantNotice: true},
		{name: "unknown choice", choice: "4", wantPort: 8000, wantNotice: true},
		{name: "empty choice", choice: "", wantPort: 8000, wantNotice: true},
		{name: "text choice", choice: "abc", wantPort: 8000, wantNotice: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			port, notice := ResolvePort(tc.choice, tc.custom)
			is.Equal(port, tc.wantPort)
			is.Equal(notice != "", tc.wantNotice)
		})
	}
}

func TestPrompt_Menu(t *testing.T) {
	is := is.New(t)
	var out bytes.Buffer

	port := Prompt(strings.NewReader("2\n"), &out)

	is.Equal(port, 8001)
	is.True(strings.Contains(out.String(), "1) Port 8000 (default)"))
	is.True(strings.Contains(out.String(), "2) Port 8001 (alternative)"))
	is.True(strings.Contains(out.String(), "3) Custom port"))
	is.True(strings.Contains(out.String(), "Enter choice (1-3):"))
	is.True(!strings.Contains(out.String(), "Enter port number:"))
}

func TestPrompt_CustomPort(t *testing.T) {
	is := is.New(t)
	var out bytes.Buffer

	port := Prompt(strings.NewReader("3\n9090\n"), &out)

	is.Equal(port, 9090)
	is.True(strings.Contains(out.String(), "Enter port number:"))
}

func TestPrompt_InvalidCustomPort(t *testing.T) {
	is := is.New(t)
	var out bytes.Buffer

	port := Prompt(strings.NewReader("3\nabcd\n"), &out)

	is.Equal(port, 8000)
	is.True(strings.Contains(out.String(), "Invalid port number. Using 8000"))
}

func TestPrompt_InvalidChoice(t *testing.T) {
	is := is.New(t)
	var out bytes.Buffer

	port := Prompt(strings.NewReader("7\n"), &out)

	is.Equal(port, 8000)
	is.True(strings.Contains(out.String(), "Invalid choice. Using port 8000"))
}

func TestPrompt_EOF(t *testing.T) {
	is := is.New(t)
	var out bytes.Buffer

	is.Equal(Prompt(strings.NewReader(""), &out), 8000)
	// no trailing newline on the last answer
	is.Equal(Prompt(strings.NewReader("3\n8123"), &out), 8123)
}

func TestValidPort(t *testing.T) {
	is := is.New(t)
	for _, p := range []int{1, 80, DefaultPort, 65535} {
		is.True(ValidPort(p))
	}
	for _, p := range []int{-1, 0, 65536, 70000} {
		is.True(!ValidPort(p))
	}
}

func TestPromptContext_Answer(t *testing.T) {
	is := is.New(t)
	var out bytes.Buffer

	port, err := PromptContext(context.Background(), strings.NewReader("2\n"), &out)

	is.NoErr(err)
	is.Equal(port, AlternativePort)
}

func TestPromptContext_Cancel(t *testing.T) {
	is := is.New(t)
	in, writer := io.Pipe()
	defer writer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := PromptContext(ctx, in, io.Discard)

	is.True(err != nil)
	is.Equal(err, context.DeadlineExceeded)
	is.True(time.Since(start) < 5*time.Second)
}
