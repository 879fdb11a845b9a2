package devserve

import (
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/buildkite/shellwords"
	"github.com/pkg/errors"
)

// browserCommand returns the argv that opens url. $BROWSER wins when set; it
// may carry arguments and a %s placeholder for the url.
func browserCommand(goos, env, url string) ([]string, error) {
	if env != "" {
		args, err := shellwords.Split(env)
		if err != nil {
			return nil, errors.Wrap(err, "parse $BROWSER")
		}
		if len(args) == 0 {
			return nil, errors.New("empty $BROWSER")
		}
		replaced := false
		for i, a := range args {
			if strings.Contains(a, "%s") {
				args[i] = strings.ReplaceAll(a, "%s", url)
				replaced = true
			}
		}
		if !replaced {
			args = append(args, url)
		}
		return args, nil
	}
	switch goos {
	case "darwin":
		return []string{"open", url}, nil
	case "windows":
		return []string{"rundll32", "url.dll,FileProtocolHandler", url}, nil
	default:
		return []string{"xdg-open", url}, nil
	}
}

// OpenBrowser starts the user's browser on url without waiting for it.
func OpenBrowser(url string) error {
	args, err := browserCommand(runtime.GOOS, os.Getenv("BROWSER"), url)
	if err != nil {
		return err
	}
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start %s", args[0])
	}
	// reap the child in the background
	go func() { _ = cmd.Wait() }()
	return nil
}
