package devserve

import (
	"testing"

	"github.com/matryer/is"
)

func TestBrowserCommand(t *testing.T) {
	const url = "http://localhost:8000"
	testCases := []struct {
		name string
		goos string
		env  string
		want []string
	}{
		{name: "linux", goos: "linux", want: []string{"xdg-open", url}},
		{name: "freebsd", goos: "freebsd", want: []string{"xdg-open", url}},
		{name: "darwin", goos: "darwin", want: []string{"open", url}},
		{name: "windows", goos: "windows", want: []string{"rundll32", "url.dll,FileProtocolHandler", url}},
		{name: "env plain", goos: "linux", env: "firefox", want: []string{"firefox", url}},
		{name: "env with args", goos: "darwin", env: `"/Applications/My Browser" --new-tab`, want: []string{"/Applications/My Browser", "--new-tab", url}},
		{name: "env placeholder", goos: "linux", env: "chromium --app=%s", want: []string{"chromium", "--app=" + url}},
		{name: "env placeholder word", goos: "linux", env: "w3m %s -dump", want: []string{"w3m", url, "-dump"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			got, err := browserCommand(tc.goos, tc.env, url)
			is.NoErr(err)
			is.Equal(got, tc.want)
		})
	}
}

func TestOpenBrowser_MissingCommand(t *testing.T) {
	is := is.New(t)
	t.Setenv("BROWSER", "devserve-no-such-browser-binary")
	is.True(OpenBrowser("http://localhost:8000") != nil)
}
