//go:build windows

package oauth

func platformLauncher() Launcher {
	return commandLauncher{name: "rundll32", args: []string{"url.dll,FileProtocolHandler"}}
}
