//go:build darwin

package oauth

func platformLauncher() Launcher {
	return commandLauncher{name: "open"}
}
