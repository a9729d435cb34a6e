//go:build !darwin && !windows

package oauth

func platformLauncher() Launcher {
	return commandLauncher{name: "xdg-open"}
}
