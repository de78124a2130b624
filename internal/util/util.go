//go:build !windows

package util

// IsRunFromGUI reports whether the process was launched outside a terminal.
// Only meaningful on Windows, where a double-clicked server needs its
// console handled; anywhere else service managers cover that ground.
func IsRunFromGUI() bool {
	return false
}

// HideConsoleWindow is a no-op outside Windows.
func HideConsoleWindow() {}
