//go:build windows

package util

import (
	"log/slog"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32             = windows.NewLazySystemDLL("kernel32.dll")
	user32               = windows.NewLazySystemDLL("user32.dll")
	procGetConsoleWindow = kernel32.NewProc("GetConsoleWindow")
	procShowWindow       = user32.NewProc("ShowWindow")
	procFreeConsole      = kernel32.NewProc("FreeConsole")
)

// Shells whose child processes count as started from a terminal.
var terminalShells = map[string]struct{}{
	"cmd.exe":             {},
	"powershell.exe":      {},
	"pwsh.exe":            {},
	"wt.exe":              {},
	"conhost.exe":         {},
	"windowsterminal.exe": {},
}

// IsRunFromGUI reports whether the process was started by double-click
// rather than from a terminal: either no console window exists at all, or
// the parent is Explorer instead of a shell.
func IsRunFromGUI() bool {
	hwnd, _, _ := procGetConsoleWindow.Call()
	parent := parentProcessName()
	_, fromShell := terminalShells[strings.ToLower(parent)]

	slog.Debug("startup origin", "parent", parent, "hasConsole", hwnd != 0, "fromShell", fromShell)

	if hwnd == 0 {
		return true
	}
	if fromShell {
		return false
	}
	return strings.EqualFold(parent, "explorer.exe")
}

// HideConsoleWindow hides and detaches the console allocated for a
// GUI-launched process.
func HideConsoleWindow() {
	hwnd, _, _ := procGetConsoleWindow.Call()
	if hwnd == 0 {
		slog.Debug("no console window to hide")
		return
	}
	_, _, _ = procShowWindow.Call(hwnd, windows.SW_HIDE)
	_, _, _ = procFreeConsole.Call()
}

// parentProcessName resolves the executable name of this process's parent
// via a toolhelp snapshot. Returns "" when it cannot be determined.
func parentProcessName() string {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(snapshot)

	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))

	findPID := func(pid uint32) (windows.ProcessEntry32, bool) {
		if err := windows.Process32First(snapshot, &pe); err != nil {
			return pe, false
		}
		for {
			if pe.ProcessID == pid {
				return pe, true
			}
			if err := windows.Process32Next(snapshot, &pe); err != nil {
				return pe, false
			}
		}
	}

	self, ok := findPID(uint32(os.Getpid()))
	if !ok || self.ParentProcessID == 0 {
		return ""
	}
	parent, ok := findPID(self.ParentProcessID)
	if !ok {
		return ""
	}
	return windows.UTF16ToString(parent.ExeFile[:])
}
