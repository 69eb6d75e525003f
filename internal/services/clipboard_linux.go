//go:build linux

package services

// clipboardAvailable indicates if clipboard functionality is available on this platform
const clipboardAvailable = false

func initClipboard() error {
	return ErrClipboardUnavailable
}

func writeToClipboard(string) error {
	return ErrClipboardUnavailable
}
