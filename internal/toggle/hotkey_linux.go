//go:build linux

package toggle

import "golang.design/x/hotkey"

// modAlt returns the Alt modifier for Linux (Mod1).
func modAlt() hotkey.Modifier {
	return hotkey.Mod1
}

// modSuper returns the Super modifier for Linux (Mod4).
func modSuper() hotkey.Modifier {
	return hotkey.Mod4
}
