package ibus

import (
	"fmt"
	"os"
	"path/filepath"
)

// componentXMLTemplate is the on-disk component file for IBus-managed
// startup. Field values match the descriptor registered at runtime in
// self-registered mode.
const componentXMLTemplate = `<?xml version="1.0" encoding="utf-8"?>
<component>
    <name>%s</name>
    <description>Dikt Speech-to-Text</description>
    <exec>%s --ibus</exec>
    <version>%s</version>
    <author>Dikt Team</author>
    <license>MIT</license>
    <homepage>https://github.com/rohithmahesh3/Dikt</homepage>
    <textdomain>dikt-ibus</textdomain>
    <engines>
        <engine>
            <name>dikt</name>
            <longname>Dikt</longname>
            <description>Dikt speech-to-text dictation</description>
            <language>other</language>
            <license>MIT</license>
            <author>Dikt Team</author>
            <icon>dikt</icon>
            <layout>default</layout>
        </engine>
    </engines>
</component>
`

func componentFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "ibus", "component", "dikt.xml"), nil
}

// InstallComponent writes the component file so the IBus daemon can
// discover and spawn the engine. Run "ibus restart" afterwards.
func InstallComponent() error {
	path, err := componentFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	binPath, err := os.Executable()
	if err != nil {
		binPath = "/usr/local/bin/dikt-ibus-engine"
	}

	xml := fmt.Sprintf(componentXMLTemplate, BusName, binPath, Version)
	return os.WriteFile(path, []byte(xml), 0o644)
}

// UninstallComponent removes the component file.
func UninstallComponent() error {
	path, err := componentFilePath()
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
