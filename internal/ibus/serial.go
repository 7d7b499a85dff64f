package ibus

import "github.com/godbus/dbus/v5"

// IBus serializes its GObject types onto D-Bus as structs whose first two
// members are the type name and an attachment dictionary. The records below
// mirror those wire layouts field for field; godbus marshals exported
// struct fields in declaration order, which is exactly what the daemon
// expects to find inside the variant.

// engineDescRecord is the wire form of IBusEngineDesc.
type engineDescRecord struct {
	TypeName    string
	Attachments map[string]dbus.Variant

	Name        string
	LongName    string
	Description string
	Language    string
	License     string
	Author      string
	Icon        string
	Layout      string

	Rank          uint32
	Hotkeys       string
	Symbol        string
	Setup         string
	LayoutVariant string
	LayoutOption  string
	Version       string
	TextDomain    string
}

// componentRecord is the wire form of IBusComponent.
type componentRecord struct {
	TypeName    string
	Attachments map[string]dbus.Variant

	Name        string
	Description string
	Version     string
	License     string
	Author      string
	Homepage    string
	Exec        string
	TextDomain  string

	ObservedPaths []dbus.Variant
	Engines       []dbus.Variant
}

// textRecord is the wire form of IBusText with an empty attribute list.
type textRecord struct {
	TypeName    string
	Attachments map[string]dbus.Variant
	Text        string
	AttrList    dbus.Variant
}

type attrListRecord struct {
	TypeName    string
	Attachments map[string]dbus.Variant
	Attributes  []dbus.Variant
}

func textVariant(text string) dbus.Variant {
	return dbus.MakeVariant(textRecord{
		TypeName:    "IBusText",
		Attachments: map[string]dbus.Variant{},
		Text:        text,
		AttrList: dbus.MakeVariant(attrListRecord{
			TypeName:    "IBusAttrList",
			Attachments: map[string]dbus.Variant{},
			Attributes:  []dbus.Variant{},
		}),
	})
}

// diktEngineDesc describes the dikt engine for the IBus daemon's engine
// list.
func diktEngineDesc() engineDescRecord {
	return engineDescRecord{
		TypeName:    "IBusEngineDesc",
		Attachments: map[string]dbus.Variant{},
		Name:        EngineName,
		LongName:    "Dikt",
		Description: "Dikt speech-to-text dictation",
		Language:    "other",
		License:     "MIT",
		Author:      "Dikt Team",
		Icon:        "dikt",
		Layout:      "default",
	}
}

// diktComponent describes this process for daemon-side discovery in
// self-registered mode.
func diktComponent() componentRecord {
	return componentRecord{
		TypeName:      "IBusComponent",
		Attachments:   map[string]dbus.Variant{},
		Name:          BusName,
		Description:   "Dikt Speech-to-Text",
		Version:       Version,
		License:       "MIT",
		Author:        "Dikt Team",
		Homepage:      "https://github.com/rohithmahesh3/Dikt",
		Exec:          "",
		TextDomain:    "dikt-ibus",
		ObservedPaths: []dbus.Variant{},
		Engines:       []dbus.Variant{dbus.MakeVariant(diktEngineDesc())},
	}
}

// parseEngineDescName pulls the engine name out of a serialized
// IBusEngineDesc variant returned by GetGlobalEngine.
func parseEngineDescName(v dbus.Variant) (string, bool) {
	fields, ok := v.Value().([]interface{})
	if !ok {
		// Some daemon versions wrap the desc in a second variant layer.
		inner, isVariant := v.Value().(dbus.Variant)
		if !isVariant {
			return "", false
		}
		fields, ok = inner.Value().([]interface{})
		if !ok {
			return "", false
		}
	}
	if len(fields) < 3 {
		return "", false
	}
	name, ok := fields[2].(string)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}
