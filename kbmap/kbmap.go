// Package kbmap maps runes and named keys to the CDP key-code shape that
// Input.dispatchKeyEvent expects, and sends the keydown/keyup pair.
//
// Grounded on the teacher's kb package (kb/gen.go's Key struct: Code, Key,
// Text, Unmodified, Native/Windows scan codes), hand-curated here to the
// keys a basic typing helper needs rather than code-generated from the
// Chromium source tree, since this core carries no protocol-surface
// generator (spec.md §1 Non-goals).
package kbmap

import "context"

// Key is the per-rune/per-named-key table entry, mirroring the teacher's
// generated kb.Key fields this core actually uses.
type Key struct {
	Code       string
	Key        string
	Text       string
	Unmodified string
	Native     int64
	Windows    int64
	Shift      bool
}

// Keys is a hand-curated subset of the teacher's generated table: the named
// keys Backspace, Tab, Enter, Escape and Space plus a few printable
// characters (a, A, 0, 1, period, comma). Each entry lists Code, Key, Text,
// Unmodified, the native and Windows key codes, and whether Shift is held.
var Keys = map[rune]Key{
	'\b':    {"Backspace", "Backspace", "", "", 8, 8, false},
	'\t':    {"Tab", "Tab", "", "", 9, 9, false},
	'\r':    {"Enter", "Enter", "\r", "\r", 13, 13, false},
	'\x1b':  {"Escape", "Escape", "", "", 27, 27, false},
	' ':     {"Space", " ", " ", " ", 32, 32, false},
	'a':     {"KeyA", "a", "a", "a", 65, 65, false},
	'A':     {"KeyA", "A", "A", "a", 65, 65, true},
	'0':     {"Digit0", "0", "0", "0", 48, 48, false},
	'1':     {"Digit1", "1", "1", "1", 49, 49, false},
	'.':     {"Period", ".", ".", ".", 190, 190, false},
	',':     {"Comma", ",", ",", ",", 188, 188, false},
}

// caller is the subset of *cdpmux.Tab this package needs.
type caller interface {
	Call(ctx context.Context, method string, params, res any) error
}

type dispatchKeyEventParams struct {
	Type                  string `json:"type"`
	Key                   string `json:"key"`
	Code                  string `json:"code"`
	Text                  string `json:"text,omitempty"`
	UnmodifiedText        string `json:"unmodifiedText,omitempty"`
	NativeVirtualKeyCode  int64  `json:"nativeVirtualKeyCode"`
	WindowsVirtualKeyCode int64  `json:"windowsVirtualKeyCode"`
	Modifiers             int    `json:"modifiers,omitempty"`
}

// shiftModifier is the CDP Input.dispatchKeyEvent modifiers bitmask value
// for Shift.
const shiftModifier = 8

// Press sends a keydown/keyup pair for r to tab, looking r up in Keys.
// Runes outside the table are sent as the same keyDown/keyUp pair, carrying
// the rune as key, text and unmodified text, with no code and zero key codes.
func Press(ctx context.Context, tab caller, r rune) error {
	k, ok := Keys[r]
	if !ok {
		k = Key{Key: string(r), Text: string(r), Unmodified: string(r)}
	}

	var modifiers int
	if k.Shift {
		modifiers = shiftModifier
	}

	down := dispatchKeyEventParams{
		Type:                  "keyDown",
		Key:                   k.Key,
		Code:                  k.Code,
		Text:                  k.Text,
		UnmodifiedText:        k.Unmodified,
		NativeVirtualKeyCode:  k.Native,
		WindowsVirtualKeyCode: k.Windows,
		Modifiers:             modifiers,
	}
	if err := tab.Call(ctx, "Input.dispatchKeyEvent", &down, nil); err != nil {
		return err
	}

	up := down
	up.Type = "keyUp"
	return tab.Call(ctx, "Input.dispatchKeyEvent", &up, nil)
}

// Type sends Press for every rune in s, in order.
func Type(ctx context.Context, tab caller, s string) error {
	for _, r := range s {
		if err := Press(ctx, tab, r); err != nil {
			return err
		}
	}
	return nil
}
