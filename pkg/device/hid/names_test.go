package hid_test

import (
	"testing"

	"github.com/illmade-knight/go-rservice/pkg/device/hid"
	"github.com/stretchr/testify/assert"
)

func TestNameTables(t *testing.T) {
	testCases := []struct {
		name string
		got  string
		want string
	}{
		{"key esc", hid.FindKeyName(1), "Esc"},
		{"key A", hid.FindKeyName(30), "A"},
		{"left button", hid.FindKeyName(0x110), "LeftBtn"},
		{"gamepad start", hid.FindKeyName(0x13b), "BtnStart"},
		{"unknown key", hid.FindKeyName(0x2ff), ""},
		{"abs x", hid.FindAbsName(0x00), "X"},
		{"abs hat", hid.FindAbsName(0x11), "Hat0Y"},
		{"event key", hid.EventName(hid.EvKey), "Key"},
		{"event abs", hid.EventName(hid.EvAbs), "Absolute"},
		{"sync report", hid.CodeName(hid.EvSyn, hid.SynReport), "Report"},
		{"relative wheel", hid.CodeName(hid.EvRel, 0x08), "Wheel"},
		{"led caps", hid.CodeName(hid.EvLed, 0x01), "CapsLock"},
		{"unknown code", hid.CodeName(hid.EvAbs, 0x3f), "0x03f"},
		{"unknown type", hid.CodeName(hid.EvSw, 0x00), "0x000"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.got)
		})
	}
}
