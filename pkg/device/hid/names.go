package hid

import (
	"fmt"

	"github.com/holoplot/go-evdev"
)

// Event types.
const (
	EvSyn      uint16 = evdev.EV_SYN
	EvKey      uint16 = evdev.EV_KEY
	EvRel      uint16 = evdev.EV_REL
	EvAbs      uint16 = evdev.EV_ABS
	EvMsc      uint16 = evdev.EV_MSC
	EvSw       uint16 = evdev.EV_SW
	EvLed      uint16 = evdev.EV_LED
	EvSnd      uint16 = evdev.EV_SND
	EvRep      uint16 = evdev.EV_REP
	EvFF       uint16 = evdev.EV_FF
	EvPwr      uint16 = evdev.EV_PWR
	EvFFStatus uint16 = evdev.EV_FF_STATUS
)

// Synchronization codes.
const (
	SynReport   uint16 = evdev.SYN_REPORT
	SynConfig   uint16 = evdev.SYN_CONFIG
	SynMTReport uint16 = evdev.SYN_MT_REPORT
	SynDropped  uint16 = evdev.SYN_DROPPED
)

var eventNames = map[uint16]string{
	EvSyn: "Sync", EvKey: "Key", EvRel: "Relative", EvAbs: "Absolute",
	EvMsc: "Misc", EvSw: "Switch", EvLed: "LED", EvSnd: "Sound",
	EvRep: "Repeat", EvFF: "ForceFeedback", EvPwr: "Power",
	EvFFStatus: "ForceFeedbackStatus",
}

var keyNames = map[uint16]string{
	0: "Reserved", 1: "Esc",
	2: "1", 3: "2", 4: "3", 5: "4", 6: "5", 7: "6", 8: "7", 9: "8", 10: "9", 11: "0",
	12: "Minus", 13: "Equal", 14: "Backspace", 15: "Tab",
	16: "Q", 17: "W", 18: "E", 19: "R", 20: "T", 21: "Y", 22: "U", 23: "I", 24: "O", 25: "P",
	26: "LeftBrace", 27: "RightBrace", 28: "Enter", 29: "LeftControl",
	30: "A", 31: "S", 32: "D", 33: "F", 34: "G", 35: "H", 36: "J", 37: "K", 38: "L",
	39: "Semicolon", 40: "Apostrophe", 41: "Grave", 42: "LeftShift", 43: "BackSlash",
	44: "Z", 45: "X", 46: "C", 47: "V", 48: "B", 49: "N", 50: "M",
	51: "Comma", 52: "Dot", 53: "Slash", 54: "RightShift", 55: "KPAsterisk",
	56: "LeftAlt", 57: "Space", 58: "CapsLock",
	59: "F1", 60: "F2", 61: "F3", 62: "F4", 63: "F5", 64: "F6", 65: "F7", 66: "F8", 67: "F9", 68: "F10",
	69: "NumLock", 70: "ScrollLock",
	71: "KP7", 72: "KP8", 73: "KP9", 74: "KPMinus", 75: "KP4", 76: "KP5", 77: "KP6", 78: "KPPlus",
	79: "KP1", 80: "KP2", 81: "KP3", 82: "KP0", 83: "KPDot",
	85: "Zenkaku/Hankaku", 86: "102nd", 87: "F11", 88: "F12", 89: "RO",
	90: "Katakana", 91: "HIRAGANA", 92: "Henkan", 93: "Katakana/Hiragana", 94: "Muhenkan",
	95: "KPJpComma", 96: "KPEnter", 97: "RightCtrl", 98: "KPSlash", 99: "SysRq",
	100: "RightAlt", 101: "LineFeed", 102: "Home", 103: "Up", 104: "PageUp",
	105: "Left", 106: "Right", 107: "End", 108: "Down", 109: "PageDown",
	110: "Insert", 111: "Delete", 112: "Macro", 113: "Mute", 114: "VolumeDown",
	115: "VolumeUp", 116: "Power", 117: "KPEqual", 118: "KPPlusMinus", 119: "Pause",
	121: "KPComma", 122: "Hanguel", 123: "Hanja", 124: "Yen",
	125: "LeftMeta", 126: "RightMeta", 127: "Compose",
	128: "Stop", 129: "Again", 130: "Props", 131: "Undo", 132: "Front", 133: "Copy",
	134: "Open", 135: "Paste", 136: "Find", 137: "Cut", 138: "Help", 139: "Menu",
	140: "Calc", 141: "Setup", 142: "Sleep", 143: "WakeUp", 144: "File",
	145: "SendFile", 146: "DeleteFile", 147: "X-fer", 148: "Prog1", 149: "Prog2",
	150: "WWW", 151: "MSDOS", 152: "Coffee", 153: "Direction", 154: "CycleWindows",
	155: "Mail", 156: "Bookmarks", 157: "Computer", 158: "Back", 159: "Forward",
	160: "CloseCD", 161: "EjectCD", 162: "EjectCloseCD", 163: "NextSong",
	164: "PlayPause", 165: "PreviousSong", 166: "StopCD", 167: "Record",
	168: "Rewind", 169: "Phone", 170: "ISOKey", 171: "Config", 172: "HomePage",
	173: "Refresh", 174: "Exit", 175: "Move", 176: "Edit", 177: "ScrollUp",
	178: "ScrollDown", 179: "KPLeftParenthesis", 180: "KPRightParenthesis",
	183: "F13", 184: "F14", 185: "F15", 186: "F16", 187: "F17", 188: "F18",
	189: "F19", 190: "F20", 191: "F21", 192: "F22", 193: "F23", 194: "F24",
	200: "PlayCD", 201: "PauseCD", 202: "Prog3", 203: "Prog4", 205: "Suspend",
	206: "Close", 207: "Play", 208: "Fast Forward", 209: "Bass Boost", 210: "Print",
	211: "HP", 212: "Camera", 213: "Sound", 214: "Question", 215: "Email",
	216: "Chat", 217: "Search", 218: "Connect", 219: "Finance", 220: "Sport",
	221: "Shop", 222: "Alternate Erase", 223: "Cancel", 224: "Brightness down",
	225: "Brightness up", 226: "Media", 240: "Unknown",

	0x100: "Btn0", 0x101: "Btn1", 0x102: "Btn2", 0x103: "Btn3", 0x104: "Btn4",
	0x105: "Btn5", 0x106: "Btn6", 0x107: "Btn7", 0x108: "Btn8", 0x109: "Btn9",
	0x110: "LeftBtn", 0x111: "RightBtn", 0x112: "MiddleBtn", 0x113: "SideBtn",
	0x114: "ExtraBtn", 0x115: "ForwardBtn", 0x116: "BackBtn", 0x117: "TaskBtn",
	0x120: "Trigger", 0x121: "ThumbBtn", 0x122: "ThumbBtn2", 0x123: "TopBtn",
	0x124: "TopBtn2", 0x125: "PinkieBtn", 0x126: "BaseBtn", 0x127: "BaseBtn2",
	0x128: "BaseBtn3", 0x129: "BaseBtn4", 0x12a: "BaseBtn5", 0x12b: "BaseBtn6",
	0x12f: "BtnDead",
	0x130: "BtnA", 0x131: "BtnB", 0x132: "BtnC", 0x133: "BtnX", 0x134: "BtnY",
	0x135: "BtnZ", 0x136: "BtnTL", 0x137: "BtnTR", 0x138: "BtnTL2", 0x139: "BtnTR2",
	0x13a: "BtnSelect", 0x13b: "BtnStart", 0x13c: "BtnMode", 0x13d: "BtnThumbL",
	0x13e: "BtnThumbR",
	0x140: "ToolPen", 0x141: "ToolRubber", 0x142: "ToolBrush", 0x143: "ToolPencil",
	0x144: "ToolAirbrush", 0x145: "ToolFinger", 0x146: "ToolMouse", 0x147: "ToolLens",
	0x14a: "Touch", 0x14b: "Stylus", 0x14c: "Stylus2", 0x14d: "Tool Doubletap",
	0x14e: "Tool Tripletap", 0x150: "WheelBtn", 0x151: "Gear up",

	0x160: "Ok", 0x161: "Select", 0x162: "Goto", 0x163: "Clear", 0x164: "Power2",
	0x165: "Option", 0x166: "Info", 0x167: "Time", 0x168: "Vendor", 0x169: "Archive",
	0x16a: "Program", 0x16b: "Channel", 0x16c: "Favorites", 0x16d: "EPG", 0x16e: "PVR",
	0x16f: "MHP", 0x170: "Language", 0x171: "Title", 0x172: "Subtitle", 0x173: "Angle",
	0x174: "Zoom", 0x175: "Mode", 0x176: "Keyboard", 0x177: "Screen", 0x178: "PC",
	0x179: "TV", 0x17a: "TV2", 0x17b: "VCR", 0x17c: "VCR2", 0x17d: "Sat", 0x17e: "Sat2",
	0x17f: "CD", 0x180: "Tape", 0x181: "Radio", 0x182: "Tuner", 0x183: "Player",
	0x184: "Text", 0x185: "DVD", 0x186: "Aux", 0x187: "MP3", 0x188: "Audio",
	0x189: "Video", 0x18a: "Directory", 0x18b: "List", 0x18c: "Memo", 0x18d: "Calendar",
	0x18e: "Red", 0x18f: "Green", 0x190: "Yellow", 0x191: "Blue", 0x192: "ChannelUp",
	0x193: "ChannelDown", 0x194: "First", 0x195: "Last", 0x196: "AB", 0x197: "Next",
	0x198: "Restart", 0x199: "Slow", 0x19a: "Shuffle", 0x19b: "Break", 0x19c: "Previous",
	0x19d: "Digits", 0x19e: "TEEN", 0x19f: "TWEN",
	0x1c0: "Delete EOL", 0x1c1: "Delete EOS", 0x1c2: "Insert line", 0x1c3: "Delete line",
}

var relativeNames = map[uint16]string{
	0x00: "X", 0x01: "Y", 0x02: "Z", 0x06: "HWheel", 0x07: "Dial", 0x08: "Wheel", 0x09: "Misc",
}

var absoluteNames = map[uint16]string{
	0x00: "X", 0x01: "Y", 0x02: "Z", 0x03: "Rx", 0x04: "Ry", 0x05: "Rz",
	0x06: "Throttle", 0x07: "Rudder", 0x08: "Wheel", 0x09: "Gas", 0x0a: "Brake",
	0x10: "Hat0X", 0x11: "Hat0Y", 0x12: "Hat1X", 0x13: "Hat1Y",
	0x14: "Hat2X", 0x15: "Hat2Y", 0x16: "Hat3X", 0x17: "Hat3Y",
	0x18: "Pressure", 0x19: "Distance", 0x1a: "XTilt", 0x1b: "YTilt",
	0x1c: "Tool Width", 0x20: "Volume", 0x28: "Misc",
}

var miscNames = map[uint16]string{
	0x00: "Serial", 0x01: "Pulseled", 0x02: "Gesture", 0x03: "RawData", 0x04: "ScanCode",
}

var ledNames = map[uint16]string{
	0x00: "NumLock", 0x01: "CapsLock", 0x02: "ScrollLock", 0x03: "Compose",
	0x04: "Kana", 0x05: "Sleep", 0x06: "Suspend", 0x07: "Mute", 0x08: "Misc",
}

var repeatNames = map[uint16]string{0x00: "Delay", 0x01: "Period"}

var soundNames = map[uint16]string{0x00: "Click", 0x01: "Bell", 0x02: "Tone"}

var syncNames = map[uint16]string{
	SynReport: "Report", SynConfig: "Config", SynMTReport: "MT Report", SynDropped: "Dropped",
}

var codeNames = map[uint16]map[uint16]string{
	EvSyn: syncNames, EvKey: keyNames, EvRel: relativeNames, EvAbs: absoluteNames,
	EvMsc: miscNames, EvLed: ledNames, EvSnd: soundNames, EvRep: repeatNames,
}

// FindKeyName returns the name of a key or button code, or "" when the code
// is not known.
func FindKeyName(code uint16) string { return keyNames[code] }

// FindAbsName returns the name of an absolute axis code, or "".
func FindAbsName(code uint16) string { return absoluteNames[code] }

// EventName returns the name of an event type, or "".
func EventName(evType uint16) string { return eventNames[evType] }

// CodeName returns the name of code within event type evType. Unknown codes
// are rendered as their hex value.
func CodeName(evType, code uint16) string {
	if name, ok := codeNames[evType][code]; ok {
		return name
	}
	return fmt.Sprintf("0x%03x", code)
}
