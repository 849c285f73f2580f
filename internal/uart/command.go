// Package uart holds the command vocabulary exchanged with the proximity peer.
package uart

import "strings"

// Command is a single instruction received from the peer board.
type Command int

const (
	None Command = iota
	FarMotionTrigger
	NearMotionTrigger
	PlayWelcome
	WaitForNear
	PlayFingerPrompt
	MouthOpenWaitFinger
	FingerDetected
	SnapWithFinger
	SnapNoFinger
	FortuneFlow
	FortuneDone
	Cooldown
	LegacySetMode
	LegacyPing
	BootHello
	FabricHello
)

var names = map[Command]string{
	None:                "NONE",
	FarMotionTrigger:    "FAR_MOTION_TRIGGER",
	NearMotionTrigger:   "NEAR_MOTION_TRIGGER",
	PlayWelcome:         "PLAY_WELCOME",
	WaitForNear:         "WAIT_FOR_NEAR",
	PlayFingerPrompt:    "PLAY_FINGER_PROMPT",
	MouthOpenWaitFinger: "MOUTH_OPEN_WAIT_FINGER",
	FingerDetected:      "FINGER_DETECTED",
	SnapWithFinger:      "SNAP_WITH_FINGER",
	SnapNoFinger:        "SNAP_NO_FINGER",
	FortuneFlow:         "FORTUNE_FLOW",
	FortuneDone:         "FORTUNE_DONE",
	Cooldown:            "COOLDOWN",
	LegacySetMode:       "LEGACY_SET_MODE",
	LegacyPing:          "LEGACY_PING",
	BootHello:           "BOOT_HELLO",
	FabricHello:         "FABRIC_HELLO",
}

// Wire codes used by the peer firmware.
var codes = map[byte]Command{
	0x01: FarMotionTrigger,
	0x02: NearMotionTrigger,
	0x03: PlayWelcome,
	0x04: WaitForNear,
	0x05: PlayFingerPrompt,
	0x06: MouthOpenWaitFinger,
	0x07: FingerDetected,
	0x08: SnapWithFinger,
	0x09: SnapNoFinger,
	0x0A: FortuneFlow,
	0x0B: FortuneDone,
	0x0C: Cooldown,
	0x20: LegacySetMode,
	0x21: LegacyPing,
	0x30: BootHello,
	0x31: FabricHello,
}

func (c Command) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseCommand maps a command name (case-insensitive, '-' accepted for '_')
// to a Command. Unknown names return None and false.
func ParseCommand(name string) (Command, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	for c, s := range names {
		if s == n {
			return c, true
		}
	}
	return None, false
}

// FromByte decodes a wire code. Unknown codes return None and false.
func FromByte(b byte) (Command, bool) {
	c, ok := codes[b]
	return c, ok
}

// Byte returns the wire code for c, or 0 for None and unknown values.
func (c Command) Byte() byte {
	for b, v := range codes {
		if v == c {
			return b
		}
	}
	return 0
}

func (c Command) IsTrigger() bool {
	return c == FarMotionTrigger || c == NearMotionTrigger
}

// IsForcedState reports whether c names a controller state directly.
func (c Command) IsForcedState() bool {
	return c >= PlayWelcome && c <= Cooldown
}

func (c Command) IsLegacy() bool {
	return c == LegacySetMode || c == LegacyPing
}

func (c Command) IsHandshake() bool {
	return c == BootHello || c == FabricHello
}
