package parse

import (
	"fmt"
	"math/bits"
)

func decodeRangeProfile(payload []byte, f *Frame) error {
	n := records(TLVRangeProfile, payload, 4)
	profile := make([]float64, n)
	for i := range profile {
		profile[i] = float64(le32(payload, i*4))
	}
	f.RangeProfile = profile
	return nil
}

func decodeRXChanComp(payload []byte, f *Frame) error {
	if err := needFloats(TLVExtRxChanCompensation, payload, RX_CHAN_COMP_LEN); err != nil {
		return err
	}
	f.RXChanComp = f32s(payload, 0, RX_CHAN_COMP_LEN)
	return nil
}

func decodeStatsCommon(b []byte, f *Frame) {
	f.ProcTime = &ProcTime{
		InterFrameProcTimeUs: le32(b, 0),
		TransmitOutTimeUs:    le32(b, 4),
	}
	f.Power = &Power{
		Rail1v8:   le16(b, 8),
		Rail3v3:   le16(b, 10),
		Rail1v2:   le16(b, 12),
		Rail1v2RF: le16(b, 14),
	}
	f.Temperature = &Temperature{
		Rx:  le16(b, 16),
		Tx:  le16(b, 18),
		PM:  le16(b, 20),
		DIG: le16(b, 22),
	}
}

func decodeExtStats(payload []byte, f *Frame) error {
	if len(payload) < EXT_STATS_SIZE {
		return fmt.Errorf("%w: ext stats need %d bytes, have %d", ErrShortPayload, EXT_STATS_SIZE, len(payload))
	}
	decodeStatsCommon(payload, f)
	return nil
}

func decodeExtStatsBSD(payload []byte, f *Frame) error {
	if len(payload) < EXT_STATS_BSD_SIZE {
		return fmt.Errorf("%w: BSD stats need %d bytes, have %d", ErrShortPayload, EXT_STATS_BSD_SIZE, len(payload))
	}
	decodeStatsCommon(payload, f)
	f.EgoMotion = &EgoMotion{
		Speed:      lef32(payload, EXT_STATS_SIZE),
		AlphaAngle: lef32(payload, EXT_STATS_SIZE+4),
	}
	return nil
}

func decodeCamTriggers(payload []byte, f *Frame) error {
	if len(payload) < CAM_TRIGGERS_SIZE {
		return fmt.Errorf("%w: cam triggers need %d bytes, have %d", ErrShortPayload, CAM_TRIGGERS_SIZE, len(payload))
	}
	f.CamTriggers = &CamTriggers{
		ActiveTracks: le32(payload, 0),
		Flags:        [3]uint32{le32(payload, 4), le32(payload, 8), le32(payload, 12)},
	}
	return nil
}

// CamTrigger is one active track's camera trigger flags.
type CamTrigger struct {
	Slot  int
	Flags [3]bool
}

// Active expands the bitmaps into one entry per active track slot.
func (c *CamTriggers) Active() []CamTrigger {
	if c == nil {
		return nil
	}
	out := make([]CamTrigger, 0, bits.OnesCount32(c.ActiveTracks))
	for slot := 0; slot < 32; slot++ {
		bit := uint32(1) << uint(slot)
		if c.ActiveTracks&bit == 0 {
			continue
		}
		t := CamTrigger{Slot: slot}
		for k := range c.Flags {
			t.Flags[k] = c.Flags[k]&bit != 0
		}
		out = append(out, t)
	}
	return out
}
