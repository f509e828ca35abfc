package parse

import "fmt"

// decodeVitals always sets f.Vitals. An unreadable payload yields the
// sentinel patient id so consumers can tell it from patient 0.
func decodeVitals(payload []byte, f *Frame) error {
	v := &Vitals{
		ID:             VITALS_INVALID_ID,
		HeartWaveform:  []float64{},
		BreathWaveform: []float64{},
	}
	f.Vitals = v
	if len(payload) < VITALS_SIZE {
		return fmt.Errorf("%w: vitals need %d bytes, have %d", ErrShortPayload, VITALS_SIZE, len(payload))
	}
	v.ID = le16(payload, 0)
	v.RangeBin = le16(payload, 2)
	v.BreathDeviation = lef32(payload, 4)
	v.HeartRate = lef32(payload, 8)
	v.BreathRate = lef32(payload, 12)
	v.HeartWaveform = f32s(payload, 16, VITALS_WAVEFORM_LEN)
	v.BreathWaveform = f32s(payload, 16+4*VITALS_WAVEFORM_LEN, VITALS_WAVEFORM_LEN)
	return nil
}
