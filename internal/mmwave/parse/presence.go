package parse

import "fmt"

func decodeOccupancy(payload []byte, f *Frame) error {
	if len(payload) < 4 {
		return fmt.Errorf("%w: occupancy needs 4 bytes, have %d", ErrShortPayload, len(payload))
	}
	mask := le32(payload, 0)
	zones := make([]bool, OCCUPANCY_ZONES)
	for i := range zones {
		zones[i] = mask&(1<<uint(i)) != 0
	}
	f.Occupancy = zones
	return nil
}

// decodeEnhancedPresence unpacks 2-bit zone states, four zones per byte,
// LSB first. Zones beyond the payload are left out and reported.
func decodeEnhancedPresence(payload []byte, f *Frame) error {
	if len(payload) < 1 {
		return fmt.Errorf("%w: enhanced presence is empty", ErrShortPayload)
	}
	numZones := int(payload[0])
	packed := payload[1:]
	zones := make([]uint8, 0, numZones)
	for i := 0; i < numZones; i++ {
		byteIdx := i / 4
		if byteIdx >= len(packed) {
			f.EnhancedPresence = zones
			return fmt.Errorf("%w: %d of %d zones present", ErrShortPayload, i, numZones)
		}
		zones = append(zones, packed[byteIdx]>>uint((i*2)%8)&0x3)
	}
	f.EnhancedPresence = zones
	return nil
}

func decodeClassifier(payload []byte, f *Frame) error {
	n := records(TLVExtClassifierInfo, payload, NUM_CLASSES)
	out := make([]ClassScores, n)
	for i := range out {
		for j := 0; j < NUM_CLASSES; j++ {
			out[i][j] = float64(payload[i*NUM_CLASSES+j]) / CLASSIFIER_SCALE
		}
	}
	f.Classifier = out
	return nil
}

func decodeSurfaceClassification(payload []byte, f *Frame) error {
	if len(payload) < 4 {
		return fmt.Errorf("%w: surface classification needs 4 bytes, have %d", ErrShortPayload, len(payload))
	}
	v := lef32(payload, 0)
	f.SurfaceClassification = &v
	return nil
}

func decodeVelocity(payload []byte, f *Frame) error {
	if len(payload) < VELOCITY_SIZE {
		return fmt.Errorf("%w: velocity needs %d bytes, have %d", ErrShortPayload, VELOCITY_SIZE, len(payload))
	}
	f.Velocity = &Velocity{
		Speed:     lef32(payload, 0),
		Confident: payload[4] != 0,
	}
	return nil
}
