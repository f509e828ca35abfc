package parse

import "fmt"

func needFloats(t TLVType, payload []byte, n int) error {
	if len(payload) < 4*n {
		return fmt.Errorf("%w: %s needs %d bytes, have %d", ErrShortPayload, t, 4*n, len(payload))
	}
	return nil
}

func decodeGestureFeatures6843(payload []byte, f *Frame) error {
	if err := needFloats(TLVGestureFeatures6843, payload, GESTURE_6843_LEN); err != nil {
		return err
	}
	v := f32s(payload, 0, GESTURE_6843_LEN)
	f.GestureFeatures = &GestureFeatures6843{
		WtDoppler:     v[0],
		WtDopplerPos:  v[1],
		WtDopplerNeg:  v[2],
		WtRange:       v[3],
		NumDetections: v[4],
		WtAzimuthMean: v[5],
		WtElevMean:    v[6],
		AzDoppCorr:    v[7],
		WtAzimuthStd:  v[8],
		WtElevStd:     v[9],
	}
	return nil
}

func decodeGestureProbabilities(payload []byte, f *Frame) error {
	if err := needFloats(TLVGestureOutputProb6843, payload, GESTURE_6843_LEN); err != nil {
		return err
	}
	f.GestureProbabilities = f32s(payload, 0, GESTURE_6843_LEN)
	return nil
}

func decodeGestureFeatures6432(payload []byte, f *Frame) error {
	if err := needFloats(TLVGestureFeatures6432, payload, GESTURE_6432_LEN); err != nil {
		return err
	}
	f.GestureFeatures6432 = f32s(payload, 0, GESTURE_6432_LEN)
	return nil
}

func decodeGestureClassifier(payload []byte, f *Frame) error {
	if len(payload) < 1 {
		return fmt.Errorf("%w: gesture classifier is empty", ErrShortPayload)
	}
	g := int8(payload[0])
	f.Gesture = &Gesture{Index: g, KTO: g}
	return nil
}

func decodeGesturePresence(payload []byte, f *Frame) error {
	if len(payload) < 1 {
		return fmt.Errorf("%w: gesture presence is empty", ErrShortPayload)
	}
	p := int8(payload[0])
	f.GesturePresence = &p
	return nil
}

func decodePresenceThreshold(payload []byte, f *Frame) error {
	if len(payload) < 4 {
		return fmt.Errorf("%w: presence threshold needs 4 bytes, have %d", ErrShortPayload, len(payload))
	}
	v := le32(payload, 0)
	f.PresenceThreshold = &v
	return nil
}

// ArgMax returns the index of the most probable gesture, or -1 if none.
func ArgMax(probs []float64) int {
	best := -1
	for i, p := range probs {
		if best < 0 || p > probs[best] {
			best = i
		}
	}
	return best
}
