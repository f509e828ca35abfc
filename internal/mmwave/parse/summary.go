package parse

// Summary is the compact per-frame record used by live tails and storage.
type Summary struct {
	FrameNumber    uint32    `json:"frame_number"`
	SubFrameNumber uint32    `json:"subframe_number"`
	Error          ErrorCode `json:"error"`
	ErrorText      string    `json:"error_text,omitempty"`
	Points         int       `json:"points"`
	Tracks         int       `json:"tracks"`
	TLVs           int       `json:"tlvs"`
	Failures       int       `json:"failures"`
	HasVitals      bool      `json:"has_vitals"`
}

func (f *Frame) Summary() Summary {
	s := Summary{
		FrameNumber:    f.FrameNumber,
		SubFrameNumber: f.SubFrameNumber,
		Error:          f.Error,
		Points:         len(f.DetectedPoints()),
		Tracks:         len(f.Tracks),
		TLVs:           len(f.TLVTypes),
		Failures:       len(f.Failures),
		HasVitals:      f.Vitals.Valid(),
	}
	if f.Error != ErrNone {
		s.ErrorText = f.ErrorSummary()
	}
	return s
}
