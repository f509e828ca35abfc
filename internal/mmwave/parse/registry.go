package parse

// Decoder fills the parts of f that one TLV type carries. payload is exactly
// the declared TLV length, or less when the frame was truncated.
type Decoder func(payload []byte, f *Frame) error

// Registry maps TLV types to decoders. Types marked unused are recognised and
// skipped quietly; anything else unregistered is logged as unknown.
type Registry struct {
	decoders map[TLVType]Decoder
	unused   map[TLVType]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		decoders: make(map[TLVType]Decoder),
		unused:   make(map[TLVType]struct{}),
	}
}

// Register installs d for t, replacing any previous decoder. A registered
// type is never treated as unused.
func (r *Registry) Register(t TLVType, d Decoder) {
	r.decoders[t] = d
	delete(r.unused, t)
}

// MarkUnused records t as a known type with no decoder.
func (r *Registry) MarkUnused(t TLVType) {
	if _, ok := r.decoders[t]; ok {
		return
	}
	r.unused[t] = struct{}{}
}

func (r *Registry) Lookup(t TLVType) (Decoder, bool) {
	d, ok := r.decoders[t]
	return d, ok
}

func (r *Registry) IsUnused(t TLVType) bool {
	_, ok := r.unused[t]
	return ok
}

// Clone returns an independent copy that can be extended without touching r.
func (r *Registry) Clone() *Registry {
	c := NewRegistry()
	for t, d := range r.decoders {
		c.decoders[t] = d
	}
	for t := range r.unused {
		c.unused[t] = struct{}{}
	}
	return c
}

// DefaultRegistry returns the decoders for every TLV the demos emit.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(TLVDetectedPoints, decodePointCloud)
	r.Register(TLVDetectedPointsSideInfo, decodeSideInfo)
	r.Register(TLVExtDetectedPoints, decodeExtPointCloud)
	r.Register(TLVSphericalPoints, decodeSphericalPointCloud)
	r.Register(TLVCompressedPoints, decodeCompressedSpherical)

	r.Register(TLVRangeProfile, decodeRangeProfile)
	r.Register(TLVExtRangeProfileMajor, decodeRangeProfile)
	r.Register(TLVExtRangeProfileMinor, decodeRangeProfile)

	r.Register(TLVTrackerTargetList, decodeTracks3D)
	r.Register(TLVExtTargetList, decodeTracks3D)
	r.Register(TLVExtTargetList2DBSD, decodeTracks2D)
	r.Register(TLVTrackerTargetHeight, decodeTrackHeights)
	r.Register(TLVTrackerTargetIndex, decodeTargetIndex)
	r.Register(TLVExtTargetIndex, decodeTargetIndex)

	r.Register(TLVOccupancyStateMachine, decodeOccupancy)
	r.Register(TLVExtEnhancedPresence, decodeEnhancedPresence)
	r.Register(TLVExtClassifierInfo, decodeClassifier)
	r.Register(TLVSurfaceClassification, decodeSurfaceClassification)
	r.Register(TLVExtVelocity, decodeVelocity)

	r.Register(TLVVitalSigns, decodeVitals)

	r.Register(TLVGestureFeatures6843, decodeGestureFeatures6843)
	r.Register(TLVGestureOutputProb6843, decodeGestureProbabilities)
	r.Register(TLVGestureFeatures6432, decodeGestureFeatures6432)
	r.Register(TLVGestureClassifier6432, decodeGestureClassifier)
	r.Register(TLVGesturePresence6432, decodeGesturePresence)
	r.Register(TLVGesturePresenceThreshold, decodePresenceThreshold)

	r.Register(TLVExtRxChanCompensation, decodeRXChanComp)
	r.Register(TLVExtStats, decodeExtStats)
	r.Register(TLVExtStatsBSD, decodeExtStatsBSD)
	r.Register(TLVExtCamTriggers, decodeCamTriggers)

	for _, t := range []TLVType{
		TLVNoiseProfile, TLVAzimuthStaticHeatMap, TLVRangeDopplerHeatMap,
		TLVStats, TLVAzimuthElevationStaticHeatMap, TLVTemperatureStats,
		TLVPresenceIndication, TLVExtMicroDopplerRaw, TLVExtMicroDopplerFeature,
		TLVExtQuickEvalInfo,
		// Listed as unused by some demos but decoded above; Register wins.
		TLVGesturePresence6432, TLVGesturePresenceThreshold,
	} {
		r.MarkUnused(t)
	}
	return r
}
