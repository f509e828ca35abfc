package parse

// Track records carry an error covariance block between the kinematics and
// the trailing g/confidence pair. It is skipped.
const (
	track3DGOffset = 4 + 25*4 // tid, 9 kinematic floats, 16 covariance floats
	track2DGOffset = 4 + 15*4 // tid, 6 kinematic floats, 9 covariance floats
)

func decodeTracks3D(payload []byte, f *Frame) error {
	n := records(TLVTrackerTargetList, payload, TRACK_3D_SIZE)
	tracks := make([]Track, n)
	for i := range tracks {
		b := payload[i*TRACK_3D_SIZE:]
		tracks[i] = Track{
			ID:         le32(b, 0),
			PosX:       lef32(b, 4),
			PosY:       lef32(b, 8),
			PosZ:       lef32(b, 12),
			VelX:       lef32(b, 16),
			VelY:       lef32(b, 20),
			VelZ:       lef32(b, 24),
			AccX:       lef32(b, 28),
			AccY:       lef32(b, 32),
			AccZ:       lef32(b, 36),
			G:          lef32(b, track3DGOffset),
			Confidence: lef32(b, track3DGOffset+4),
		}
	}
	f.Tracks = tracks
	return nil
}

func decodeTracks2D(payload []byte, f *Frame) error {
	n := records(TLVExtTargetList2DBSD, payload, TRACK_2D_SIZE)
	tracks := make([]Track, n)
	for i := range tracks {
		b := payload[i*TRACK_2D_SIZE:]
		tracks[i] = Track{
			ID:         le32(b, 0),
			PosX:       lef32(b, 4),
			PosY:       lef32(b, 8),
			VelX:       lef32(b, 12),
			VelY:       lef32(b, 16),
			AccX:       lef32(b, 20),
			AccY:       lef32(b, 24),
			G:          lef32(b, track2DGOffset),
			Confidence: lef32(b, track2DGOffset+4),
		}
	}
	f.Tracks = tracks
	return nil
}

func decodeTrackHeights(payload []byte, f *Frame) error {
	n := records(TLVTrackerTargetHeight, payload, TRACK_HEIGHT_SIZE)
	heights := make([]TrackHeight, n)
	for i := range heights {
		off := i * TRACK_HEIGHT_SIZE
		heights[i] = TrackHeight{
			ID:   le32(payload, off),
			MaxZ: lef32(payload, off+4),
			MinZ: lef32(payload, off+8),
		}
	}
	f.Heights = heights
	return nil
}

// decodeTargetIndex associates points with tracks. The index list refers to
// the previous frame's point cloud on most demos, so it is kept verbatim in
// TrackIndexes and only copied into the arena where the counts line up.
func decodeTargetIndex(payload []byte, f *Frame) error {
	idx := make([]uint8, len(payload))
	copy(idx, payload)
	f.TrackIndexes = idx
	for i := 0; i < len(idx) && i < len(f.Points); i++ {
		f.Points[i].TrackIndex = idx[i]
	}
	return nil
}

// TrackFor returns the track a point was associated with, if any.
func (f *Frame) TrackFor(p Point) (Track, bool) {
	if p.TrackIndex == UNASSOCIATED_TRACK {
		return Track{}, false
	}
	for _, t := range f.Tracks {
		if t.ID == uint32(p.TrackIndex) {
			return t, true
		}
	}
	return Track{}, false
}
