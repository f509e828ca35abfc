package parse

import "fmt"

// records returns how many whole records of size fit in payload and logs
// any trailing partial record.
func records(t TLVType, payload []byte, size int) int {
	n := len(payload) / size
	if rem := len(payload) % size; rem != 0 {
		opsf("%s: %d trailing bytes after %d records of %d bytes, ignoring", t, rem, n, size)
	}
	return n
}

// arenaLimit clamps a record count to the point arena and logs any overflow.
func arenaLimit(t TLVType, f *Frame, n int) int {
	if n > len(f.Points) {
		opsf("frame %d: %s carries %d points, header declared %d; dropping the excess",
			f.FrameNumber, t, n, len(f.Points))
		return len(f.Points)
	}
	return n
}

func decodePointCloud(payload []byte, f *Frame) error {
	n := arenaLimit(TLVDetectedPoints, f, records(TLVDetectedPoints, payload, POINT_SIZE))
	for i := 0; i < n; i++ {
		off := i * POINT_SIZE
		p := &f.Points[i]
		p.X = lef32(payload, off)
		p.Y = lef32(payload, off+4)
		p.Z = lef32(payload, off+8)
		p.Doppler = lef32(payload, off+12)
	}
	f.setDetected(n)
	return nil
}

// decodeSideInfo fills SNR and noise for points another TLV already placed.
func decodeSideInfo(payload []byte, f *Frame) error {
	n := arenaLimit(TLVDetectedPointsSideInfo, f, records(TLVDetectedPointsSideInfo, payload, SIDE_INFO_SIZE))
	for i := 0; i < n; i++ {
		off := i * SIDE_INFO_SIZE
		f.Points[i].SNR = float64(le16(payload, off)) * SIDE_INFO_SCALE
		f.Points[i].Noise = float64(le16(payload, off+2)) * SIDE_INFO_SCALE
	}
	return nil
}

// ExtPointUnit holds the scale factors of a compressed cartesian point cloud.
// X, Y and Z share XYZ.
type ExtPointUnit struct {
	XYZ, Doppler, SNR, Noise float64
}

func decodeExtPointUnit(b []byte) ExtPointUnit {
	// Two reserved i16 follow the four floats.
	return ExtPointUnit{
		XYZ:     lef32(b, 0),
		Doppler: lef32(b, 4),
		SNR:     lef32(b, 8),
		Noise:   lef32(b, 12),
	}
}

func decodeExtPointCloud(payload []byte, f *Frame) error {
	if len(payload) < EXT_POINT_UNIT_SIZE {
		f.setDetected(0)
		return fmt.Errorf("%w: %d bytes", ErrMissingUnit, len(payload))
	}
	u := decodeExtPointUnit(payload)
	body := payload[EXT_POINT_UNIT_SIZE:]
	n := arenaLimit(TLVExtDetectedPoints, f, records(TLVExtDetectedPoints, body, EXT_POINT_SIZE))
	for i := 0; i < n; i++ {
		off := i * EXT_POINT_SIZE
		p := &f.Points[i]
		p.X = float64(int16(le16(body, off))) * u.XYZ
		p.Y = float64(int16(le16(body, off+2))) * u.XYZ
		p.Z = float64(int16(le16(body, off+4))) * u.XYZ
		p.Doppler = float64(int16(le16(body, off+6))) * u.Doppler
		p.SNR = float64(body[off+8]) * u.SNR
		p.Noise = float64(body[off+9]) * u.Noise
	}
	f.setDetected(n)
	return nil
}

func decodeSphericalPointCloud(payload []byte, f *Frame) error {
	n := arenaLimit(TLVSphericalPoints, f, records(TLVSphericalPoints, payload, POINT_SIZE))
	for i := 0; i < n; i++ {
		off := i * POINT_SIZE
		p := &f.Points[i]
		p.X = lef32(payload, off)   // range
		p.Y = lef32(payload, off+4) // azimuth
		p.Z = lef32(payload, off+8) // elevation
		p.Doppler = lef32(payload, off+12)
	}
	sphericalPass(f.Points[:n])
	f.setDetected(n)
	return nil
}

// CompressedSphereUnit holds the scale factors of the capon point cloud, in
// wire order.
type CompressedSphereUnit struct {
	Elevation, Azimuth, Doppler, Range, SNR float64
}

func decodeCompressedSpherical(payload []byte, f *Frame) error {
	if len(payload) < COMP_SPHERE_UNIT_SIZE {
		f.setDetected(0)
		return fmt.Errorf("%w: %d bytes", ErrMissingUnit, len(payload))
	}
	u := CompressedSphereUnit{
		Elevation: lef32(payload, 0),
		Azimuth:   lef32(payload, 4),
		Doppler:   lef32(payload, 8),
		Range:     lef32(payload, 12),
		SNR:       lef32(payload, 16),
	}
	body := payload[COMP_SPHERE_UNIT_SIZE:]
	n := arenaLimit(TLVCompressedPoints, f, records(TLVCompressedPoints, body, COMP_SPHERE_POINT_SIZE))
	for i := 0; i < n; i++ {
		off := i * COMP_SPHERE_POINT_SIZE
		p := &f.Points[i]
		p.Z = float64(int8(body[off])) * u.Elevation
		p.Y = float64(int8(body[off+1])) * u.Azimuth
		p.Doppler = float64(int16(le16(body, off+2))) * u.Doppler
		p.X = float64(le16(body, off+4)) * u.Range
		p.SNR = float64(le16(body, off+6)) * u.SNR
	}
	sphericalPass(f.Points[:n])
	f.setDetected(n)
	return nil
}
