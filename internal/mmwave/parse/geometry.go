package parse

import "math"

// SphericalToCartesian converts range (m), azimuth and elevation (rad).
// Azimuth is measured from boresight (+y) towards +x.
func SphericalToCartesian(r, az, el float64) (x, y, z float64) {
	cosEl := math.Cos(el)
	x = r * math.Sin(az) * cosEl
	y = r * math.Cos(az) * cosEl
	z = r * math.Sin(el)
	return x, y, z
}

// sphericalPass rewrites points whose X, Y, Z hold range, azimuth and
// elevation into cartesian coordinates. It runs once all points are decoded.
func sphericalPass(points []Point) {
	for i := range points {
		p := &points[i]
		p.X, p.Y, p.Z = SphericalToCartesian(p.X, p.Y, p.Z)
	}
}
