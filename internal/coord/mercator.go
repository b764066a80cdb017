package coord

import "math"

// MaxLatitude is the latitude at which the Web Mercator square ends.
const MaxLatitude = 85.05112877980659

// MetersToLonLat converts EPSG:3857 meters to WGS84 degrees.
func MetersToLonLat(mx, my float64) (lon, lat float64) {
	lon = (mx / OriginShift) * 180.0
	lat = (my / OriginShift) * 180.0
	lat = 180.0 / math.Pi * (2.0*math.Atan(math.Exp(lat*math.Pi/180.0)) - math.Pi/2.0)
	return
}

// LonLatToMeters converts WGS84 degrees to EPSG:3857 meters. Latitudes are
// clamped to the Mercator square.
func LonLatToMeters(lon, lat float64) (mx, my float64) {
	lat = math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
	mx = lon * OriginShift / 180.0
	my = math.Log(math.Tan((90.0+lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	my = my * OriginShift / 180.0
	return
}

// BoundsToLonLat returns the WGS84 box spanned by b.
func BoundsToLonLat(b Bounds) (minLon, minLat, maxLon, maxLat float64) {
	minLon, minLat = MetersToLonLat(b.MinX, b.MinY)
	maxLon, maxLat = MetersToLonLat(b.MaxX, b.MaxY)
	return
}

// TileLonLatBounds returns the WGS84 bounding box of XYZ tile (x, y) at zoom z.
func TileLonLatBounds(z, x, y int) (minLon, minLat, maxLon, maxLat float64) {
	n := math.Exp2(float64(z))
	minLon = float64(x)/n*360.0 - 180.0
	maxLon = float64(x+1)/n*360.0 - 180.0
	minLat = math.Atan(math.Sinh(math.Pi*(1.0-2.0*float64(y+1)/n))) * 180.0 / math.Pi
	maxLat = math.Atan(math.Sinh(math.Pi*(1.0-2.0*float64(y)/n))) * 180.0 / math.Pi
	return
}
