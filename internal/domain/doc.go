// Package domain models location-history points and the place metadata
// attached to them during enrichment.
//
// # Cache Keys
//
// Coordinates are rounded before they are used as cache keys:
//
//	primary:  5 decimal places  (≈ 1.1 m at the equator)  e.g. "40.71278,-74.00594"
//	legacy:   4 decimal places  (≈ 11 m)                  e.g. "40.7128,-74.0059"
//
// The legacy key exists so caches written by older releases, which rounded to
// four places, keep serving hits. Rounding is applied to the exact binary
// value, ties to even. Keys are written with the shortest representation that
// round-trips: plain decimal with a fractional part ("40.0", not "40"), or
// exponent form below 1e-4 ("1e-05"). This matches the documents produced by
// those releases byte for byte.
//
// Water classification is cached in its own namespace by prefixing the key
// with "water:". A place lookup and a water lookup for the same coordinate
// are independent entries.
//
// # Water Classification
//
// A coordinate is classified as water when any of the following holds:
//
//	- a dedicated water/land classifier says so
//	- the reverse geocoder tags the place as category "natural", class "water"
//	- the lower-cased place name contains one of: waters, sea, ocean, bay, channel
//	- Google tags the result as a natural_feature
//	- the reverse geocoder returns zero results ("open water")
//
// The last rule conflates "the provider has no data" with "this is water" and
// will misclassify sparsely covered land. It is kept for compatibility with
// existing caches.
//
// # Distances
//
// Great-circle distances use the haversine formula on a sphere of radius
// 3958.8 statute miles. Totals are the sum of consecutive segments in
// timestamp order, never the straight line between first and last point.
package domain
