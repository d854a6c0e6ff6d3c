// Package domain models RAP forecast grids and the probability grid derived
// from them.
//
// # Data Source
//
// The Rapid Refresh (RAP) model runs hourly. NCEP publishes its output to the
// public NOAA bucket s3://noaa-rap-pds under
//
//	rap.YYYYMMDD/rap.tHHz.awip32fFF.grib2
//
// An upstream extractor turns the GRIB2 messages we need (CAPE, CIN, 0-3 km
// helicity) into a JSON grid with parallel 2-D lat/lon/field arrays. GRIB2
// decoding itself happens outside this repository.
//
// # Projection
//
// The awip32 grid is Lambert Conformal Conic, tangent at 25N, centered on
// 265E (95W), on a sphere of radius 6371229 m. See [RAPParams]. Grid points
// and region boundaries must go through the same projector; a mismatch in
// sphere radius or standard parallels shifts the mask without any error.
//
// # Cycles
//
// A [Cycle] is a run time truncated to the hour plus a forecast hour. The
// document fields derive from it:
//
//	run_date  "20240426"
//	run_hour  "12"
//	forecast  "F01"
//	valid     "13:00-14:00 UTC"
//
// # Cell extents
//
// Cell width and height come from neighbor differences of projected
// coordinates. They approximate the cell footprint and are always positive;
// the last row and column reuse the previous difference.
package domain
