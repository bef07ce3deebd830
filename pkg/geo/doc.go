/*
Package geo decodes NMEA GPGGA position sentences and picks the nearest
active station from a candidate set.

# Main Components

## Position

Position is the decoded result of parsing a GPGGA sentence: latitude,
longitude, fix quality and satellite count, plus the auxiliary fields a
receiver may report (HDOP, altitude, geoid separation, DGPS age/station).

## ParseGPGGA

ParseGPGGA accepts one NMEA sentence and returns a Position. It tolerates a
checksum mismatch (neither rejected nor reported) to match the source behaviour this
package was distilled from; see the open question recorded in DESIGN.md.

## FindClosestStation

FindClosestStation filters a station list to the active, finite-coordinate
candidates and returns the one with the smallest haversine distance to a
given point.
*/
package geo
