// Package domain models municipal waste-collection calendars.
//
// # Data Source
//
// The calendar service publishes one calendar per collection sector. A
// resident's street address is first resolved through a geocoding lookup,
// then matched against the street reference list to find its sector, and
// finally the sector's calendar is fetched and parsed into [Collection]
// events. Addresses listed as apartments have no calendar of their own.
//
// # Sectors
//
// Sector codes are short strings such as "L12" or "S3". The leading letter
// selects the [AreaType]:
//
//	L  city centre (CITY)
//	S  outer districts (SUBURB)
//
// Any other code, including the default "0", is the unset sector and maps to
// [AreaNone]. The area type decides the colour of the residual waste (REST)
// bags; every other waste stream has a fixed colour.
//
// # Waste Streams
//
// The waste streams form a closed set:
//
//	rest  residual waste
//	gft   vegetable, fruit and garden waste
//	pmd   plastic bottles, metal packaging and drink cartons
//	pk    paper and cardboard
//	glas  glass
//	none  sentinel for unrecognised values
//
// The first five are "normal" types; everything else is "extra". Parsers map
// unknown strings to [TypeNone] and then drop them, so a stored
// [Collection] only ever carries recognised types.
//
// # Dates
//
// Collection dates are calendar days. They are stored as midnight UTC of the
// day in question and compared by year/month/day, never by instant.
package domain
