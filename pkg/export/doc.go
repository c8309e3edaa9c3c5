// Package export archives measurement series to JSON or CSV and restores
// JSON archives back into the serving buffer.
//
// The JSON format is a versioned envelope (Archive) with export metadata
// and the raw points; CSV is a flat row-per-point form for spreadsheet
// use and is export-only. Imports revalidate every point so an edited
// archive cannot bypass the ingest rules.
package export
