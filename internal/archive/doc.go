// Package archive implements the backup archive container.
//
// An archive is a tar stream wrapped in gzip, zstd or lz4 (or left uncompressed)
// holding these entries:
//
//	manifest.json        summary, row counts and segment digests
//	schema.json          catalog snapshot taken at backup time
//	data/<table>.json    one JSON array of ordered row objects per table
//	files/<path>         verbatim copy of the external blob directory
//
// Writers emit entries in that order, but Open accepts them in any order.
// Data segments are spooled to disk while reading so memory stays bounded by
// a single batch of rows.
package archive
