// Package export provides per-device history backup and restore.
//
// A JSON export is an array of entries, oldest first, in the same shape the
// history endpoint returns:
//
//	[
//	  {"timestamp": "2024-03-01T10:00:00+05:30", "field1": 22.4, "field2": 41},
//	  {"timestamp": "2024-03-01T10:05:00+05:30", "field1": 22.6, "field2": 40.8}
//	]
//
// The same shape is accepted by the import endpoint, so a backup can be
// restored into another server. Timestamps may also be Unix milliseconds.
// Keys that do not start with "field" are ignored, which lets old database
// dumps be imported without cleaning.
//
// CSV exports have a timestamp column plus one column per field and cannot
// be re-imported.
//
// Import validates each entry and skips invalid ones rather than failing the
// whole request. Skipped entries are listed in ImportResult.Errors. Valid
// readings are written in batches of config.ImportBatchSize.
//
// Endpoints (admin only):
//
//	GET  /api/admin/devices/{id}/export?format=json|csv&start=&end=
//	POST /api/admin/devices/{id}/import
package export
