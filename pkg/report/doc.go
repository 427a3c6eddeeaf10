/*
Package report turns a device's reading history into printable compliance
reports.

The pipeline has three stages, each a pure function:

 1. SelectWindow maps a period keyword (today, yesterday, 7days, 14days,
    30days, custom) and the current time to an inclusive [start, end] window
    of whole calendar days.
 2. Aggregate keeps readings inside the window and down-samples them into
    fixed-width buckets anchored at minute 0 of each hour. The first reading
    seen in a bucket represents it.
 3. Assemble lays the bucketed series out as numbered rows with one column
    per declared sensor.

Service.ComputeReport composes the three around the registry and history
store, and Handler serves the result as JSON, CSV or printable HTML:

	GET /api/devices/{id}/report?period=7days&interval=15m&format=csv

Bucketing happens in the window's location, so readings are grouped by the
wall-clock time of the configured report zone rather than by UTC.
*/
package report
