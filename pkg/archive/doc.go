// Package archive owns the on-disk form of a backup: the naming convention
// that encodes the creation date in the file name, and the tar.gz builder
// that produces the file.
//
// # Naming
//
// Every archive is named prefix + date + ".tar.gz", for example
// archive_2024-03-01.tar.gz. A Codec encodes a time into such a name and
// decodes a name back into a Record. Decoding is strict: the whole name must
// match, and the date portion must re-format to exactly the same text, so
// archive_2024-3-1.tar.gz or archive_2024-03-01.tar.gz.bak are not archives.
//
//	codec, err := archive.NewCodec("archive_", "YYYY-MM-DD")
//	name := codec.Encode(time.Now())           // archive_2024-03-01.tar.gz
//	rec, ok := codec.Decode("archive_2024-03-01.tar.gz")
//
// Records carry only the calendar day. Formats that include a time of day
// still decode; same-day archives are then ordered by name by the retention
// engine.
//
// # Building
//
// Build writes a tarball of a staging directory with entries relative to
// that directory, renaming it into place when complete.
package archive
