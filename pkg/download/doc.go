// Package download fetches mod archives over HTTP into a game's
// downloads directory.
//
// When the server advertises byte-range support and a known content
// length, the file is fetched as ranged chunks on a bounded worker
// pool, with per-chunk retries. Otherwise the body is streamed
// sequentially. Either way the data lands in a ".part" file that is
// renamed into place only after the full content arrived, so a
// partial download never masquerades as a finished one.
package download
