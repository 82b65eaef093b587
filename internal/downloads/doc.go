// Package downloads declares the contracts Libris consumes from the external
// download queue.
//
// The queue itself (torrent/usenet client adapters, release scraping) lives
// outside this system; the core only enqueues fulfilled releases and polls a
// status snapshot keyed by delivery bucket. Spool is the shipped directory
// exchange implementation of both contracts; anything that speaks the same
// envelope and snapshot format can replace it.
package downloads
