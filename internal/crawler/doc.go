// Package crawler holds the vocabulary of the archiver: item identities and
// lifecycle, media assets, sessions, the error taxonomy, API endpoints and the
// retry policy. Every other package speaks in these types.
package crawler
