// Package textutil provides the text normalization and similarity metrics used
// to compare statement lines with catalog works.
//
// The primary use cases are:
//   - Normalizing titles, writer names, and identifiers (ISWC, ISRC, work codes)
//   - Scoring title and writer-name similarity from bigram overlap, edit
//     distance, and phonetic codes
//   - Building term-frequency fingerprints and comparing them by cosine
//     similarity for the local semantic candidate source
package textutil
