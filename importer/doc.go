// Package importer hands package assets to external consumers.
//
// It classifies records into textures and models, lays them out as a
// directory tree for selection, passes selected assets to handlers through
// scoped temporary files, and extracts assets to disk.
//
// Records are not safe for concurrent use, so the Importer serializes all
// reads from the package while handlers and file writes run in parallel.
package importer
