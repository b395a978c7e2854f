// Package archive reads tar containers member by member.
//
// A Reader scans the container once, recording the byte range of every
// member, and later serves member content by range without rescanning.
// Compressed containers (gzip, zstd, lz4) are decompressed once into a
// spool file so that ranges can be read at random.
package archive
