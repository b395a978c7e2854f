// Package unitypackage indexes the assets of a Unity asset package.
//
// A package is a tar container, normally gzip-compressed, in which every
// asset occupies a directory named by its GUID:
//
//	<guid>/pathname     project path of the asset (UTF-8 text)
//	<guid>/asset        raw asset payload
//	<guid>/asset.meta   sidecar metadata (optional)
//	<guid>/preview.png  thumbnail (ignored)
//
// Open scans the container once and builds an Index of Records. Field
// content is not read during the scan; each field is read from the archive
// the first time it is accessed and cached on the Record afterwards.
//
// # Quick Start
//
//	idx, err := unitypackage.Open("Assets.unitypackage")
//	if err != nil {
//	    return err
//	}
//	defer idx.Close()
//
//	for rec := range idx.ByExtensions(".png", ".fbx") {
//	    name, _ := rec.Basename()
//	    fmt.Println(rec.GUID(), name)
//	}
//
// An Index and its Records are not safe for concurrent use. The importer
// subpackage serializes reads for callers that process assets in parallel.
package unitypackage
